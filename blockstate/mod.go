// Package blockstate exposes the committed head's block number and time as
// a well-known, reserved ContentAddress read through the same state-read
// machinery every other contract uses, rather than as ambient process
// state.
package blockstate

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/overlay"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
)

// ReservedAddress is the content address every predicate reads to observe
// the committed head's block number and time. It is never the address of
// an actually-deployed Contract; nothing ever hashes bytes to produce it.
var ReservedAddress = address.ContentAddress{
	'p', 'a', 'c', 't', 'u', 'm', ':', 'b', 'l', 'o', 'c', 'k', 's', 't', 'a', 't', 'e',
}

var (
	numberKey = types.Key{0}
	timeKey   = types.Key{1}
)

// WriteHead stages the two reserved keys into ov, the builder's top-level
// tick overlay, so they are committed atomically with the block that
// advances them. Only the builder ever calls this.
func WriteHead(ov *overlay.Overlay, number uint64, ts types.Timestamp) {
	ov.Set(ReservedAddress, numberKey, types.Value{number})
	ov.Set(ReservedAddress, timeKey, encodeTimestamp(ts))
}

// ReadHead reads the committed head's block number and time through any
// Readable, so predicates and the query service observe it exactly like any
// other contract's state.
func ReadHead(ctx context.Context, r store.Readable) (uint64, types.Timestamp, error) {
	numVal, err := r.QueryState(ctx, ReservedAddress, numberKey)
	if err != nil {
		return 0, types.Timestamp{}, xerrors.Errorf("couldn't read block number: %v", err)
	}

	timeVal, err := r.QueryState(ctx, ReservedAddress, timeKey)
	if err != nil {
		return 0, types.Timestamp{}, xerrors.Errorf("couldn't read block time: %v", err)
	}

	var number uint64
	if len(numVal) > 0 {
		number = numVal[0]
	}

	return number, decodeTimestamp(timeVal), nil
}

// Initialize writes the genesis head (number=0, time=now) directly through
// the backend if it is absent. It is a no-op if the contract already holds
// a number.
func Initialize(ctx context.Context, backend store.Backend, now types.Timestamp) error {
	v, err := backend.QueryState(ctx, ReservedAddress, numberKey)
	if err != nil {
		return errs.NewStorageError(xerrors.Errorf("couldn't read block-state: %v", err), true)
	}

	if len(v) > 0 {
		return nil
	}

	if err := backend.UpdateState(ctx, ReservedAddress, numberKey, types.Value{0}); err != nil {
		return errs.NewStorageError(xerrors.Errorf("couldn't initialize block number: %v", err), true)
	}

	if err := backend.UpdateState(ctx, ReservedAddress, timeKey, encodeTimestamp(now)); err != nil {
		return errs.NewStorageError(xerrors.Errorf("couldn't initialize block time: %v", err), true)
	}

	return nil
}

func encodeTimestamp(ts types.Timestamp) types.Value {
	return types.Value{uint64(ts.Seconds), uint64(ts.Nanos)}
}

func decodeTimestamp(v types.Value) types.Timestamp {
	if len(v) < 2 {
		return types.Timestamp{}
	}

	return types.Timestamp{Seconds: int64(v[0]), Nanos: int32(v[1])}
}
