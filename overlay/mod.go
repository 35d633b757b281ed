// Package overlay implements the transactional staging layer between a
// store.Backend snapshot and the block builder/validator: a journal of
// pending writes that can be nested, folded into its parent, discarded, or
// committed to the backend.
package overlay

import (
	"context"
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/internal/debugsync"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
)

type cellKey struct {
	contract address.ContentAddress
	key      string
}

// journalEntry is the tagged "Updated(Value) | Deleted" the journal tracks
// per cell: a present entry with a non-deleted tag carries the pending
// value, a deleted entry shadows the parent/base for that cell.
type journalEntry struct {
	value   types.Value
	deleted bool
}

// Overlay is a journal of pending state writes layered over a base
// snapshot, with an optional chain of parent overlays above it. Generalizes
// a parent-chaining staging trie from a single flat key space to
// (contract, key) pairs and from an implicit always-present child to an
// explicit Push/Fold/Discard stack.
type Overlay struct {
	mu     debugsync.RWMutex
	parent *Overlay
	base   store.Snapshot
	order  []cellKey
	journal map[cellKey]journalEntry
}

// Begin opens a fresh top-level overlay over the backend's current
// snapshot. This is the transaction boundary: every write made through the
// returned overlay is invisible to the backend until Commit is called.
func Begin(ctx context.Context, backend store.Backend) (*Overlay, error) {
	snap, err := backend.Snapshot(ctx)
	if err != nil {
		return nil, errs.NewStorageError(xerrors.Errorf("couldn't open snapshot: %v", err), true)
	}

	return &Overlay{base: snap, journal: make(map[cellKey]journalEntry)}, nil
}

// Get reads a cell, consulting the local journal first, then falling
// through the parent chain, and finally the base snapshot.
func (o *Overlay) Get(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	o.mu.RLock()
	entry, ok := o.journal[cellKey{contract, string(key.Encode())}]
	o.mu.RUnlock()

	if ok {
		if entry.deleted {
			return types.Value{}, nil
		}

		return entry.value, nil
	}

	if o.parent != nil {
		return o.parent.Get(ctx, contract, key)
	}

	v, err := o.base.QueryState(ctx, contract, key)
	if err != nil {
		return nil, errs.NewStorageError(xerrors.Errorf("couldn't query base snapshot: %v", err), true)
	}

	return v, nil
}

// QueryState implements store.Readable, letting an Overlay serve directly as
// a vm.ReadHandle for state-read programs.
func (o *Overlay) QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	return o.Get(ctx, contract, key)
}

// Set stages a write. An empty value is normalized to a delete, matching
// the "no empty-value cells persist" invariant.
func (o *Overlay) Set(contract address.ContentAddress, key types.Key, value types.Value) {
	ck := cellKey{contract, string(key.Encode())}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.journal[ck]; !exists {
		o.order = append(o.order, ck)
	}

	if value.IsEmpty() {
		o.journal[ck] = journalEntry{deleted: true}
		return
	}

	o.journal[ck] = journalEntry{value: value}
}

// Delete stages a deletion of the cell.
func (o *Overlay) Delete(contract address.ContentAddress, key types.Key) {
	o.Set(contract, key, types.Value{})
}

// Push returns a child overlay sharing this overlay's base snapshot, with
// its own empty journal. Used by the builder to stage one candidate
// solution's mutations without affecting already-folded candidates.
func (o *Overlay) Push() *Overlay {
	return &Overlay{parent: o, base: o.base, journal: make(map[cellKey]journalEntry)}
}

// Fold merges a child overlay's journal into this overlay, in the child's
// insertion order, so the most recent write for any cell wins.
func (o *Overlay) Fold(child *Overlay) {
	child.mu.RLock()
	defer child.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, ck := range child.order {
		if _, exists := o.journal[ck]; !exists {
			o.order = append(o.order, ck)
		}

		o.journal[ck] = child.journal[ck]
	}
}

// Discard drops the overlay's journal. It performs no I/O; abandoning a
// failed candidate's sub-overlay is always cheap.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.journal = make(map[cellKey]journalEntry)
	o.order = nil
}

// Mutations flattens the overlay's journal into per-contract KV lists
// suitable for store.Backend.CommitBlock, in journal insertion order. A
// deleted cell is emitted with an empty Value, which the backend treats as
// a delete, whether or not the cell was present in the base.
func (o *Overlay) Mutations() map[address.ContentAddress][]types.KV {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[address.ContentAddress][]types.KV)

	for _, ck := range o.order {
		entry := o.journal[ck]

		value := entry.value
		if entry.deleted {
			value = types.Value{}
		}

		key := decodeKey(ck.key)

		out[ck.contract] = append(out[ck.contract], types.KV{Key: key, Value: value})
	}

	return out
}

func decodeKey(encoded string) types.Key {
	raw := []byte(encoded)
	words := make(types.Key, len(raw)/8)

	for i := range words {
		words[i] = binary.BigEndian.Uint64(raw[i*8 : i*8+8])
	}

	return words
}

// ResolvePredicate resolves a predicate reference against the overlay's
// backend-deployed contracts. Ad-hoc (undeployed) contracts are resolved
// first by query.CheckSolutionWithContracts before falling through here.
func (o *Overlay) ResolvePredicate(ctx context.Context, backend store.Backend, ref types.PredicateRef) (types.Predicate, error) {
	return backend.GetPredicate(ctx, ref)
}

// Commit flushes the top-level overlay's journal to the backend atomically
// with the block's solved/failed pool transitions.
func (o *Overlay) Commit(ctx context.Context, backend store.Backend, proposal store.BlockProposal) error {
	err := backend.CommitBlock(ctx, proposal, o.Mutations())
	if err != nil {
		return errs.NewStorageError(xerrors.Errorf("couldn't commit block: %v", err), true)
	}

	return nil
}
