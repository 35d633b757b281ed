// Package kv is a bbolt-backed store.Backend, one named bucket per concern.
package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/rs/xid"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
)

var (
	bucketContracts     = []byte("contracts")
	bucketContractOrder = []byte("contract_order")
	bucketPredicates    = []byte("predicates")
	bucketState         = []byte("state")
	bucketPool          = []byte("pool")
	bucketPoolOrder     = []byte("pool_order")
	bucketSolved        = []byte("solved")
	bucketFailed        = []byte("failed")
	bucketBlocks        = []byte("blocks")
	bucketOutcomes      = []byte("outcomes")
)

var allBuckets = [][]byte{
	bucketContracts, bucketContractOrder, bucketPredicates, bucketState,
	bucketPool, bucketPoolOrder, bucketSolved, bucketFailed, bucketBlocks,
	bucketOutcomes,
}

// Backend is a bbolt-backed store.Backend.
type Backend struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and ensures
// every bucket the backend needs exists.
func Open(path string) (*Backend, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return xerrors.Errorf("failed to create bucket %q: %v", name, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to initialize buckets: %v", err)
	}

	return &Backend{db: db}, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}

func stateKey(contract address.ContentAddress, key types.Key) []byte {
	return append(contract.Bytes(), key.Encode()...)
}

func predicateKey(ref types.PredicateRef) []byte {
	return append(ref.Contract.Bytes(), ref.Predicate.Bytes()...)
}

func blockNumberKey(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

// PutContract implements store.Backend.
func (b *Backend) PutContract(ctx context.Context, sc types.SignedContract) (address.ContentAddress, error) {
	addr, err := sc.Contract.Address()
	if err != nil {
		return address.Zero, errs.NewStorageError(xerrors.Errorf("couldn't address contract: %v", err), false)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		contracts := tx.Bucket(bucketContracts)

		if contracts.Get(addr.Bytes()) != nil {
			return nil
		}

		raw, err := json.Marshal(sc)
		if err != nil {
			return xerrors.Errorf("couldn't encode contract: %v", err)
		}

		if err := contracts.Put(addr.Bytes(), raw); err != nil {
			return xerrors.Errorf("couldn't store contract: %v", err)
		}

		if err := tx.Bucket(bucketContractOrder).Put([]byte(xid.New().String()), addr.Bytes()); err != nil {
			return xerrors.Errorf("couldn't record contract order: %v", err)
		}

		predicates := tx.Bucket(bucketPredicates)

		for _, p := range sc.Contract.Predicates {
			pAddr, err := p.Address()
			if err != nil {
				return xerrors.Errorf("couldn't address predicate: %v", err)
			}

			praw, err := json.Marshal(p)
			if err != nil {
				return xerrors.Errorf("couldn't encode predicate: %v", err)
			}

			key := predicateKey(types.PredicateRef{Contract: addr, Predicate: pAddr})
			if err := predicates.Put(key, praw); err != nil {
				return xerrors.Errorf("couldn't store predicate: %v", err)
			}
		}

		return nil
	})
	if err != nil {
		return address.Zero, errs.NewStorageError(xerrors.Errorf("transaction failed: %v", err), true)
	}

	return addr, nil
}

// GetContract implements store.Backend.
func (b *Backend) GetContract(ctx context.Context, addr address.ContentAddress) (types.SignedContract, error) {
	var sc types.SignedContract

	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketContracts).Get(addr.Bytes())
		if raw == nil {
			return errs.NewConsistencyError("contract not found: " + addr.String())
		}

		return json.Unmarshal(raw, &sc)
	})
	if err != nil {
		return types.SignedContract{}, err
	}

	return sc, nil
}

// GetPredicate implements store.Backend.
func (b *Backend) GetPredicate(ctx context.Context, ref types.PredicateRef) (types.Predicate, error) {
	var p types.Predicate

	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketPredicates).Get(predicateKey(ref))
		if raw == nil {
			return errs.NewValidationFailure("predicate not found")
		}

		return json.Unmarshal(raw, &p)
	})
	if err != nil {
		return types.Predicate{}, err
	}

	return p, nil
}

// ListContracts implements store.Backend.
func (b *Backend) ListContracts(ctx context.Context, page store.Page) ([]address.ContentAddress, error) {
	var all []address.ContentAddress

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketContractOrder).ForEach(func(k, v []byte) error {
			var addr address.ContentAddress
			copy(addr[:], v)
			all = append(all, addr)
			return nil
		})
	})
	if err != nil {
		return nil, errs.NewStorageError(err, true)
	}

	start, end := page.Bounds(len(all))

	return all[start:end], nil
}

// QueryState implements store.Backend and store.Readable.
func (b *Backend) QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	var value types.Value

	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketState).Get(stateKey(contract, key))
		value = decodeValue(raw)
		return nil
	})
	if err != nil {
		return nil, errs.NewStorageError(err, true)
	}

	return value, nil
}

func decodeValue(raw []byte) types.Value {
	words := make(types.Value, len(raw)/8)

	for i := range words {
		words[i] = binary.BigEndian.Uint64(raw[i*8 : i*8+8])
	}

	return words
}

// UpdateState implements store.Backend.
func (b *Backend) UpdateState(ctx context.Context, contract address.ContentAddress, key types.Key, value types.Value) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return writeCell(tx, contract, key, value)
	})
	if err != nil {
		return errs.NewStorageError(err, true)
	}

	return nil
}

func writeCell(tx *bbolt.Tx, contract address.ContentAddress, key types.Key, value types.Value) error {
	bucket := tx.Bucket(bucketState)
	k := stateKey(contract, key)

	if value.IsEmpty() {
		return bucket.Delete(k)
	}

	return bucket.Put(k, value.Encode())
}

// InsertSolutionsIntoPool implements store.Backend.
func (b *Backend) InsertSolutionsIntoPool(ctx context.Context, solutions []types.Solution) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		pool := tx.Bucket(bucketPool)
		order := tx.Bucket(bucketPoolOrder)

		for _, sol := range solutions {
			addr, err := sol.Address()
			if err != nil {
				return xerrors.Errorf("couldn't address solution: %v", err)
			}

			if pool.Get(addr.Bytes()) != nil {
				continue
			}

			raw, err := json.Marshal(sol)
			if err != nil {
				return xerrors.Errorf("couldn't encode solution: %v", err)
			}

			if err := pool.Put(addr.Bytes(), raw); err != nil {
				return xerrors.Errorf("couldn't store solution: %v", err)
			}

			if err := order.Put([]byte(xid.New().String()), addr.Bytes()); err != nil {
				return xerrors.Errorf("couldn't record pool order: %v", err)
			}
		}

		return nil
	})
	if err != nil {
		return errs.NewStorageError(err, true)
	}

	return nil
}

// ListSolutionsPool implements store.Backend.
func (b *Backend) ListSolutionsPool(ctx context.Context, page store.Page) ([]types.Solution, error) {
	var all []types.Solution

	err := b.db.View(func(tx *bbolt.Tx) error {
		pool := tx.Bucket(bucketPool)

		return tx.Bucket(bucketPoolOrder).ForEach(func(k, v []byte) error {
			raw := pool.Get(v)
			if raw == nil {
				return nil
			}

			var sol types.Solution
			if err := json.Unmarshal(raw, &sol); err != nil {
				return xerrors.Errorf("couldn't decode solution: %v", err)
			}

			all = append(all, sol)

			return nil
		})
	})
	if err != nil {
		return nil, errs.NewStorageError(err, true)
	}

	start, end := page.Bounds(len(all))

	return all[start:end], nil
}

// MoveSolutionsToSolved implements store.Backend.
func (b *Backend) MoveSolutionsToSolved(ctx context.Context, addrs []address.ContentAddress) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, addr := range addrs {
			if err := removeFromPool(tx, addr); err != nil {
				return err
			}

			if err := tx.Bucket(bucketSolved).Put([]byte(xid.New().String()), addr.Bytes()); err != nil {
				return xerrors.Errorf("couldn't record solved: %v", err)
			}
		}

		return nil
	})
	if err != nil {
		return errs.NewStorageError(err, true)
	}

	return nil
}

// MoveSolutionsToFailed implements store.Backend.
func (b *Backend) MoveSolutionsToFailed(ctx context.Context, failures []store.FailedSolution) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, f := range failures {
			if err := removeFromPool(tx, f.Address); err != nil {
				return err
			}

			if err := putOutcome(tx, f.Address, types.SolutionOutcome{Kind: types.OutcomeFail, Reason: f.Reason}); err != nil {
				return err
			}

			raw, err := json.Marshal(f)
			if err != nil {
				return xerrors.Errorf("couldn't encode failure: %v", err)
			}

			if err := tx.Bucket(bucketFailed).Put([]byte(xid.New().String()), raw); err != nil {
				return xerrors.Errorf("couldn't record failure: %v", err)
			}
		}

		return nil
	})
	if err != nil {
		return errs.NewStorageError(err, true)
	}

	return nil
}

func removeFromPool(tx *bbolt.Tx, addr address.ContentAddress) error {
	if err := tx.Bucket(bucketPool).Delete(addr.Bytes()); err != nil {
		return xerrors.Errorf("couldn't remove from pool: %v", err)
	}

	order := tx.Bucket(bucketPoolOrder)
	cursor := order.Cursor()

	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		if bytes.Equal(v, addr.Bytes()) {
			return order.Delete(k)
		}
	}

	return nil
}

func putOutcome(tx *bbolt.Tx, addr address.ContentAddress, outcome types.SolutionOutcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return xerrors.Errorf("couldn't encode outcome: %v", err)
	}

	if err := tx.Bucket(bucketOutcomes).Put(addr.Bytes(), raw); err != nil {
		return xerrors.Errorf("couldn't store outcome: %v", err)
	}

	return nil
}

// ListBlocks implements store.Backend.
func (b *Backend) ListBlocks(ctx context.Context, tr store.TimeRange, page store.Page) ([]types.Block, error) {
	var all []types.Block

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlocks).ForEach(func(k, v []byte) error {
			var blk types.Block
			if err := json.Unmarshal(v, &blk); err != nil {
				return xerrors.Errorf("couldn't decode block: %v", err)
			}

			if !tr.From.Time().IsZero() && blk.Timestamp.Time().Before(tr.From.Time()) {
				return nil
			}

			if !tr.To.Time().IsZero() && blk.Timestamp.Time().After(tr.To.Time()) {
				return nil
			}

			all = append(all, blk)

			return nil
		})
	})
	if err != nil {
		return nil, errs.NewStorageError(err, true)
	}

	start, end := page.Bounds(len(all))

	return all[start:end], nil
}

// GetSolutionOutcomes implements store.Backend.
func (b *Backend) GetSolutionOutcomes(ctx context.Context, addrs []address.ContentAddress) (map[address.ContentAddress]types.SolutionOutcome, error) {
	out := make(map[address.ContentAddress]types.SolutionOutcome)

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutcomes)

		for _, addr := range addrs {
			raw := bucket.Get(addr.Bytes())
			if raw == nil {
				continue
			}

			var outcome types.SolutionOutcome
			if err := json.Unmarshal(raw, &outcome); err != nil {
				return xerrors.Errorf("couldn't decode outcome: %v", err)
			}

			out[addr] = outcome
		}

		return nil
	})
	if err != nil {
		return nil, errs.NewStorageError(err, true)
	}

	return out, nil
}

// CommitBlock implements store.Backend. Everything is applied within a
// single bbolt read-write transaction, so a crash mid-commit leaves the
// previous state intact.
func (b *Backend) CommitBlock(ctx context.Context, proposal store.BlockProposal, mutations map[address.ContentAddress][]types.KV) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for contract, kvs := range mutations {
			for _, kv := range kvs {
				if err := writeCell(tx, contract, kv.Key, kv.Value); err != nil {
					return xerrors.Errorf("couldn't write state: %v", err)
				}
			}
		}

		raw, err := json.Marshal(proposal.Block)
		if err != nil {
			return xerrors.Errorf("couldn't encode block: %v", err)
		}

		if err := tx.Bucket(bucketBlocks).Put(blockNumberKey(proposal.Block.Number), raw); err != nil {
			return xerrors.Errorf("couldn't store block: %v", err)
		}

		for _, addr := range proposal.Solved {
			if err := removeFromPool(tx, addr); err != nil {
				return err
			}

			if err := tx.Bucket(bucketSolved).Put([]byte(xid.New().String()), addr.Bytes()); err != nil {
				return xerrors.Errorf("couldn't record solved: %v", err)
			}

			if err := putOutcome(tx, addr, types.SolutionOutcome{Kind: types.OutcomeSuccess, BlockNumber: proposal.Block.Number}); err != nil {
				return err
			}
		}

		for _, f := range proposal.Failed {
			if err := removeFromPool(tx, f.Address); err != nil {
				return err
			}

			if err := putOutcome(tx, f.Address, types.SolutionOutcome{Kind: types.OutcomeFail, Reason: f.Reason}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return errs.NewStorageError(err, true)
	}

	return nil
}

// Snapshot implements store.Backend. The snapshot is a thin wrapper
// delegating straight back to the backend: each QueryState runs in its own
// bbolt read transaction, so a single read is consistent but successive
// reads may observe different commits.
func (b *Backend) Snapshot(ctx context.Context) (store.Snapshot, error) {
	return backendSnapshot{backend: b}, nil
}

type backendSnapshot struct {
	backend *Backend
}

func (s backendSnapshot) QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	return s.backend.QueryState(ctx, contract, key)
}

func (s backendSnapshot) SetState(ctx context.Context, contract address.ContentAddress, key types.Key, value types.Value) error {
	return s.backend.UpdateState(ctx, contract, key, value)
}
