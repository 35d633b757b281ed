// Package memstore is a process-local, in-memory store.Backend.
package memstore

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/internal/debugsync"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
)

// Backend is a map-of-maps store.Backend, guarded by a single lock-
// instrumented mutex. State is keyed by contract address, then by the
// byte encoding of the cell's Key.
type Backend struct {
	sync debugsync.RWMutex

	contracts map[address.ContentAddress]types.SignedContract
	contractOrder []address.ContentAddress

	state map[address.ContentAddress]map[string]types.Value

	pool      map[address.ContentAddress]types.Solution
	poolOrder []address.ContentAddress

	blocks   []types.Block
	outcomes map[address.ContentAddress]types.SolutionOutcome
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		contracts: make(map[address.ContentAddress]types.SignedContract),
		state:     make(map[address.ContentAddress]map[string]types.Value),
		pool:      make(map[address.ContentAddress]types.Solution),
		outcomes:  make(map[address.ContentAddress]types.SolutionOutcome),
	}
}

// PutContract implements store.Backend.
func (b *Backend) PutContract(ctx context.Context, sc types.SignedContract) (address.ContentAddress, error) {
	addr, err := sc.Contract.Address()
	if err != nil {
		return address.Zero, errs.NewStorageError(xerrors.Errorf("couldn't address contract: %v", err), false)
	}

	b.sync.Lock()
	defer b.sync.Unlock()

	if _, ok := b.contracts[addr]; !ok {
		b.contracts[addr] = sc
		b.contractOrder = append(b.contractOrder, addr)
		b.state[addr] = make(map[string]types.Value)
	}

	return addr, nil
}

// GetContract implements store.Backend.
func (b *Backend) GetContract(ctx context.Context, addr address.ContentAddress) (types.SignedContract, error) {
	b.sync.RLock()
	defer b.sync.RUnlock()

	sc, ok := b.contracts[addr]
	if !ok {
		return types.SignedContract{}, errs.NewConsistencyError("contract not found: " + addr.String())
	}

	return sc, nil
}

// GetPredicate implements store.Backend.
func (b *Backend) GetPredicate(ctx context.Context, ref types.PredicateRef) (types.Predicate, error) {
	sc, err := b.GetContract(ctx, ref.Contract)
	if err != nil {
		return types.Predicate{}, err
	}

	for _, p := range sc.Contract.Predicates {
		addr, err := p.Address()
		if err != nil {
			return types.Predicate{}, errs.NewStorageError(xerrors.Errorf("couldn't address predicate: %v", err), false)
		}

		if addr == ref.Predicate {
			return p, nil
		}
	}

	return types.Predicate{}, errs.NewValidationFailure("predicate not found")
}

// ListContracts implements store.Backend.
func (b *Backend) ListContracts(ctx context.Context, page store.Page) ([]address.ContentAddress, error) {
	b.sync.RLock()
	defer b.sync.RUnlock()

	return paginate(b.contractOrder, page), nil
}

// QueryState implements store.Backend and store.Readable.
func (b *Backend) QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	b.sync.RLock()
	defer b.sync.RUnlock()

	cells, ok := b.state[contract]
	if !ok {
		return types.Value{}, nil
	}

	return cells[string(key.Encode())], nil
}

// UpdateState implements store.Backend.
func (b *Backend) UpdateState(ctx context.Context, contract address.ContentAddress, key types.Key, value types.Value) error {
	b.sync.Lock()
	defer b.sync.Unlock()

	b.writeCellLocked(contract, key, value)

	return nil
}

func (b *Backend) writeCellLocked(contract address.ContentAddress, key types.Key, value types.Value) {
	cells, ok := b.state[contract]
	if !ok {
		cells = make(map[string]types.Value)
		b.state[contract] = cells
	}

	if value.IsEmpty() {
		delete(cells, string(key.Encode()))
		return
	}

	cells[string(key.Encode())] = value
}

// InsertSolutionsIntoPool implements store.Backend.
func (b *Backend) InsertSolutionsIntoPool(ctx context.Context, solutions []types.Solution) error {
	b.sync.Lock()
	defer b.sync.Unlock()

	for _, sol := range solutions {
		addr, err := sol.Address()
		if err != nil {
			return errs.NewStorageError(xerrors.Errorf("couldn't address solution: %v", err), false)
		}

		if _, ok := b.pool[addr]; ok {
			continue
		}

		b.pool[addr] = sol
		b.poolOrder = append(b.poolOrder, addr)
	}

	return nil
}

// ListSolutionsPool implements store.Backend.
func (b *Backend) ListSolutionsPool(ctx context.Context, page store.Page) ([]types.Solution, error) {
	b.sync.RLock()
	defer b.sync.RUnlock()

	addrs := paginate(b.poolOrder, page)

	out := make([]types.Solution, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, b.pool[addr])
	}

	return out, nil
}

// MoveSolutionsToSolved implements store.Backend.
func (b *Backend) MoveSolutionsToSolved(ctx context.Context, addrs []address.ContentAddress) error {
	b.sync.Lock()
	defer b.sync.Unlock()

	for _, addr := range addrs {
		b.removeFromPoolLocked(addr)
	}

	return nil
}

// MoveSolutionsToFailed implements store.Backend.
func (b *Backend) MoveSolutionsToFailed(ctx context.Context, failures []store.FailedSolution) error {
	b.sync.Lock()
	defer b.sync.Unlock()

	for _, f := range failures {
		b.removeFromPoolLocked(f.Address)

		b.outcomes[f.Address] = types.SolutionOutcome{
			Kind:   types.OutcomeFail,
			Reason: f.Reason,
		}
	}

	return nil
}

func (b *Backend) removeFromPoolLocked(addr address.ContentAddress) {
	if _, ok := b.pool[addr]; !ok {
		return
	}

	delete(b.pool, addr)

	for i, a := range b.poolOrder {
		if a == addr {
			b.poolOrder = append(b.poolOrder[:i], b.poolOrder[i+1:]...)
			break
		}
	}
}

// ListBlocks implements store.Backend.
func (b *Backend) ListBlocks(ctx context.Context, tr store.TimeRange, page store.Page) ([]types.Block, error) {
	b.sync.RLock()
	defer b.sync.RUnlock()

	filtered := make([]types.Block, 0, len(b.blocks))

	for _, blk := range b.blocks {
		if !tr.From.Time().IsZero() && blk.Timestamp.Time().Before(tr.From.Time()) {
			continue
		}

		if !tr.To.Time().IsZero() && blk.Timestamp.Time().After(tr.To.Time()) {
			continue
		}

		filtered = append(filtered, blk)
	}

	start, end := page.Bounds(len(filtered))

	return filtered[start:end], nil
}

// GetSolutionOutcomes implements store.Backend.
func (b *Backend) GetSolutionOutcomes(ctx context.Context, addrs []address.ContentAddress) (map[address.ContentAddress]types.SolutionOutcome, error) {
	b.sync.RLock()
	defer b.sync.RUnlock()

	out := make(map[address.ContentAddress]types.SolutionOutcome)

	for _, addr := range addrs {
		if outcome, ok := b.outcomes[addr]; ok {
			out[addr] = outcome
		}
	}

	return out, nil
}

// CommitBlock implements store.Backend. It applies the proposal's
// mutations, appends the block, and performs the accompanying pool
// transitions, all under one lock so no reader observes a partial commit.
func (b *Backend) CommitBlock(ctx context.Context, proposal store.BlockProposal, mutations map[address.ContentAddress][]types.KV) error {
	b.sync.Lock()
	defer b.sync.Unlock()

	for contract, kvs := range mutations {
		for _, kv := range kvs {
			b.writeCellLocked(contract, kv.Key, kv.Value)
		}
	}

	b.blocks = append(b.blocks, proposal.Block)

	for _, addr := range proposal.Solved {
		b.removeFromPoolLocked(addr)

		b.outcomes[addr] = types.SolutionOutcome{
			Kind:        types.OutcomeSuccess,
			BlockNumber: proposal.Block.Number,
		}
	}

	for _, f := range proposal.Failed {
		b.removeFromPoolLocked(f.Address)

		b.outcomes[f.Address] = types.SolutionOutcome{
			Kind:   types.OutcomeFail,
			Reason: f.Reason,
		}
	}

	return nil
}

// Snapshot implements store.Backend. The in-memory backend hands out
// itself as a Snapshot wrapper: reads go straight through to the live
// maps under the read lock each call takes, and writes are never used on
// the backend's own Snapshot (the overlay journals everything and calls
// CommitBlock instead).
func (b *Backend) Snapshot(ctx context.Context) (store.Snapshot, error) {
	return backendSnapshot{backend: b}, nil
}

// Close implements store.Backend. The in-memory backend holds no external
// resources.
func (b *Backend) Close() error {
	return nil
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

func paginate(addrs []address.ContentAddress, page store.Page) []address.ContentAddress {
	start, end := page.Bounds(len(addrs))
	out := make([]address.ContentAddress, end-start)
	copy(out, addrs[start:end])
	return out
}
