// Package pool implements the solution pool (C4): client-facing admission,
// dedup, advisory dry-validation, and block-count aging for solutions
// awaiting inclusion in a block. Generalizes
// core/txn/pool.simpleGatherer's mutex-guarded set/history/queue design
// from a 32-byte transaction key to a content-addressed solution, adding
// the persistence call into the storage contract and a soft, non-gating
// dry-validation signal the distilled spec's admission protocol requires.
package pool

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/overlay"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/validate"
	"github.com/pactum-chain/pactum/vm"
)

// Config bounds admission and aging.
type Config struct {
	// MaxSolutionBytes is the oversize ceiling checked at admission. Zero
	// means unbounded.
	MaxSolutionBytes int

	// MaxAgeBlocks is how many blocks a solution may sit in the pool,
	// unincluded, before the sweeper evicts it with a "stale" outcome.
	MaxAgeBlocks uint64

	// DryValidate bounds the advisory dry validation run at admission.
	DryValidate validate.Config
}

// Entry is what the pool tracks in memory for a live, not-yet-included
// solution.
type Entry struct {
	Solution       types.Solution
	FirstSeenBlock uint64
	LastDryCheck   *validate.Outcome
}

// Event is delivered to a Watch caller: the pool's live size after the
// change that triggered the notification, mirroring the teacher's
// Event{Len} shape in core/txn/pool/mod.go.
type Event struct {
	Len int
}

type waiter struct {
	ch chan Event
}

// Pool is the in-process admission surface in front of a store.Backend's
// durable pool. Dedup and aging bookkeeping live here, matching the
// teacher's single-process gatherer; InsertSolutionsIntoPool/
// MoveSolutionsToFailed make the backend the durable source of truth a
// distributed-SQL backend could share across processes.
type Pool struct {
	mu sync.Mutex

	backend  store.Backend
	resolver vm.Resolver
	cfg      Config

	set     map[address.ContentAddress]*Entry
	history map[address.ContentAddress]struct{}
	waiters []waiter
}

// New creates a Pool backed by backend, dry-validating admitted solutions
// with resolver.
func New(backend store.Backend, resolver vm.Resolver, cfg Config) *Pool {
	return &Pool{
		backend:  backend,
		resolver: resolver,
		cfg:      cfg,
		set:      make(map[address.ContentAddress]*Entry),
		history:  make(map[address.ContentAddress]struct{}),
	}
}

// Submit admits sol, per §4.4: idempotent on an already-live or already
// terminally-outcome-tagged solution; hard-fails only on structural
// malformation; otherwise runs an advisory dry validation and persists
// through the storage contract regardless of the dry check's result.
func (p *Pool) Submit(ctx context.Context, sol types.Solution, currentBlock uint64) (address.ContentAddress, error) {
	if len(sol.Data) == 0 {
		return address.Zero, errs.NewPoolAdmissionError("solution has no parts", nil)
	}

	for _, part := range sol.Data {
		if part.PredicateToSolve.Contract.IsZero() && part.PredicateToSolve.Predicate.IsZero() {
			return address.Zero, errs.NewPoolAdmissionError("predicate_to_solve is unset", nil)
		}
	}

	addr, err := sol.Address()
	if err != nil {
		return address.Zero, errs.NewPoolAdmissionError("couldn't address solution", err)
	}

	if p.cfg.MaxSolutionBytes > 0 {
		if n := solutionByteSize(sol); n > p.cfg.MaxSolutionBytes {
			return address.Zero, errs.NewPoolAdmissionError("solution exceeds size ceiling", nil)
		}
	}

	p.mu.Lock()
	if _, ok := p.set[addr]; ok {
		p.mu.Unlock()
		return addr, nil
	}

	if _, ok := p.history[addr]; ok {
		p.mu.Unlock()
		return addr, nil
	}
	p.mu.Unlock()

	entry := &Entry{Solution: sol, FirstSeenBlock: currentBlock}
	entry.LastDryCheck = p.dryValidate(ctx, sol)

	if err := p.backend.InsertSolutionsIntoPool(ctx, []types.Solution{sol}); err != nil {
		return address.Zero, errs.NewStorageError(xerrors.Errorf("couldn't persist solution: %v", err), true)
	}

	p.mu.Lock()
	p.set[addr] = entry
	length := len(p.set)
	p.notifyLocked(length)
	p.mu.Unlock()

	return addr, nil
}

// dryValidate runs Validate against a fresh read-only overlay over the
// backend's current snapshot. Its result is advisory only: a failing dry
// check never blocks admission, since state may change by the time the
// builder actually runs the solution (§4.4 point 2).
func (p *Pool) dryValidate(ctx context.Context, sol types.Solution) *validate.Outcome {
	ov, err := overlay.Begin(ctx, p.backend)
	if err != nil {
		return &validate.Outcome{Reason: "couldn't open dry-check snapshot: " + err.Error()}
	}

	outcome, err := validate.Validate(ctx, p.backend, ov, p.resolver, sol, p.cfg.DryValidate)
	if err != nil {
		return &validate.Outcome{Reason: "dry check error: " + err.Error()}
	}

	return &outcome
}

// MarkIncluded removes addrs from the live set and records them in history,
// called by the builder once it has committed them into a block. The
// terminal Success outcome itself is recorded by store.Backend.CommitBlock;
// this only updates the in-process dedup bookkeeping.
func (p *Pool) MarkIncluded(addrs []address.ContentAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, addr := range addrs {
		delete(p.set, addr)
		p.history[addr] = struct{}{}
	}
}

// MarkFailed removes addrs from the live set and records them in history,
// called by the builder for candidates it rejected in a tick, and by Sweep
// for aged-out entries. The Fail outcome itself is recorded by the caller
// through store.Backend.MoveSolutionsToFailed.
func (p *Pool) MarkFailed(addrs []address.ContentAddress) {
	p.MarkIncluded(addrs)
}

// Sweep evicts every live entry whose age (currentBlock - FirstSeenBlock)
// exceeds cfg.MaxAgeBlocks, recording a "stale" Fail outcome for each
// through the storage contract.
func (p *Pool) Sweep(ctx context.Context, currentBlock uint64) error {
	var stale []store.FailedSolution

	p.mu.Lock()
	for addr, entry := range p.set {
		if p.cfg.MaxAgeBlocks == 0 {
			continue
		}

		if currentBlock-entry.FirstSeenBlock > p.cfg.MaxAgeBlocks {
			stale = append(stale, store.FailedSolution{Address: addr, Reason: "stale"})
		}
	}
	p.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}

	if err := p.backend.MoveSolutionsToFailed(ctx, stale); err != nil {
		return errs.NewStorageError(xerrors.Errorf("couldn't evict stale solutions: %v", err), true)
	}

	addrs := make([]address.ContentAddress, len(stale))
	for i, f := range stale {
		addrs[i] = f.Address
	}

	p.MarkFailed(addrs)

	return nil
}

// Len returns the number of live entries tracked in memory.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.set)
}

// Watch returns a channel delivering an Event each time Submit admits a new
// solution to the live set, until ctx is cancelled. Removals from the live
// set do not produce an Event, and an Event is dropped if the previous one
// has not been received yet. Mirrors
// core/txn/pool/gatherer.go's queue-of-waiters design so callers block
// instead of busy-polling for new solutions.
func (p *Pool) Watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, 1)

	p.mu.Lock()
	p.waiters = append(p.waiters, waiter{ch: ch})
	p.mu.Unlock()

	go func() {
		<-ctx.Done()

		p.mu.Lock()
		for i, w := range p.waiters {
			if w.ch == ch {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}()

	return ch
}

func (p *Pool) notifyLocked(length int) {
	for _, w := range p.waiters {
		select {
		case w.ch <- Event{Len: length}:
		default:
		}
	}
}

func solutionByteSize(sol types.Solution) int {
	n := 0

	for _, part := range sol.Data {
		n += len(part.PredicateToSolve.Contract.Bytes()) + len(part.PredicateToSolve.Predicate.Bytes())

		for _, v := range part.DecisionVariables {
			n += len(v.Encode())
		}

		for _, kv := range part.TransientData {
			n += len(kv.Key.Encode()) + len(kv.Value.Encode())
		}

		for _, kv := range part.StateMutations {
			n += len(kv.Key.Encode()) + len(kv.Value.Encode())
		}
	}

	return n
}
