// Package builder implements the block builder (C5): a single-writer
// periodic loop that drains the solution pool in deterministic
// content-address order, validates and folds each candidate into a
// transactional overlay, and atomically commits the resulting block.
// Generalizes core/ordering/pow.Service's "wait for enough transactions,
// then mine a block" tick loop into "wait for a fixed tick period, then
// deterministically replay every pool entry" — there is no proof-of-work
// step, and ordering is by content address rather than arrival order.
package builder

import (
	"context"
	"sort"
	"time"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum"
	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/blockstate"
	"github.com/pactum-chain/pactum/core"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/overlay"
	"github.com/pactum-chain/pactum/pool"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/validate"
	"github.com/pactum-chain/pactum/vm"
)

// Config bounds a builder's behavior.
type Config struct {
	// TickPeriod is how often the builder attempts to assemble a block.
	TickPeriod time.Duration

	// MaxSolutionsPerBlock caps how many pool entries one tick considers.
	// Zero means unbounded.
	MaxSolutionsPerBlock int

	// GasCeiling is forwarded to every validate.Validate call.
	GasCeiling uint64

	// MaxCommitAttempts bounds retries of a failed CommitBlock call before
	// the tick is abandoned.
	MaxCommitAttempts int

	// CommitBackoff is the delay between commit retries.
	CommitBackoff time.Duration
}

// DefaultConfig matches the distilled spec's stated defaults (§4.5).
func DefaultConfig() Config {
	return Config{
		TickPeriod:        time.Second,
		GasCeiling:        1_000_000,
		MaxCommitAttempts: 3,
		CommitBackoff:     50 * time.Millisecond,
	}
}

// Builder is the block builder. One Builder is the sole writer of blocks
// for its backend; nothing else may call Tick concurrently.
type Builder struct {
	backend  store.Backend
	resolver vm.Resolver
	pool     *pool.Pool
	cfg      Config

	// Blocks is notified with the just-committed types.Block after every
	// successful tick, the engine-side half of the out-of-scope REST
	// façade's new-blocks SSE stream.
	Blocks *core.Watcher
}

// New creates a Builder.
func New(backend store.Backend, resolver vm.Resolver, p *pool.Pool, cfg Config) *Builder {
	return &Builder{
		backend:  backend,
		resolver: resolver,
		pool:     p,
		cfg:      cfg,
		Blocks:   core.NewWatcher(),
	}
}

// Run drives Tick on cfg.TickPeriod until ctx is cancelled, logging and
// continuing on a failed tick (§4.5 point 6: "Log and retry next tick").
func (b *Builder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Tick(ctx); err != nil {
				pactum.Logger.Err(err).Msg("block builder tick failed")
			}
		}
	}
}

// Tick runs exactly one builder cycle, per §4.5. It never returns a
// non-nil error for an expected "nothing to do" or "commit failed after
// retries" outcome; those are logged and the tick is simply abandoned.
func (b *Builder) Tick(ctx context.Context) error {
	now := types.TimestampFromTime(time.Now())

	latest, _, err := blockstate.ReadHead(ctx, b.backend)
	if err != nil {
		return xerrors.Errorf("couldn't read block-state head: %v", err)
	}

	candidateNumber := latest + 1

	parent, err := overlay.Begin(ctx, b.backend)
	if err != nil {
		return xerrors.Errorf("couldn't open tick overlay: %v", err)
	}

	blockstate.WriteHead(parent, candidateNumber, now)

	candidates, err := b.backend.ListSolutionsPool(ctx, store.Page{})
	if err != nil {
		return xerrors.Errorf("couldn't list pool: %v", err)
	}

	ordered, err := sortByAddress(candidates)
	if err != nil {
		return xerrors.Errorf("couldn't order pool: %v", err)
	}

	if b.cfg.MaxSolutionsPerBlock > 0 && len(ordered) > b.cfg.MaxSolutionsPerBlock {
		ordered = ordered[:b.cfg.MaxSolutionsPerBlock]
	}

	var (
		solved  []types.Solution
		solvedA []address.ContentAddress
		failed  []store.FailedSolution
	)

	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			pactum.Logger.Info().Msg("block builder tick cancelled, discarding in-flight overlay")
			return errs.NewCancellationError()
		}

		child := parent.Push()

		outcome, err := validate.Validate(ctx, b.backend, child, b.resolver, c.sol, validate.Config{GasCeiling: b.cfg.GasCeiling})
		if err != nil {
			return xerrors.Errorf("couldn't validate candidate %s: %v", c.addr, err)
		}

		if outcome.Success {
			applyMutations(child, c.sol)
			parent.Fold(child)

			solved = append(solved, c.sol)
			solvedA = append(solvedA, c.addr)
		} else {
			child.Discard()
			failed = append(failed, store.FailedSolution{Address: c.addr, Reason: outcome.Reason})
		}
	}

	if len(solved) == 0 {
		// No empty blocks (§9): the block number does not advance, but
		// failures are still recorded individually.
		if len(failed) > 0 {
			if err := b.backend.MoveSolutionsToFailed(ctx, failed); err != nil {
				return xerrors.Errorf("couldn't record failed solutions: %v", err)
			}

			b.pool.MarkFailed(failedAddrs(failed))
		}

		return nil
	}

	block := types.Block{Number: candidateNumber, Timestamp: now, Solutions: solved}
	proposal := store.BlockProposal{Block: block, Solved: solvedA, Failed: failed}

	if err := b.commitWithRetry(ctx, parent, proposal); err != nil {
		pactum.Logger.Err(err).Msg("block commit abandoned for this tick")
		return nil
	}

	b.pool.MarkIncluded(solvedA)
	b.pool.MarkFailed(failedAddrs(failed))
	b.Blocks.Notify(block)

	return nil
}

func (b *Builder) commitWithRetry(ctx context.Context, parent *overlay.Overlay, proposal store.BlockProposal) error {
	attempts := b.cfg.MaxCommitAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			parent.Discard()
			return errs.NewCancellationError()
		}

		err := parent.Commit(ctx, b.backend, proposal)
		if err == nil {
			return nil
		}

		lastErr = err

		var se *errs.Error
		if !xerrors.As(err, &se) || !se.Retryable {
			break
		}

		select {
		case <-ctx.Done():
			parent.Discard()
			return errs.NewCancellationError()
		case <-time.After(b.cfg.CommitBackoff):
		}
	}

	parent.Discard()

	return lastErr
}

func applyMutations(ov *overlay.Overlay, sol types.Solution) {
	for _, part := range sol.Data {
		for _, kv := range part.StateMutations {
			ov.Set(part.PredicateToSolve.Contract, kv.Key, kv.Value)
		}
	}
}

type candidate struct {
	addr address.ContentAddress
	sol  types.Solution
}

// sortByAddress orders the pool's candidates by ascending bytewise content
// address, independent of arrival order (§4.5 point 4): this is what makes
// the committed block's contents a pure function of pool membership.
func sortByAddress(solutions []types.Solution) ([]candidate, error) {
	out := make([]candidate, len(solutions))

	for i, sol := range solutions {
		addr, err := sol.Address()
		if err != nil {
			return nil, xerrors.Errorf("couldn't address solution: %v", err)
		}

		out[i] = candidate{addr: addr, sol: sol}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].addr.Compare(out[j].addr) < 0
	})

	return out, nil
}

func failedAddrs(failed []store.FailedSolution) []address.ContentAddress {
	addrs := make([]address.ContentAddress, len(failed))
	for i, f := range failed {
		addrs[i] = f.Address
	}

	return addrs
}
