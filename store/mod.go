// Package store defines the storage contract: the capability set every
// backend (in-memory or bbolt-backed) must satisfy, independent of how it
// persists bytes.
package store

import (
	"context"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/types"
)

// Readable is the interface for reading a contract's state.
type Readable interface {
	QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error)
}

// Writable is the interface for writing a contract's state. Writing an
// empty Value deletes the cell, matching the "no empty-value cells persist"
// invariant.
type Writable interface {
	SetState(ctx context.Context, contract address.ContentAddress, key types.Key, value types.Value) error
}

// Snapshot is a readable and writable view of the backend that an overlay
// stages its journal on top of. In both shipped backends it is not frozen
// at a point in time: each QueryState reads the backend's state as
// committed at the moment of that call, and SetState writes straight
// through to the backend. The overlay only ever reads from its Snapshot.
type Snapshot interface {
	Readable
	Writable
}

// Transaction lets a backend expose atomicity to its callers.
type Transaction interface {
	// OnCommit registers a callback invoked after the transaction commits.
	OnCommit(func())
}

// TimeRange bounds a block listing query. A zero value for either field
// means unbounded on that side.
type TimeRange struct {
	From types.Timestamp
	To   types.Timestamp
}

// Page bounds the size and starting offset of a listing query.
type Page struct {
	Offset int
	Limit  int
}

// Bounds clamps the page's offset/limit against a slice of length n,
// returning a valid [start, end) range.
func (p Page) Bounds(n int) (int, int) {
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}

	end := n
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}

	return start, end
}

// BlockProposal is the unit committed atomically by CommitBlock: the new
// block plus the pool transitions that accompany it.
type BlockProposal struct {
	Block     types.Block
	Solved    []address.ContentAddress
	Failed    []FailedSolution
}

// FailedSolution pairs a rejected solution's content address with the
// reason it failed, recorded as a terminal SolutionOutcome.
type FailedSolution struct {
	Address address.ContentAddress
	Reason  string
}

// Backend is the storage contract: every operation a deployed node needs
// from its persistence layer, independent of whether it is backed by a
// process-local map or a bbolt file.
type Backend interface {
	// PutContract deploys a signed contract, idempotently: deploying the
	// same contract address twice is a no-op returning the same address.
	PutContract(ctx context.Context, contract types.SignedContract) (address.ContentAddress, error)

	// GetContract returns a previously deployed contract.
	GetContract(ctx context.Context, addr address.ContentAddress) (types.SignedContract, error)

	// GetPredicate resolves a single predicate within a deployed contract.
	GetPredicate(ctx context.Context, ref types.PredicateRef) (types.Predicate, error)

	// ListContracts lists deployed contract addresses in insertion order.
	ListContracts(ctx context.Context, page Page) ([]address.ContentAddress, error)

	// QueryState reads a single cell of a contract's state.
	QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error)

	// UpdateState writes a single cell outside of any block commit, used
	// only for one-time initialization such as the block-state genesis
	// write.
	UpdateState(ctx context.Context, contract address.ContentAddress, key types.Key, value types.Value) error

	// InsertSolutionsIntoPool admits solutions into the durable pool.
	InsertSolutionsIntoPool(ctx context.Context, solutions []types.Solution) error

	// ListSolutionsPool lists solutions currently awaiting validation.
	ListSolutionsPool(ctx context.Context, page Page) ([]types.Solution, error)

	// MoveSolutionsToSolved removes the given solutions from the pool.
	// The builder does not call it: CommitBlock performs the pool
	// transition for a block's solved solutions itself, and call sites that
	// fail a solution outside of a block use MoveSolutionsToFailed.
	MoveSolutionsToSolved(ctx context.Context, addrs []address.ContentAddress) error

	// MoveSolutionsToFailed removes the given solutions from the pool and
	// records a Fail outcome for each.
	MoveSolutionsToFailed(ctx context.Context, failures []FailedSolution) error

	// ListBlocks lists committed blocks within the given time range.
	ListBlocks(ctx context.Context, tr TimeRange, page Page) ([]types.Block, error)

	// GetSolutionOutcomes returns the terminal outcome recorded for each of
	// the given solution addresses, if any.
	GetSolutionOutcomes(ctx context.Context, addrs []address.ContentAddress) (map[address.ContentAddress]types.SolutionOutcome, error)

	// CommitBlock atomically applies the new block's state mutations (via
	// the overlay that produced it), appends the block, and performs the
	// accompanying pool solved/failed transitions.
	CommitBlock(ctx context.Context, proposal BlockProposal, mutations map[address.ContentAddress][]types.KV) error

	// Snapshot returns a read/write view suitable for an overlay to stage
	// changes on top of; see the Snapshot type for what it does and does
	// not isolate.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Close releases any resources held by the backend.
	Close() error
}
