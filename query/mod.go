// Package query implements read-only reproductions of the validator's
// work for debugging: it shares validate.Validate with the block builder
// and differs only in which overlay or snapshot backs a given call, so
// that a checked solution's result reflects exactly what the builder
// would see without ever committing it.
package query

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/overlay"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/validate"
	"github.com/pactum-chain/pactum/vm"
)

// Service answers read-only debugging queries against a store.Backend.
type Service struct {
	backend  store.Backend
	resolver vm.Resolver
	cfg      validate.Config
}

// New creates a Service.
func New(backend store.Backend, resolver vm.Resolver, cfg validate.Config) *Service {
	return &Service{backend: backend, resolver: resolver, cfg: cfg}
}

// QueryState reads a single cell directly from committed state.
func (s *Service) QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	v, err := s.backend.QueryState(ctx, contract, key)
	if err != nil {
		return nil, errs.NewStorageError(xerrors.Errorf("couldn't query state: %v", err), true)
	}

	return v, nil
}

// CheckSolution runs the validator against a fresh read-only overlay over
// the current snapshot. It never admits to the pool and never commits.
func (s *Service) CheckSolution(ctx context.Context, sol types.Solution) (validate.Outcome, error) {
	ov, err := overlay.Begin(ctx, s.backend)
	if err != nil {
		return validate.Outcome{}, errs.NewStorageError(xerrors.Errorf("couldn't open snapshot: %v", err), true)
	}

	return validate.Validate(ctx, s.backend, ov, s.resolver, sol, s.cfg)
}

// CheckSolutionWithContracts is CheckSolution, but predicate resolution
// first consults adhoc (undeployed) contracts before falling through to the
// backend — useful for checking a solution against a contract that hasn't
// been deployed yet. State mutations proposed by sol are never persisted.
func (s *Service) CheckSolutionWithContracts(ctx context.Context, sol types.Solution, adhoc []types.SignedContract) (validate.Outcome, error) {
	ov, err := overlay.Begin(ctx, s.backend)
	if err != nil {
		return validate.Outcome{}, errs.NewStorageError(xerrors.Errorf("couldn't open snapshot: %v", err), true)
	}

	adhocBackend := &adhocResolvingBackend{Backend: s.backend, contracts: indexByAddress(adhoc)}

	return validate.Validate(ctx, adhocBackend, ov, s.resolver, sol, s.cfg)
}

// ReadRequest selects what QueryStateReads returns.
type ReadRequest int

const (
	// RequestReads returns the raw (contract, key, value) reads observed.
	RequestReads ReadRequest = iota
	// RequestSlots returns the slot sequences the state-read programs
	// produced.
	RequestSlots
	// RequestAll returns both.
	RequestAll
)

// Read is one observed (contract, key, value) triple produced while
// reproducing a solution part's state-read programs.
type Read struct {
	Contract address.ContentAddress
	Key      types.Key
	Value    types.Value
}

// StateReadsResult is QueryStateReads' output, populated according to the
// ReadRequest that produced it.
type StateReadsResult struct {
	Reads   []Read
	Slots   []vm.Slot
	Failure string
}

// QueryStateReads executes only the state-read portion of validating
// sol.Data[index] — using the supplied programs directly rather than
// resolving them from a deployed predicate, which lets debugging tooling
// reproduce a solution's pre-state against ad-hoc bytecode — and reports
// the raw reads, the slots, or both.
func (s *Service) QueryStateReads(ctx context.Context, programs []vm.StateReadProgram, sol types.Solution, index int, req ReadRequest) (StateReadsResult, error) {
	if index < 0 || index >= len(sol.Data) {
		return StateReadsResult{Failure: "transient-data index out of range"}, nil
	}

	ov, err := overlay.Begin(ctx, s.backend)
	if err != nil {
		return StateReadsResult{}, errs.NewStorageError(xerrors.Errorf("couldn't open snapshot: %v", err), true)
	}

	part := sol.Data[index]

	recorder := &recordingHandle{ReadHandle: ov}

	var slots []vm.Slot

	for _, prog := range programs {
		out, _, err := prog.Run(ctx, part.PredicateToSolve.Contract, recorder)
		if err != nil {
			return StateReadsResult{Failure: "state-read program failed: " + err.Error()}, nil
		}

		slots = append(slots, out...)
	}

	result := StateReadsResult{}

	if req == RequestReads || req == RequestAll {
		result.Reads = recorder.reads
	}

	if req == RequestSlots || req == RequestAll {
		result.Slots = slots
	}

	return result, nil
}

// recordingHandle wraps a vm.ReadHandle, recording every read it observes
// so QueryStateReads can report the raw (contract, key, value) triples a
// state-read program consulted.
type recordingHandle struct {
	vm.ReadHandle
	reads []Read
}

func (r *recordingHandle) QueryState(ctx context.Context, contract address.ContentAddress, key types.Key) (types.Value, error) {
	v, err := r.ReadHandle.QueryState(ctx, contract, key)
	if err != nil {
		return nil, err
	}

	r.reads = append(r.reads, Read{Contract: contract, Key: key, Value: v})

	return v, nil
}

// adhocResolvingBackend overlays a set of undeployed contracts onto a
// store.Backend for predicate resolution only; GetContract/GetPredicate
// consult the ad-hoc set first, every other operation is forwarded
// unchanged.
type adhocResolvingBackend struct {
	store.Backend
	contracts map[address.ContentAddress]types.SignedContract
}

func (a *adhocResolvingBackend) GetContract(ctx context.Context, addr address.ContentAddress) (types.SignedContract, error) {
	if sc, ok := a.contracts[addr]; ok {
		return sc, nil
	}

	return a.Backend.GetContract(ctx, addr)
}

func (a *adhocResolvingBackend) GetPredicate(ctx context.Context, ref types.PredicateRef) (types.Predicate, error) {
	if sc, ok := a.contracts[ref.Contract]; ok {
		for _, p := range sc.Contract.Predicates {
			addr, err := p.Address()
			if err != nil {
				return types.Predicate{}, xerrors.Errorf("couldn't address predicate: %v", err)
			}

			if addr == ref.Predicate {
				return p, nil
			}
		}

		return types.Predicate{}, errs.NewValidationFailure("predicate not found")
	}

	return a.Backend.GetPredicate(ctx, ref)
}

func indexByAddress(contracts []types.SignedContract) map[address.ContentAddress]types.SignedContract {
	out := make(map[address.ContentAddress]types.SignedContract, len(contracts))

	for _, sc := range contracts {
		addr, err := sc.Contract.Address()
		if err != nil {
			continue
		}

		out[addr] = sc
	}

	return out
}
