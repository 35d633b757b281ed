// Package refvm provides small, deterministic Go-native implementations of
// the vm.StateReadProgram and vm.ConstraintProgram interfaces, used by
// tests that need a concrete VM without depending on a real bytecode
// interpreter.
package refvm

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/vm"
)

// StateReadFunc adapts a plain function to vm.StateReadProgram.
type StateReadFunc func(ctx context.Context, contract address.ContentAddress, handle vm.ReadHandle) ([]vm.Slot, uint64, error)

// Run implements vm.StateReadProgram.
func (f StateReadFunc) Run(ctx context.Context, contract address.ContentAddress, handle vm.ReadHandle) ([]vm.Slot, uint64, error) {
	return f(ctx, contract, handle)
}

// ConstraintFunc adapts a plain function to vm.ConstraintProgram.
type ConstraintFunc func(ctx context.Context, input vm.ConstraintInput) (vm.Verdict, error)

// Run implements vm.ConstraintProgram.
func (f ConstraintFunc) Run(ctx context.Context, input vm.ConstraintInput) (vm.Verdict, error) {
	return f(ctx, input)
}

// ReadKeys builds a StateReadProgram that reads the given keys from the
// contract's state, in order, and returns their values as slots. Gas is
// metered at a flat rate per key read.
func ReadKeys(keys ...types.Key) StateReadFunc {
	const gasPerKey = 1

	return func(ctx context.Context, contract address.ContentAddress, handle vm.ReadHandle) ([]vm.Slot, uint64, error) {
		slots := make([]vm.Slot, len(keys))

		for i, key := range keys {
			v, err := handle.QueryState(ctx, contract, key)
			if err != nil {
				return nil, 0, err
			}

			slots[i] = v
		}

		return slots, gasPerKey * uint64(len(keys)), nil
	}
}

// AlwaysSatisfied returns a ConstraintProgram that accepts unconditionally,
// useful for exercising the parts of validation unrelated to the constraint
// logic itself.
func AlwaysSatisfied(gas uint64, utility float64) ConstraintFunc {
	return func(ctx context.Context, input vm.ConstraintInput) (vm.Verdict, error) {
		return vm.Verdict{Satisfied: true, Utility: utility, Gas: gas}, nil
	}
}

// NeverSatisfied returns a ConstraintProgram that always rejects.
func NeverSatisfied(gas uint64) ConstraintFunc {
	return func(ctx context.Context, input vm.ConstraintInput) (vm.Verdict, error) {
		return vm.Verdict{Satisfied: false, Gas: gas}, nil
	}
}

// SlotEqualsDecisionVariable returns a ConstraintProgram that is satisfied
// only when the first slot equals the first decision variable, word for
// word — a minimal "the proposed value matches on-chain state" predicate.
func SlotEqualsDecisionVariable(gas uint64) ConstraintFunc {
	return func(ctx context.Context, input vm.ConstraintInput) (vm.Verdict, error) {
		if len(input.Slots) == 0 || len(input.DecisionVariables) == 0 {
			return vm.Verdict{Satisfied: false, Gas: gas}, nil
		}

		satisfied := valuesEqual(input.Slots[0], input.DecisionVariables[0])

		return vm.Verdict{Satisfied: satisfied, Gas: gas}, nil
	}
}

func valuesEqual(a, b types.Value) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// Registry is a vm.Resolver that maps a predicate's literal bytecode bytes
// to a Go-native program, generalizing
// core/execution/native.Service's name-to-Contract map from a human-chosen
// contract name to the raw program bytes themselves, since refvm programs
// have no name of their own — only the bytes a test chose as their
// "bytecode".
type Registry struct {
	stateReads  map[string]vm.StateReadProgram
	constraints map[string]vm.ConstraintProgram
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stateReads:  make(map[string]vm.StateReadProgram),
		constraints: make(map[string]vm.ConstraintProgram),
	}
}

// RegisterStateRead binds program bytes to a StateReadProgram.
func (r *Registry) RegisterStateRead(program types.Program, prog vm.StateReadProgram) {
	r.stateReads[string(program)] = prog
}

// RegisterConstraint binds program bytes to a ConstraintProgram.
func (r *Registry) RegisterConstraint(program types.Program, prog vm.ConstraintProgram) {
	r.constraints[string(program)] = prog
}

// StateRead implements vm.Resolver.
func (r *Registry) StateRead(program types.Program) (vm.StateReadProgram, error) {
	prog, ok := r.stateReads[string(program)]
	if !ok {
		return nil, xerrors.Errorf("no state-read program registered for %x", []byte(program))
	}

	return prog, nil
}

// Constraint implements vm.Resolver.
func (r *Registry) Constraint(program types.Program) (vm.ConstraintProgram, error) {
	prog, ok := r.constraints[string(program)]
	if !ok {
		return nil, xerrors.Errorf("no constraint program registered for %x", []byte(program))
	}

	return prog, nil
}
