// Package vm defines the boundary between the validator and the two
// bytecode virtual machines: the state-read VM, which turns a program plus
// a read handle into slots, and the constraint VM, which turns those slots
// plus the solution part's own data into a verdict. Both VMs are treated as
// pure, deterministic black boxes; this package never interprets bytecode
// itself.
package vm

import (
	"context"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
)

// ReadHandle is the read-only view a state-read program executes against.
type ReadHandle = store.Readable

// Slot is one value produced by a state-read program, destined to be
// consumed by the matching constraint program.
type Slot = types.Value

// StateReadProgram is the pure function a predicate's state-read bytecode
// implements: given a read handle over the contract's state, produce the
// ordered slots the constraint program will see, plus the gas it metered
// for the read.
type StateReadProgram interface {
	Run(ctx context.Context, contract address.ContentAddress, handle ReadHandle) ([]Slot, uint64, error)
}

// Resolver turns a predicate's opaque bytecode blobs into runnable VM
// programs. This is the seam a real bytecode interpreter occupies; neither
// the validator nor this package ever inspects bytecode itself.
type Resolver interface {
	StateRead(program types.Program) (StateReadProgram, error)
	Constraint(program types.Program) (ConstraintProgram, error)
}

// ConstraintInput is everything a constraint program is a pure function of:
// the slots its paired state-read program produced, the solution part's
// decision variables, its transient data, and its proposed state mutations.
type ConstraintInput struct {
	Slots             []Slot
	DecisionVariables []types.Value
	TransientData     []types.KV
	StateMutations    []types.KV
}

// Verdict is a constraint program's pure, deterministic output.
type Verdict struct {
	Satisfied bool
	Utility   float64
	Gas       uint64
}

// ConstraintProgram is the pure function a predicate's constraint bytecode
// implements.
type ConstraintProgram interface {
	Run(ctx context.Context, input ConstraintInput) (Verdict, error)
}
