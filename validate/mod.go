// Package validate runs the two-VM protocol for a solution's parts against
// a consistent overlay view and aggregates the result into a single
// pass/fail outcome plus a utility and gas total.
package validate

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/errs"
	"github.com/pactum-chain/pactum/overlay"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/vm"
)

// Config bounds a single Validate call.
type Config struct {
	// GasCeiling is the maximum gas a single VM invocation (one state-read
	// program run or one constraint program run) may report before the
	// whole solution fails with "gas limit exceeded".
	GasCeiling uint64
}

// Outcome is the public result of validating one solution: either it
// satisfied every predicate it named, with an aggregate utility and gas, or
// it failed with a reason suitable for a SolutionOutcome record.
type Outcome struct {
	Success bool
	Utility float64
	Gas     uint64
	Reason  string
}

func fail(reason string) Outcome {
	return Outcome{Reason: reason}
}

type partResult struct {
	utility float64
	gas     uint64
}

// Validate runs every SolutionPart of sol against ov in parallel: each
// part's predicate is resolved through the overlay's backend, its
// state-read programs run first (against state as of before sol's own
// mutations are staged — true by construction, since ov carries no writes
// from sol yet when Validate is called), then its constraint programs run
// against the resulting slots. Utility and gas are summed across every
// predicate and every VM invocation. A context error or malformed-input
// error is returned as a Go error; every other failure mode is reported as
// Outcome{Success: false}, never as an error, so callers never need to
// distinguish "rejected" from "couldn't run" when recording an outcome.
func Validate(ctx context.Context, backend store.Backend, ov *overlay.Overlay, resolver vm.Resolver, sol types.Solution, cfg Config) (Outcome, error) {
	if len(sol.Data) == 0 {
		return fail("solution has no parts"), nil
	}

	predicates := make([]types.Predicate, len(sol.Data))

	for i, part := range sol.Data {
		pred, err := ov.ResolvePredicate(ctx, backend, part.PredicateToSolve)
		if err != nil {
			return fail("predicate not found"), nil
		}

		predicates[i] = pred
	}

	results := make([]partResult, len(sol.Data))

	group, gctx := errgroup.WithContext(ctx)

	for i, part := range sol.Data {
		i, part := i, part
		pred := predicates[i]

		group.Go(func() error {
			res, err := validatePart(gctx, ov, resolver, part, pred, cfg)
			if err != nil {
				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		var fe *failError
		if xerrors.As(err, &fe) {
			return fail(fe.reason), nil
		}

		if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
			return Outcome{}, errs.NewCancellationError()
		}

		return Outcome{}, xerrors.Errorf("couldn't validate solution: %v", err)
	}

	var outcome Outcome
	outcome.Success = true

	for _, res := range results {
		outcome.Utility += res.utility
		outcome.Gas += res.gas
	}

	return outcome, nil
}

// failError carries an expected ValidationFailure reason across the
// errgroup boundary without being treated as a fatal Go error.
type failError struct {
	reason string
}

func (e *failError) Error() string {
	return e.reason
}

func validatePart(ctx context.Context, ov *overlay.Overlay, resolver vm.Resolver, part types.SolutionPart, pred types.Predicate, cfg Config) (partResult, error) {
	var res partResult
	var slots []vm.Slot

	for _, program := range pred.StateReadPrograms {
		prog, err := resolver.StateRead(program)
		if err != nil {
			return partResult{}, &failError{reason: "VM decode error: " + err.Error()}
		}

		out, gas, err := prog.Run(ctx, part.PredicateToSolve.Contract, ov)
		if err != nil {
			return partResult{}, &failError{reason: "state-read program failed: " + err.Error()}
		}

		if gas > cfg.GasCeiling {
			return partResult{}, &failError{reason: "gas limit exceeded"}
		}

		res.gas += gas
		slots = append(slots, out...)
	}

	input := vm.ConstraintInput{
		Slots:             slots,
		DecisionVariables: part.DecisionVariables,
		TransientData:     part.TransientData,
		StateMutations:    part.StateMutations,
	}

	for _, program := range pred.ConstraintPrograms {
		prog, err := resolver.Constraint(program)
		if err != nil {
			return partResult{}, &failError{reason: "VM decode error: " + err.Error()}
		}

		verdict, err := prog.Run(ctx, input)
		if err != nil {
			return partResult{}, &failError{reason: "constraint program failed: " + err.Error()}
		}

		if verdict.Gas > cfg.GasCeiling {
			return partResult{}, &failError{reason: "gas limit exceeded"}
		}

		if !verdict.Satisfied {
			return partResult{}, &failError{reason: "constraint unsatisfied"}
		}

		res.gas += verdict.Gas
		res.utility += verdict.Utility
	}

	return res, nil
}
