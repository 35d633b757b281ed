package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/store/memstore"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/validate"
	"github.com/pactum-chain/pactum/vm"
	"github.com/pactum-chain/pactum/vm/refvm"
)

func TestService_QueryState(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()

	var contract address.ContentAddress
	require.NoError(t, backend.UpdateState(ctx, contract, types.Key{1}, types.Value{42}))

	s := New(backend, reg, validate.Config{GasCeiling: 100})

	v, err := s.QueryState(ctx, contract, types.Key{1})
	require.NoError(t, err)
	require.Equal(t, types.Value{42}, v)
}

func TestService_CheckSolution_NeverCommits(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()

	constraint := types.Program("check-always")
	reg.RegisterConstraint(constraint, refvm.AlwaysSatisfied(1, 2))
	pred := types.Predicate{ConstraintPrograms: []types.Program{constraint}}
	contract := types.Contract{Predicates: []types.Predicate{pred}}
	contractAddr, err := backend.PutContract(ctx, types.SignedContract{Contract: contract})
	require.NoError(t, err)
	predAddr, err := pred.Address()
	require.NoError(t, err)

	s := New(backend, reg, validate.Config{GasCeiling: 100})

	sol := types.Solution{Data: []types.SolutionPart{{
		PredicateToSolve: types.PredicateRef{Contract: contractAddr, Predicate: predAddr},
		StateMutations:   []types.KV{{Key: types.Key{9}, Value: types.Value{9}}},
	}}}

	outcome, err := s.CheckSolution(ctx, sol)
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.EqualValues(t, 2, outcome.Utility)

	v, err := backend.QueryState(ctx, contractAddr, types.Key{9})
	require.NoError(t, err)
	require.True(t, v.IsEmpty())
}

func TestService_CheckSolutionWithContracts_ResolvesAdhocPredicate(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()

	constraint := types.Program("adhoc-always")
	reg.RegisterConstraint(constraint, refvm.AlwaysSatisfied(1, 1))
	pred := types.Predicate{ConstraintPrograms: []types.Program{constraint}}
	contract := types.Contract{Predicates: []types.Predicate{pred}}

	contractAddr, err := contract.Address()
	require.NoError(t, err)
	predAddr, err := pred.Address()
	require.NoError(t, err)

	// Never deployed through PutContract.
	signed := types.SignedContract{Contract: contract}

	s := New(backend, reg, validate.Config{GasCeiling: 100})

	sol := types.Solution{Data: []types.SolutionPart{{
		PredicateToSolve: types.PredicateRef{Contract: contractAddr, Predicate: predAddr},
	}}}

	outcome, err := s.CheckSolutionWithContracts(ctx, sol, []types.SignedContract{signed})
	require.NoError(t, err)
	require.True(t, outcome.Success)

	_, err = backend.GetContract(ctx, contractAddr)
	require.Error(t, err)
}

func TestService_QueryStateReads(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()

	var contract address.ContentAddress
	require.NoError(t, backend.UpdateState(ctx, contract, types.Key{1}, types.Value{5}))

	s := New(backend, reg, validate.Config{GasCeiling: 100})

	sol := types.Solution{Data: []types.SolutionPart{{}}}

	result, err := s.QueryStateReads(ctx, []vm.StateReadProgram{refvm.ReadKeys(types.Key{1})}, sol, 0, RequestAll)
	require.NoError(t, err)
	require.Len(t, result.Reads, 1)
	require.Equal(t, types.Key{1}, result.Reads[0].Key)
	require.Equal(t, types.Value{5}, result.Reads[0].Value)
	require.Equal(t, types.Value{5}, result.Slots[0])
}

func TestService_QueryStateReads_IndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()

	s := New(backend, reg, validate.Config{GasCeiling: 100})

	sol := types.Solution{Data: []types.SolutionPart{{}}}

	result, err := s.QueryStateReads(ctx, nil, sol, 5, RequestReads)
	require.NoError(t, err)
	require.Equal(t, "transient-data index out of range", result.Failure)
}
