package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/store/memstore"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/vm/refvm"
)

func deployAlwaysSatisfied(t *testing.T, ctx context.Context, backend *memstore.Backend, reg *refvm.Registry) types.PredicateRef {
	t.Helper()

	constraint := types.Program("always-ok")
	reg.RegisterConstraint(constraint, refvm.AlwaysSatisfied(1, 1))

	pred := types.Predicate{ConstraintPrograms: []types.Program{constraint}}
	contract := types.Contract{Predicates: []types.Predicate{pred}}

	contractAddr, err := backend.PutContract(ctx, types.SignedContract{Contract: contract})
	require.NoError(t, err)

	predAddr, err := pred.Address()
	require.NoError(t, err)

	return types.PredicateRef{Contract: contractAddr, Predicate: predAddr}
}

func TestPool_SubmitDedup(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()
	ref := deployAlwaysSatisfied(t, ctx, backend, reg)

	p := New(backend, reg, Config{})

	sol := types.Solution{Data: []types.SolutionPart{{PredicateToSolve: ref}}}

	addr1, err := p.Submit(ctx, sol, 0)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	addr2, err := p.Submit(ctx, sol, 0)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Equal(t, 1, p.Len())

	polled, err := backend.ListSolutionsPool(ctx, store.Page{})
	require.NoError(t, err)
	require.Len(t, polled, 1)
}

func TestPool_SubmitRejectsEmptySolution(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()
	p := New(backend, reg, Config{})

	_, err := p.Submit(ctx, types.Solution{}, 0)
	require.Error(t, err)
}

func TestPool_SubmitOversize(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()
	ref := deployAlwaysSatisfied(t, ctx, backend, reg)

	p := New(backend, reg, Config{MaxSolutionBytes: 4})

	sol := types.Solution{Data: []types.SolutionPart{{
		PredicateToSolve:  ref,
		DecisionVariables: []types.Value{{1, 2, 3, 4, 5}},
	}}}

	_, err := p.Submit(ctx, sol, 0)
	require.Error(t, err)
}

func TestPool_DryValidateAdvisoryDoesNotBlockAdmission(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()

	constraint := types.Program("never-ok")
	reg.RegisterConstraint(constraint, refvm.NeverSatisfied(1))

	pred := types.Predicate{ConstraintPrograms: []types.Program{constraint}}
	contract := types.Contract{Predicates: []types.Predicate{pred}}
	contractAddr, err := backend.PutContract(ctx, types.SignedContract{Contract: contract})
	require.NoError(t, err)
	predAddr, err := pred.Address()
	require.NoError(t, err)

	p := New(backend, reg, Config{})

	sol := types.Solution{Data: []types.SolutionPart{{
		PredicateToSolve: types.PredicateRef{Contract: contractAddr, Predicate: predAddr},
	}}}

	addr, err := p.Submit(ctx, sol, 0)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	p.mu.Lock()
	entry := p.set[addr]
	p.mu.Unlock()
	require.NotNil(t, entry.LastDryCheck)
	require.False(t, entry.LastDryCheck.Success)
}

func TestPool_SweepEvictsStale(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	reg := refvm.NewRegistry()
	ref := deployAlwaysSatisfied(t, ctx, backend, reg)

	p := New(backend, reg, Config{MaxAgeBlocks: 2})

	sol := types.Solution{Data: []types.SolutionPart{{PredicateToSolve: ref}}}
	addr, err := p.Submit(ctx, sol, 1)
	require.NoError(t, err)

	require.NoError(t, p.Sweep(ctx, 2))
	require.Equal(t, 1, p.Len())

	require.NoError(t, p.Sweep(ctx, 5))
	require.Equal(t, 0, p.Len())

	outcomes, err := backend.GetSolutionOutcomes(ctx, []address.ContentAddress{addr})
	require.NoError(t, err)
	require.Equal(t, "stale", outcomes[addr].Reason)
}

func TestPool_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := memstore.New()
	reg := refvm.NewRegistry()
	ref := deployAlwaysSatisfied(t, ctx, backend, reg)

	p := New(backend, reg, Config{})

	ch := p.Watch(ctx)

	sol := types.Solution{Data: []types.SolutionPart{{PredicateToSolve: ref}}}
	_, err := p.Submit(ctx, sol, 0)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		require.Equal(t, 1, ev.Len)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pool event")
	}
}
