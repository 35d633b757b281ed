package refvm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/store/memstore"
	"github.com/pactum-chain/pactum/types"
	"github.com/pactum-chain/pactum/vm"
)

func TestReadKeys(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	var contract address.ContentAddress
	require.NoError(t, backend.UpdateState(ctx, contract, types.Key{1}, types.Value{11}))

	prog := ReadKeys(types.Key{1}, types.Key{2})

	slots, gas, err := prog.Run(ctx, contract, backend)
	require.NoError(t, err)
	require.Equal(t, []vm.Slot{{11}, nil}, slots)
	require.EqualValues(t, 2, gas)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	readProg := types.Program("read-key-1")
	reg.RegisterStateRead(readProg, ReadKeys(types.Key{1}))

	constraintProg := types.Program("always-ok")
	reg.RegisterConstraint(constraintProg, AlwaysSatisfied(5, 1))

	got, err := reg.StateRead(readProg)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = reg.StateRead(types.Program("unknown"))
	require.Error(t, err)

	gotC, err := reg.Constraint(constraintProg)
	require.NoError(t, err)
	require.NotNil(t, gotC)

	_, err = reg.Constraint(types.Program("unknown"))
	require.Error(t, err)
}

func TestSlotEqualsDecisionVariable(t *testing.T) {
	ctx := context.Background()

	prog := SlotEqualsDecisionVariable(10)

	verdict, err := prog.Run(ctx, vm.ConstraintInput{
		Slots:             []vm.Slot{{5}},
		DecisionVariables: []types.Value{{5}},
	})
	require.NoError(t, err)
	require.True(t, verdict.Satisfied)
	require.EqualValues(t, 10, verdict.Gas)

	verdict, err = prog.Run(ctx, vm.ConstraintInput{
		Slots:             []vm.Slot{{5}},
		DecisionVariables: []types.Value{{6}},
	})
	require.NoError(t, err)
	require.False(t, verdict.Satisfied)
}
