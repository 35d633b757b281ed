package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactum-chain/pactum/address"
	"github.com/pactum-chain/pactum/store/memstore"
	"github.com/pactum-chain/pactum/types"
)

func TestOverlay_SetThenGet(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	o, err := Begin(ctx, backend)
	require.NoError(t, err)

	var contract address.ContentAddress
	key := types.Key{1}

	o.Set(contract, key, types.Value{7})

	v, err := o.Get(ctx, contract, key)
	require.NoError(t, err)
	require.Equal(t, types.Value{7}, v)
}

func TestOverlay_PushFoldDiscard(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	parent, err := Begin(ctx, backend)
	require.NoError(t, err)

	var contract address.ContentAddress
	parent.Set(contract, types.Key{1}, types.Value{1})

	failing := parent.Push()
	failing.Set(contract, types.Key{2}, types.Value{2})
	failing.Discard()

	v, err := parent.Get(ctx, contract, types.Key{2})
	require.NoError(t, err)
	require.True(t, v.IsEmpty())

	succeeding := parent.Push()
	succeeding.Set(contract, types.Key{3}, types.Value{3})
	parent.Fold(succeeding)

	v, err = parent.Get(ctx, contract, types.Key{3})
	require.NoError(t, err)
	require.Equal(t, types.Value{3}, v)

	v, err = parent.Get(ctx, contract, types.Key{1})
	require.NoError(t, err)
	require.Equal(t, types.Value{1}, v)
}

func TestOverlay_FallsThroughToBase(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	var contract address.ContentAddress
	require.NoError(t, backend.UpdateState(ctx, contract, types.Key{5}, types.Value{55}))

	o, err := Begin(ctx, backend)
	require.NoError(t, err)

	v, err := o.Get(ctx, contract, types.Key{5})
	require.NoError(t, err)
	require.Equal(t, types.Value{55}, v)
}
