package blockstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pactum-chain/pactum/overlay"
	"github.com/pactum-chain/pactum/store/memstore"
	"github.com/pactum-chain/pactum/types"
)

func TestInitialize_WritesGenesis(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	now := types.TimestampFromTime(time.Now())

	require.NoError(t, Initialize(ctx, backend, now))

	number, ts, err := ReadHead(ctx, backend)
	require.NoError(t, err)
	require.EqualValues(t, 0, number)
	require.Equal(t, now, ts)
}

func TestInitialize_NoopIfAlreadyPresent(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	first := types.TimestampFromTime(time.Now())
	require.NoError(t, Initialize(ctx, backend, first))

	later := types.Timestamp{Seconds: first.Seconds + 100}
	require.NoError(t, Initialize(ctx, backend, later))

	number, ts, err := ReadHead(ctx, backend)
	require.NoError(t, err)
	require.EqualValues(t, 0, number)
	require.Equal(t, first, ts)
}

func TestWriteHead_VisibleThroughOverlay(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()

	ov, err := overlay.Begin(ctx, backend)
	require.NoError(t, err)

	ts := types.Timestamp{Seconds: 42, Nanos: 7}
	WriteHead(ov, 3, ts)

	number, gotTs, err := ReadHead(ctx, ov)
	require.NoError(t, err)
	require.EqualValues(t, 3, number)
	require.Equal(t, ts, gotTs)
}
