package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, maxPerUser int64) *Ledger {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ledger, err := NewLedger(context.Background(), LedgerConfig{
		RedisURL:   "redis://" + mr.Addr(),
		MaxPerUser: maxPerUser,
	})
	require.NoError(t, err)
	return ledger
}

func TestLedgerEnforcesPerUserCap(t *testing.T) {
	ledger := newTestLedger(t, 2)
	ctx := context.Background()

	ok, err := ledger.TryAcquire(ctx, "Tester", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.TryAcquire(ctx, "Tester", 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.TryAcquire(ctx, "Tester", 3)
	require.NoError(t, err)
	require.False(t, ok, "third batch should be refused a slot at the cap")

	require.NoError(t, ledger.Release(ctx, "Tester", 1))

	ok, err = ledger.TryAcquire(ctx, "Tester", 3)
	require.NoError(t, err)
	require.True(t, ok, "releasing a slot should free it for another batch")
}

func TestLedgerSeparatesUsers(t *testing.T) {
	ledger := newTestLedger(t, 1)
	ctx := context.Background()

	ok, err := ledger.TryAcquire(ctx, "Alice", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.TryAcquire(ctx, "Bob", 2)
	require.NoError(t, err)
	require.True(t, ok, "a different user's cap is independent")
}
