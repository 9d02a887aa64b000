//go:build integration

package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	qstesting "github.com/wmde/qsbot/containers/testing"
	"github.com/wmde/qsbot/db"
	"github.com/wmde/qsbot/queue"
)

func TestGatewayLifecycleAgainstRealMySQL(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup, err := qstesting.SetupMySQL(ctx, t, nil)
	require.NoError(t, err)
	defer cleanup()

	gdb, err := db.Open(dsn)
	require.NoError(t, err)

	gw := queue.NewGateway(gdb)
	require.NoError(t, gw.Migrate())

	require.NoError(t, gdb.Create(&queue.Batch{
		OwnerUser: "Tester",
		Site:      "wikidata",
		Status:    queue.BatchInit,
		Summary:   "integration test batch",
	}).Error)

	batch, err := gw.AcquireNextBatch(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, batch)

	require.NoError(t, gw.ClaimBatch(ctx, batch.ID, "test-host"))

	require.NoError(t, gdb.Create(&queue.Command{
		BatchID:  batch.ID,
		Sequence: 1,
		RawLine:  `LAST|Len|"hello"`,
		Status:   queue.CommandInit,
	}).Error)

	cmd, err := gw.NextCommand(ctx, batch.ID)
	require.NoError(t, err)
	require.NotNil(t, cmd)

	require.NoError(t, gw.MarkCommandRunning(ctx, cmd.ID))

	// a worker that died right after marking the command RUN, before it
	// reached a terminal status, must not leave it stuck there forever:
	// the next ClaimBatch on this batch resets it back to INIT.
	require.NoError(t, gw.ClaimBatch(ctx, batch.ID, "test-host"))
	stillPending, err := gw.NextCommand(ctx, batch.ID)
	require.NoError(t, err)
	require.NotNil(t, stillPending)
	require.Equal(t, cmd.ID, stillPending.ID)

	require.NoError(t, gw.FinishCommand(ctx, cmd.ID, batch.ID, queue.CommandDone, "", "", "Q1"))

	reloaded, err := gw.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, "Q1", reloaded.LastItem)

	next, err := gw.NextCommand(ctx, batch.ID)
	require.NoError(t, err)
	require.Nil(t, next)

	require.NoError(t, gw.FinishBatch(ctx, batch.ID, queue.BatchDone))

	runnable, err := gw.BatchStillRunnable(ctx, batch.ID)
	require.NoError(t, err)
	require.False(t, runnable)

	reclaimed, err := gw.ResetAllRunning(ctx, "test-host")
	require.NoError(t, err)
	require.Zero(t, reclaimed)
}
