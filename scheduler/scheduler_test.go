package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wmde/qsbot/auth"
	"github.com/wmde/qsbot/qscompile"
	"github.com/wmde/qsbot/qsvalue"
	"github.com/wmde/qsbot/queue"
	"github.com/wmde/qsbot/wikiapi"
)

type fakeGateway struct {
	mu         sync.Mutex
	batch      *queue.Batch
	commands   []*queue.Command
	nextIdx    int
	finished   []queue.CommandStatus
	finalBatch queue.BatchStatus
	claimed    bool
}

func (g *fakeGateway) ResetAllRunning(ctx context.Context, host string) (int64, error) { return 0, nil }

func (g *fakeGateway) AcquireNextBatch(ctx context.Context, exclude []int64) (*queue.Batch, error) {
	return g.batch, nil
}

func (g *fakeGateway) ClaimBatch(ctx context.Context, batchID int64, host string) error {
	g.claimed = true
	return nil
}

func (g *fakeGateway) NextCommand(ctx context.Context, batchID int64) (*queue.Command, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextIdx >= len(g.commands) {
		return nil, nil
	}
	cmd := g.commands[g.nextIdx]
	g.nextIdx++
	return cmd, nil
}

func (g *fakeGateway) MarkCommandRunning(ctx context.Context, commandID int64) error {
	return nil
}

func (g *fakeGateway) FinishCommand(ctx context.Context, commandID, batchID int64, status queue.CommandStatus, errText, jsonMeta, lastItem string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finished = append(g.finished, status)
	if lastItem != "" {
		g.batch.LastItem = lastItem
	}
	return nil
}

func (g *fakeGateway) FinishBatch(ctx context.Context, batchID int64, status queue.BatchStatus) error {
	g.finalBatch = status
	return nil
}

func (g *fakeGateway) BatchStillRunnable(ctx context.Context, batchID int64) (bool, error) {
	return g.finalBatch == "", nil
}

type fakeClient struct{ blocked bool }

func (c *fakeClient) ResolveTitle(title string) (qsvalue.EntityRef, error) {
	return qsvalue.EntityRef{ID: "Q1"}, nil
}

func (c *fakeClient) LoadEntity(ctx context.Context, id string, knownRevision int64) (*qscompile.EntitySnapshot, error) {
	return &qscompile.EntitySnapshot{ID: id}, nil
}

func (c *fakeClient) Execute(ctx context.Context, action string, params map[string]string) (wikiapi.ExecuteResult, error) {
	if action == "wbeditentity" {
		return wikiapi.ExecuteResult{Raw: []byte(`{"entity":{"id":"Q999"}}`)}, nil
	}
	return wikiapi.ExecuteResult{}, nil
}

func (c *fakeClient) IsUserBlocked(ctx context.Context, username string) (bool, error) {
	return c.blocked, nil
}

func (c *fakeClient) Authenticate(ctx context.Context, cred *auth.BotCredential) error {
	return nil
}

func newTestScheduler(t *testing.T, gw *fakeGateway, client *fakeClient) *Scheduler {
	ledger := newTestLedger(t, 2)
	return New(Config{Host: "test-host"}, gw, ledger, func(site string) (WikiClient, error) {
		return client, nil
	}, nil, queue.NoopNotifier{}, nil)
}

func TestRunBatchCompletesAllCommandsThenMarksDone(t *testing.T) {
	gw := &fakeGateway{
		batch: &queue.Batch{ID: 1, OwnerUser: "Tester", Site: "wikidata", Summary: "test batch"},
		commands: []*queue.Command{
			{ID: 10, BatchID: 1, Sequence: 1, RawLine: "CREATE"},
		},
	}
	s := newTestScheduler(t, gw, &fakeClient{})

	s.runBatch(context.Background(), gw.batch)

	require.True(t, gw.claimed)
	require.Equal(t, []queue.CommandStatus{queue.CommandDone}, gw.finished)
	require.Equal(t, queue.BatchDone, gw.finalBatch)
}

func TestRunBatchStopsOnUserBlocked(t *testing.T) {
	// the executor only checks block status every 20 commands, so the
	// batch needs at least that many queued before the block takes effect.
	commands := make([]*queue.Command, 20)
	for i := range commands {
		commands[i] = &queue.Command{ID: int64(30 + i), BatchID: 3, Sequence: i + 1, RawLine: "CREATE"}
	}
	gw := &fakeGateway{
		batch:    &queue.Batch{ID: 3, OwnerUser: "Tester", Site: "wikidata", Summary: "test batch"},
		commands: commands,
	}
	s := newTestScheduler(t, gw, &fakeClient{blocked: true})

	s.runBatch(context.Background(), gw.batch)

	require.Equal(t, queue.BatchBlocked, gw.finalBatch)
}

func TestBatchSummaryAppendsToollabsTag(t *testing.T) {
	require.Equal(t, "[[:toollabs:quickstatements/#/batch/7|batch #7]]", batchSummary(&queue.Batch{ID: 7}))
	require.Equal(t, "my summary; [[:toollabs:quickstatements/#/batch/7|batch #7]]", batchSummary(&queue.Batch{ID: 7, Summary: "my summary"}))
}

func TestPollOnceRespectsLedgerCap(t *testing.T) {
	gw := &fakeGateway{batch: &queue.Batch{ID: 1, OwnerUser: "Tester", Site: "wikidata"}}
	ledger := newTestLedger(t, 1)
	ok, err := ledger.TryAcquire(context.Background(), "Tester", 99)
	require.NoError(t, err)
	require.True(t, ok)

	s := New(Config{Host: "test-host"}, gw, ledger, func(site string) (WikiClient, error) {
		return &fakeClient{}, nil
	}, nil, queue.NoopNotifier{}, nil)

	// Tester already holds the only slot (batch 99), so pollOnce must leave
	// the acquired batch 1 unstarted.
	s.pollOnce(context.Background())
	require.Empty(t, s.excludedIDs())
}
