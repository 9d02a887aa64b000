package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wmde/qsbot/auth"
	"github.com/wmde/qsbot/common"
	"github.com/wmde/qsbot/executor"
	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/queue"
	"github.com/wmde/qsbot/qserrors"
)

// WikiClient is what the scheduler needs from a per-site wiki client: it
// must resolve titles for the parser, act as the executor's WikiAPI, and
// accept a resolved credential before a batch starts issuing writes.
type WikiClient interface {
	qsparse.Resolver
	executor.WikiAPI
	Authenticate(ctx context.Context, cred *auth.BotCredential) error
}

// CredentialResolver resolves the bot credential a batch should execute
// under; satisfied by *auth.Store composed with *auth.Cache.
type CredentialResolver interface {
	Resolve(ctx context.Context, batchID int64) (*auth.BotCredential, error)
}

// ClientFactory returns the wiki client to use for a given site key (e.g.
// "wikidata", "commons"), constructed once per scheduler and reused across
// batches.
type ClientFactory func(site string) (WikiClient, error)

// Gateway is the subset of *queue.Gateway the scheduler depends on, kept
// as an interface so the scheduler's polling/concurrency logic can be unit
// tested against a fake instead of a live MySQL instance.
type Gateway interface {
	ResetAllRunning(ctx context.Context, host string) (int64, error)
	AcquireNextBatch(ctx context.Context, excludeBatchIDs []int64) (*queue.Batch, error)
	ClaimBatch(ctx context.Context, batchID int64, host string) error
	NextCommand(ctx context.Context, batchID int64) (*queue.Command, error)
	MarkCommandRunning(ctx context.Context, commandID int64) error
	FinishCommand(ctx context.Context, commandID, batchID int64, status queue.CommandStatus, errText, jsonMeta, lastItem string) error
	FinishBatch(ctx context.Context, batchID int64, status queue.BatchStatus) error
	BatchStillRunnable(ctx context.Context, batchID int64) (bool, error)
}

// Config configures one Scheduler instance.
type Config struct {
	Host         string        // identifies this process in RunningOnHost
	IdlePoll     time.Duration // default 1s
	SeppukuAfter time.Duration // default 60s (used when 0); a negative value disables self-termination
}

func (c Config) withDefaults() Config {
	if c.IdlePoll == 0 {
		c.IdlePoll = time.Second
	}
	if c.SeppukuAfter == 0 {
		c.SeppukuAfter = 60 * time.Second
	}
	return c
}

// Scheduler is the specification's C7: it polls the queue gateway for
// runnable batches, respects the ledger's per-user concurrency cap, and
// drives each batch's commands through the executor until the batch is
// DONE, STOP'd, or BLOCKED.
type Scheduler struct {
	cfg         Config
	gateway     Gateway
	ledger      *Ledger
	clients     ClientFactory
	credentials CredentialResolver
	notify      queue.EventPublisher
	logger      *common.ContextLogger

	mu      sync.Mutex
	running map[int64]string // batch id -> owner user, for AcquireNextBatch's exclude list

	lastProgress atomic64
}

// New builds a Scheduler. notify may be queue.NoopNotifier{} if batch
// lifecycle events aren't being published anywhere. credentials may be nil,
// in which case runBatch skips authentication entirely (the wiki client is
// assumed to already be logged in, e.g. in tests).
func New(cfg Config, gateway Gateway, ledger *Ledger, clients ClientFactory, credentials CredentialResolver, notify queue.EventPublisher, logger *common.ContextLogger) *Scheduler {
	return &Scheduler{
		cfg:         cfg.withDefaults(),
		gateway:     gateway,
		ledger:      ledger,
		clients:     clients,
		credentials: credentials,
		notify:      notify,
		logger:      logger,
		running:     make(map[int64]string),
	}
}

// Run resets stale RUN-state batches from a previous incarnation of this
// host, then polls forever until ctx is cancelled or the seppuku watchdog
// decides to exit the process. It never returns nil during normal
// operation except via ctx cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	n, err := s.gateway.ResetAllRunning(ctx, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("scheduler: reset running batches: %w", err)
	}
	if n > 0 && s.logger != nil {
		s.logger.WithField("count", n).Info("reclaimed stale running batches")
	}

	s.lastProgress.store(time.Now())

	var wg sync.WaitGroup
	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.seppukuWatchdog(watchdogCtx)
	}()

	ticker := time.NewTicker(s.cfg.IdlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	batch, err := s.gateway.AcquireNextBatch(ctx, s.excludedIDs())
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("acquire next batch failed")
		}
		return
	}
	if batch == nil {
		return
	}

	ok, err := s.ledger.TryAcquire(ctx, batch.OwnerUser, batch.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("ledger acquire failed")
		}
		return
	}
	if !ok {
		// user is already at their concurrency cap; leave it for later
		return
	}

	s.markRunning(batch.ID, batch.OwnerUser)
	go s.runBatch(ctx, batch)
}

func (s *Scheduler) runBatch(ctx context.Context, batch *queue.Batch) {
	defer s.unmarkRunning(batch.ID)
	defer func() {
		if err := s.ledger.Release(context.Background(), batch.OwnerUser, batch.ID); err != nil && s.logger != nil {
			s.logger.WithError(err).Warn("ledger release failed")
		}
	}()

	log := s.logger
	if log != nil {
		log = log.WithFields(map[string]interface{}{"batch_id": batch.ID, "user": batch.OwnerUser})
	}

	client, err := s.clients(batch.Site)
	if err != nil {
		if log != nil {
			log.WithError(err).Error("no wiki client for site")
		}
		return
	}

	if err := s.gateway.ClaimBatch(ctx, batch.ID, s.cfg.Host); err != nil {
		if log != nil {
			log.WithError(err).Error("claim batch failed")
		}
		return
	}

	if s.credentials != nil {
		cred, err := s.credentials.Resolve(ctx, batch.ID)
		if err != nil {
			if log != nil {
				log.WithError(err).Error("resolve credential failed")
			}
			return
		}
		if err := client.Authenticate(ctx, cred); err != nil {
			if log != nil {
				log.WithError(err).Error("authenticate wiki client failed")
			}
			return
		}
	}

	bx := executor.NewBatch(client, batch.OwnerUser, batchSummary(batch), batch.LastItem, s.logger)

	for {
		s.lastProgress.store(time.Now())

		runnable, err := s.gateway.BatchStillRunnable(ctx, batch.ID)
		if err != nil {
			if log != nil {
				log.WithError(err).Error("check batch runnable failed")
			}
			return
		}
		if !runnable {
			return
		}

		cmd, err := s.gateway.NextCommand(ctx, batch.ID)
		if err != nil {
			if log != nil {
				log.WithError(err).Error("fetch next command failed")
			}
			return
		}
		if cmd == nil {
			s.finishBatch(ctx, batch, queue.BatchDone)
			return
		}

		if err := s.gateway.MarkCommandRunning(ctx, cmd.ID); err != nil && log != nil {
			log.WithError(err).Warn("mark command running failed")
		}

		pc, parseErr := qsparse.ParseLine(cmd.RawLine, client)
		if parseErr != nil {
			s.finishCommand(ctx, cmd, batch.ID, queue.CommandError, parseErr.Error(), nil, "")
			continue
		}

		result := bx.Execute(ctx, pc)
		if result.Err != nil {
			switch {
			case errors.Is(result.Err, qserrors.ErrUserBlocked):
				s.finishCommand(ctx, cmd, batch.ID, queue.CommandBlocked, result.Err.Error(), result.Actions, "")
				s.finishBatch(ctx, batch, queue.BatchBlocked)
				return
			case errors.Is(result.Err, qserrors.ErrOperatorStop):
				s.finishBatch(ctx, batch, queue.BatchStopped)
				return
			default:
				s.finishCommand(ctx, cmd, batch.ID, queue.CommandError, result.Err.Error(), result.Actions, "")
				continue
			}
		}

		// last_item only ever advances on a DONE command, per the
		// specification's invariant; bx's cursor already reflects that
		// rule, so it's safe to persist unconditionally here.
		s.finishCommand(ctx, cmd, batch.ID, queue.CommandDone, "", result.Actions, bx.LastEntityID())
	}
}

// batchSummary appends the toollabs batch-link tag every wire action's
// summary carries, joined onto any user-supplied batch summary with "; ".
func batchSummary(batch *queue.Batch) string {
	tag := fmt.Sprintf("[[:toollabs:quickstatements/#/batch/%d|batch #%d]]", batch.ID, batch.ID)
	if batch.Summary == "" {
		return tag
	}
	return batch.Summary + "; " + tag
}

func (s *Scheduler) finishCommand(ctx context.Context, cmd *queue.Command, batchID int64, status queue.CommandStatus, errText string, actions []executor.ActionOutcome, lastItem string) {
	meta := ""
	if actions != nil {
		if b, err := json.Marshal(actions); err == nil {
			meta = string(b)
		}
	}
	if err := s.gateway.FinishCommand(ctx, cmd.ID, batchID, status, errText, meta, lastItem); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("finish command failed")
	}
}

func (s *Scheduler) finishBatch(ctx context.Context, batch *queue.Batch, status queue.BatchStatus) {
	if err := s.gateway.FinishBatch(ctx, batch.ID, status); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("finish batch failed")
		return
	}
	if err := s.notify.PublishBatchEvent(queue.BatchEvent{
		BatchID:   batch.ID,
		OwnerUser: batch.OwnerUser,
		Site:      batch.Site,
		Status:    status,
		At:        time.Now(),
	}); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("publish batch event failed")
	}
}

func (s *Scheduler) markRunning(id int64, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = user
}

func (s *Scheduler) unmarkRunning(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func (s *Scheduler) excludedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// seppukuWatchdog implements §4.7's self-termination: if no batch has
// advanced in SeppukuAfter, and there is still runnable work sitting in
// the queue, something is wedged (a deadlocked lock, a hung API call) and
// the cheapest fix is to let the external orchestrator restart the
// process, rather than try to untangle it in place.
func (s *Scheduler) seppukuWatchdog(ctx context.Context) {
	if s.cfg.SeppukuAfter <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SeppukuAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idleFor := time.Since(s.lastProgress.load())
			if idleFor < s.cfg.SeppukuAfter {
				continue
			}
			batch, err := s.gateway.AcquireNextBatch(ctx, s.excludedIDs())
			if err != nil || batch == nil {
				continue
			}
			if s.logger != nil {
				s.logger.WithField("idle_seconds", idleFor.Seconds()).Error("no progress while work is pending; self-terminating")
			}
			seppukuExit(0)
		}
	}
}
