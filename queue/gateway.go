package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/wmde/qsbot/db"
	"gorm.io/gorm"
)

// Gateway is the queue gateway: the only component that talks to the
// batch/command tables directly. The scheduler and executor see batches
// and commands only through its methods.
type Gateway struct {
	db *db.DB
}

// NewGateway wraps an already-open database connection.
func NewGateway(d *db.DB) *Gateway {
	return &Gateway{db: d}
}

// Migrate creates or updates the batch and command tables.
func (g *Gateway) Migrate() error {
	return g.db.Migrate(&Batch{}, &Command{})
}

// AcquireNextBatch returns the oldest batch still in INIT or RUN status
// that isn't in excludeBatchIDs (batches this process already has running
// concurrently, kept out so a single scheduler tick doesn't hand the same
// batch to two workers), or nil if there is none.
func (g *Gateway) AcquireNextBatch(ctx context.Context, excludeBatchIDs []int64) (*Batch, error) {
	var batch Batch
	q := g.db.WithContext(ctx).
		Where("status IN ?", []BatchStatus{BatchInit, BatchRunning})
	if len(excludeBatchIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeBatchIDs)
	}
	err := q.Order("created_at ASC").First(&batch).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: acquire next batch: %w", err)
	}
	return &batch, nil
}

// ClaimBatch marks a batch as running on this host. It is called once per
// worker pickup, even for a batch that was already RUN from a previous
// process incarnation, so RunningOnHost always reflects who is actually
// executing it now. Any command left RUN by a prior incarnation that never
// recorded its outcome is reset to INIT so NextCommand retries it instead
// of treating the batch as permanently stuck on that command.
func (g *Gateway) ClaimBatch(ctx context.Context, batchID int64, host string) error {
	err := g.db.WithContext(ctx).Model(&Batch{}).Where("id = ?", batchID).
		Updates(map[string]any{
			"status":          BatchRunning,
			"running_on_host": host,
			"last_activity":   time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("queue: claim batch %d: %w", batchID, err)
	}
	// Any command a prior incarnation left RUN never reached a terminal
	// status, so it belongs to a worker that died mid-command; reset it
	// to INIT so NextCommand retries it from scratch.
	if err := g.db.WithContext(ctx).Model(&Command{}).
		Where("batch_id = ? AND status = ?", batchID, CommandRunning).
		Update("status", CommandInit).Error; err != nil {
		return fmt.Errorf("queue: reset stale running commands for batch %d: %w", batchID, err)
	}
	return nil
}

// MarkCommandRunning flips one command to RUN just before the executor
// starts compiling and dispatching it, so a crash mid-command leaves a
// trace ClaimBatch can clean up on the batch's next pickup rather than
// silently re-running (or silently skipping) it.
func (g *Gateway) MarkCommandRunning(ctx context.Context, commandID int64) error {
	err := g.db.WithContext(ctx).Model(&Command{}).Where("id = ?", commandID).
		Update("status", CommandRunning).Error
	if err != nil {
		return fmt.Errorf("queue: mark command %d running: %w", commandID, err)
	}
	return nil
}

// NextCommand returns the next not-yet-processed command in sequence order
// for a batch, or nil once the batch is exhausted.
func (g *Gateway) NextCommand(ctx context.Context, batchID int64) (*Command, error) {
	var cmd Command
	err := g.db.WithContext(ctx).
		Where("batch_id = ? AND status = ?", batchID, CommandInit).
		Order("sequence ASC").
		First(&cmd).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: next command for batch %d: %w", batchID, err)
	}
	return &cmd, nil
}

// FinishCommand records a command's outcome and touches the batch's
// LastActivity so the scheduler's progress-stall detector sees the batch as
// alive. lastItem, when non-empty, is persisted as the batch's new LAST
// cursor; per the invariant that last_item only ever moves forward on a
// DONE command, callers pass "" for any other terminal status.
func (g *Gateway) FinishCommand(ctx context.Context, commandID, batchID int64, status CommandStatus, errText, jsonMeta, lastItem string) error {
	now := time.Now()
	err := g.db.WithContext(ctx).Model(&Command{}).Where("id = ?", commandID).
		Updates(map[string]any{
			"status":      status,
			"error_text":  errText,
			"json_meta":   jsonMeta,
			"finished_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("queue: finish command %d: %w", commandID, err)
	}
	return g.touchBatch(ctx, batchID, lastItem)
}

func (g *Gateway) touchBatch(ctx context.Context, batchID int64, lastItem string) error {
	updates := map[string]any{"last_activity": time.Now()}
	if lastItem != "" {
		updates["last_item"] = lastItem
	}
	err := g.db.WithContext(ctx).Model(&Batch{}).Where("id = ?", batchID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("queue: touch batch %d: %w", batchID, err)
	}
	return nil
}

// FinishBatch moves a batch to its terminal status.
func (g *Gateway) FinishBatch(ctx context.Context, batchID int64, status BatchStatus) error {
	err := g.db.WithContext(ctx).Model(&Batch{}).Where("id = ?", batchID).
		Updates(map[string]any{"status": status, "last_activity": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("queue: finish batch %d: %w", batchID, err)
	}
	return nil
}

// GetBatch returns a single batch by id, used by the operator status
// surface to answer a "what is batch N doing" query without exposing the
// underlying table to it directly.
func (g *Gateway) GetBatch(ctx context.Context, batchID int64) (*Batch, error) {
	var batch Batch
	if err := g.db.WithContext(ctx).First(&batch, batchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: get batch %d: %w", batchID, err)
	}
	return &batch, nil
}

// ListCommands returns every command recorded for a batch, in sequence
// order, for the operator status surface's batch detail view.
func (g *Gateway) ListCommands(ctx context.Context, batchID int64) ([]Command, error) {
	var cmds []Command
	if err := g.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("sequence ASC").Find(&cmds).Error; err != nil {
		return nil, fmt.Errorf("queue: list commands for batch %d: %w", batchID, err)
	}
	return cmds, nil
}

// BatchStillRunnable reports whether a batch should keep being processed:
// false once an operator has set it to STOP, or it has already reached
// DONE (e.g. a racing worker finished it first).
func (g *Gateway) BatchStillRunnable(ctx context.Context, batchID int64) (bool, error) {
	var batch Batch
	if err := g.db.WithContext(ctx).Select("status").First(&batch, batchID).Error; err != nil {
		return false, fmt.Errorf("queue: check batch %d runnable: %w", batchID, err)
	}
	return batch.Status == BatchInit || batch.Status == BatchRunning, nil
}

// ResetAllRunning reclaims every batch this host had marked RUN from a
// previous incarnation back to INIT, so a restarted scheduler retries them
// instead of leaving them stuck forever pointing at a process that no
// longer exists.
func (g *Gateway) ResetAllRunning(ctx context.Context, host string) (int64, error) {
	result := g.db.WithContext(ctx).Model(&Batch{}).
		Where("running_on_host = ? AND status = ?", host, BatchRunning).
		Updates(map[string]any{"status": BatchInit, "running_on_host": ""})
	if result.Error != nil {
		return 0, fmt.Errorf("queue: reset running batches for %s: %w", host, result.Error)
	}
	return result.RowsAffected, nil
}
