// Package scheduler implements the specification's C7: the process-wide
// loop that picks up runnable batches, enforces a per-user concurrency
// cap, and self-terminates when it looks stuck.
package scheduler

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Ledger tracks how many batches each user currently has in flight,
// shared across every scheduler process via Redis sorted sets so a
// horizontally-scaled deployment still enforces one global cap per user.
// Each user's key holds the ids of that user's running batches (ZCARD to
// count, ZADD to claim, ZREM to release).
type Ledger struct {
	client    *redis.Client
	keyPrefix string
	maxPerUser int64
}

// LedgerConfig configures the ledger.
type LedgerConfig struct {
	RedisURL   string
	KeyPrefix  string // defaults to "qsbot:running:"
	MaxPerUser int64  // defaults to 2
}

// NewLedger connects to Redis and verifies the connection with a Ping.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "qsbot:running:"
	}
	if cfg.MaxPerUser == 0 {
		cfg.MaxPerUser = 2
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("scheduler: connect to redis: %w", err)
	}

	return &Ledger{client: client, keyPrefix: cfg.KeyPrefix, maxPerUser: cfg.MaxPerUser}, nil
}

func (l *Ledger) userKey(user string) string {
	return l.keyPrefix + user
}

// TryAcquire reports whether user has a free concurrency slot and, if so,
// claims it atomically for batchID. A user already at the cap is refused
// rather than queued; the scheduler simply leaves that batch for the next
// poll.
func (l *Ledger) TryAcquire(ctx context.Context, user string, batchID int64) (bool, error) {
	// The count check and the claim run as one server-side script, so two
	// processes cannot both take a user's last free slot.
	acquire := redis.NewScript(`
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[1]) then return 0 end
return redis.call('ZADD', KEYS[1], ARGV[2], ARGV[2])`)
	added, err := acquire.Run(ctx, l.client, []string{l.userKey(user)}, l.maxPerUser, fmt.Sprintf("%d", batchID)).Int64()
	if err != nil {
		return false, fmt.Errorf("scheduler: acquire slot for %s: %w", user, err)
	}
	return added > 0, nil
}

// Release frees the slot batchID held for user, called once the batch
// executor returns regardless of outcome.
func (l *Ledger) Release(ctx context.Context, user string, batchID int64) error {
	if err := l.client.ZRem(ctx, l.userKey(user), fmt.Sprintf("%d", batchID)).Err(); err != nil {
		return fmt.Errorf("scheduler: release slot for %s: %w", user, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (l *Ledger) Close() error {
	return l.client.Close()
}
