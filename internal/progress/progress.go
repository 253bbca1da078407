// Package progress publishes per-run ingestion progress so other processes
// can watch a long import.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// DefaultTTL is how long a snapshot is kept after its last update.
const DefaultTTL = 24 * time.Hour

// Snapshot is the state of one run after its latest committed batch.
type Snapshot struct {
	RunID        string    `json:"run_id"`
	Table        string    `json:"table"`
	Status       string    `json:"status"`
	RowsInserted int64     `json:"rows_inserted"`
	Batches      int       `json:"batches"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tracker records snapshots. Update errors are reported but never stop a run.
type Tracker interface {
	Update(ctx context.Context, s Snapshot) error
	Close() error
}

// Nop discards snapshots.
type Nop struct{}

func (Nop) Update(context.Context, Snapshot) error { return nil }
func (Nop) Close() error                           { return nil }

// Redis stores each snapshot as JSON under csvload:progress:<run_id>.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis connects to addr (host:port or a redis:// URL) and pings it.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	opts, err := redisOptions(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("progress: redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(client, ttl), nil
}

// NewRedisFromClient wraps an existing client. ttl <= 0 uses DefaultTTL.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, now: time.Now}
}

func redisOptions(addr string) (*redis.Options, error) {
	if addr == "" {
		return nil, errors.New("progress: redis address is empty")
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

// Key returns the redis key holding runID's snapshot.
func Key(runID string) string {
	return fmt.Sprintf("csvload:progress:%s", runID)
}

func (r *Redis) Update(ctx context.Context, s Snapshot) error {
	if s.RunID == "" {
		return errors.New("progress: run id is empty")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = r.now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, Key(s.RunID), data, r.ttl).Err()
}

// Get returns the latest snapshot for runID; ok is false when none exists.
func (r *Redis) Get(ctx context.Context, runID string) (s Snapshot, ok bool, err error) {
	data, err := r.client.Get(ctx, Key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, false, fmt.Errorf("progress: decode %s: %w", Key(runID), err)
	}
	return s, true, nil
}

func (r *Redis) Close() error { return r.client.Close() }
