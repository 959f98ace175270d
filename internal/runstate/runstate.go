package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairdoc-ai/fairdoc/config"
)

// Run statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const keyPrefix = "run:"

// Record is the externally visible state of one document run.
type Record struct {
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	QualityScore *float64  `json:"quality_score,omitempty"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repository stores run records in Redis, keyed by filename. Losing a
// record is harmless; the durable state lives in Postgres.
type Repository struct {
	client *redis.Client
}

// Connect opens a Redis connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Repository{client: client}, nil
}

// Set stores the run record for a filename.
func (r *Repository) Set(ctx context.Context, rec Record) error {
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+rec.Filename, data, 0).Err()
}

// Get returns the run record for a filename, or nil when absent.
func (r *Repository) Get(ctx context.Context, filename string) (*Record, error) {
	val, err := r.client.Get(ctx, keyPrefix+filename).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
