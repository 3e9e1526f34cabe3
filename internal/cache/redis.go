// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/toshiishere/network-programming/internal/models"
)

// DefaultQueueName is the Redis list (queue) name for finished match results.
const DefaultQueueName = "tetris_results"

// MatchResultRecord holds the minimal info needed by the historian microservice.
type MatchResultRecord struct {
	ID      uuid.UUID           `json:"id"`
	Room    string              `json:"room"`
	Host    models.PlayerResult `json:"host"`
	Oppo    models.PlayerResult `json:"oppo"`
	Winner  string              `json:"winner"`
	EndedAt int64               `json:"ended_at"` // epoch millis
}

// NewRecord converts a game log into a queue record with a fresh id.
func NewRecord(g models.GameLog) MatchResultRecord {
	ended := g.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	return MatchResultRecord{
		ID:      uuid.New(),
		Room:    g.Room,
		Host:    g.HostResult,
		Oppo:    g.OppoResult,
		Winner:  g.Winner(),
		EndedAt: ended.UnixMilli(),
	}
}

// Connect opens a Redis client and checks it with a ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher pushes finished matches onto a Redis list.
type Publisher struct {
	rdb   redis.Cmdable
	queue string
}

func NewPublisher(rdb redis.Cmdable, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue}
}

// PublishMatchResult serializes the result to JSON, then pushes it to the Redis queue.
func (p *Publisher) PublishMatchResult(ctx context.Context, g models.GameLog) error {
	data, err := json.Marshal(NewRecord(g))
	if err != nil {
		return fmt.Errorf("failed to marshal MatchResultRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
