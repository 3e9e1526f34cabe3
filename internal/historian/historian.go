// Package historian drains finished match results from a Redis queue and
// persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/cache"
)

// Queue yields raw payloads. ok is false when nothing arrived within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (payload string, ok bool, err error)
}

// Sink persists a batch of records atomically.
type Sink interface {
	InsertResults(ctx context.Context, recs []cache.MatchResultRecord) error
}

// RedisQueue pops from a Redis list with BLPop.
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	if name == "" {
		name = cache.DefaultQueueName
	}
	return &RedisQueue{rdb: rdb, name: name}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// Service accumulates records and flushes them when the batch is full or the
// flush delay has passed.
type Service struct {
	queue      Queue
	sink       Sink
	batchSize  int
	flushDelay time.Duration
	log        *logrus.Logger

	batchMu sync.Mutex
	batch   []cache.MatchResultRecord
}

func NewService(queue Queue, sink Sink, batchSize int, flushDelay time.Duration, logger *logrus.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	return &Service{
		queue:      queue,
		sink:       sink,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		log:        logger,
		batch:      make([]cache.MatchResultRecord, 0, batchSize),
	}
}

// Run reads until ctx is cancelled, then flushes whatever is left.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("historian service started")
	lastFlush := time.Now()

	for ctx.Err() == nil {
		payload, ok, err := s.queue.Pop(ctx, s.flushDelay)
		if err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("queue pop failed")
			select {
			case <-ctx.Done():
			case <-time.After(s.flushDelay):
			}
		}
		if ok {
			var rec cache.MatchResultRecord
			if err := json.Unmarshal([]byte(payload), &rec); err != nil {
				s.log.WithError(err).Warn("invalid match result record")
			} else {
				s.append(rec)
			}
		}

		if s.pending() >= s.batchSize || time.Since(lastFlush) >= s.flushDelay {
			s.Flush(ctx)
			lastFlush = time.Now()
		}
	}

	s.Flush(context.WithoutCancel(ctx))
	s.log.Info("historian shutting down")
}

func (s *Service) append(rec cache.MatchResultRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
}

func (s *Service) pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

// Flush writes the current batch in one transaction. A failed batch is kept for the next attempt.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]cache.MatchResultRecord, len(s.batch))
	copy(batchCopy, s.batch)

	if err := s.sink.InsertResults(ctx, batchCopy); err != nil {
		s.log.WithError(err).Error("flush to database failed")
		return
	}
	s.batch = s.batch[:0]
	s.log.WithField("count", len(batchCopy)).Info("flushed match results")
}
