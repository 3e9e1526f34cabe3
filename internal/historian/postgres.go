package historian

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toshiishere/network-programming/internal/cache"
)

const createResultsTable = `
	CREATE TABLE IF NOT EXISTS match_results (
		id           UUID PRIMARY KEY,
		room         TEXT NOT NULL,
		host_name    TEXT NOT NULL,
		host_score   INTEGER NOT NULL,
		host_outcome TEXT NOT NULL,
		oppo_name    TEXT NOT NULL,
		oppo_score   INTEGER NOT NULL,
		oppo_outcome TEXT NOT NULL,
		winner       TEXT NOT NULL,
		ended_at     TIMESTAMPTZ NOT NULL
	)
`

const insertResult = `
	INSERT INTO match_results (
		id, room, host_name, host_score, host_outcome,
		oppo_name, oppo_score, oppo_outcome, winner, ended_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING
`

// ConnectPostgres opens a pool for url and pings it.
func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// PostgresSink writes match results into the match_results table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// EnsureSchema creates the results table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createResultsTable); err != nil {
		return fmt.Errorf("create match_results: %w", err)
	}
	return nil
}

// InsertResults inserts recs in a single transaction.
func (s *PostgresSink) InsertResults(ctx context.Context, recs []cache.MatchResultRecord) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			batch.Queue(insertResult,
				rec.ID, rec.Room,
				rec.Host.Name, rec.Host.Score, string(rec.Host.Outcome),
				rec.Oppo.Name, rec.Oppo.Score, string(rec.Oppo.Outcome),
				rec.Winner, time.UnixMilli(rec.EndedAt),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert match results: %w", err)
		}
		return nil
	})
}
