package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toshiishere/network-programming/internal/models"
)

func sampleLog() models.GameLog {
	return models.GameLog{
		Room:       "r1",
		HostResult: models.PlayerResult{Name: "alice", Score: 300, Outcome: models.OutcomeWin},
		OppoResult: models.PlayerResult{Name: "bob", Score: 100, Outcome: models.OutcomeLose},
		EndedAt:    time.UnixMilli(1700000000000),
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(sampleLog())
	assert.Equal(t, "r1", rec.Room)
	assert.Equal(t, "alice", rec.Winner)
	assert.Equal(t, int64(1700000000000), rec.EndedAt)
	assert.NotEqual(t, NewRecord(sampleLog()).ID, rec.ID)
}

// Needs a reachable Redis; set REDIS_ADDR to run it.
func TestPublishMatchResult(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Connect(ctx, addr, 0)
	require.NoError(t, err)
	defer rdb.Close()

	queue := "tetris_results_test"
	rdb.Del(ctx, queue)
	require.NoError(t, NewPublisher(rdb, queue).PublishMatchResult(ctx, sampleLog()))

	raw, err := rdb.LPop(ctx, queue).Result()
	require.NoError(t, err)
	var rec MatchResultRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "alice", rec.Host.Name)
}
