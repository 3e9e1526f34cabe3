package middleware

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDisconnectCarriesError(t *testing.T) {
	logger, hook := test.NewNullLogger()

	LogConnect(logger, "10.0.0.1:5000", "lobby")
	LogDisconnect(logger, "10.0.0.1:5000", "lobby", nil)
	LogDisconnect(logger, "10.0.0.1:5000", "lobby", errors.New("boom"))

	require.Len(t, hook.AllEntries(), 3)
	assert.Equal(t, "connected", hook.AllEntries()[0].Message)
	assert.NotContains(t, hook.AllEntries()[1].Data, "error")
	assert.EqualError(t, hook.LastEntry().Data["error"].(error), "boom")
}

func TestLogRequestRecordsReason(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	done := LogRequest(logger, "10.0.0.2:6000", "join")
	done("failed", "room full")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "join", entry.Data["action"])
	assert.Equal(t, "failed", entry.Data["status"])
	assert.Equal(t, "room full", entry.Data["reason"])
	assert.Contains(t, entry.Data, "duration")
}
