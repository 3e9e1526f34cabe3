// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the runtime configuration shared by the binaries. Each binary
// only reads the fields it cares about.
type Config struct {
	DatastoreAddr string
	LobbyAddr     string

	// MatchHost is the address advertised to clients in the start message.
	MatchHost string
	// MatchBasePort plus the room id gives the match port. Zero picks an ephemeral port.
	MatchBasePort int

	UsersFile   string
	GameLogFile string

	TickInterval       time.Duration
	DropIntervalFrames int
	MatchJoinTimeout   time.Duration
	MatchWriteTimeout  time.Duration
	RPCTimeout         time.Duration
	TicketTTL          time.Duration

	LogLevel string
	LogFile  string

	RedisAddr          string
	RedisDB            int
	HistorianQueueName string
	HistorianBatchSize int
	HistorianFlush     time.Duration
	DatabaseURL        string
}

// Load reads the configuration from the environment, falling back to defaults.
func Load() Config {
	return Config{
		DatastoreAddr:      getEnv("DATASTORE_ADDR", "127.0.0.1:45631"),
		LobbyAddr:          getEnv("LOBBY_ADDR", "127.0.0.1:45632"),
		MatchHost:          getEnv("MATCH_HOST", "127.0.0.1"),
		MatchBasePort:      getEnvInt("MATCH_BASE_PORT", 45700),
		UsersFile:          getEnv("USERS_FILE", "data/users.json"),
		GameLogFile:        getEnv("GAMELOG_FILE", "data/gamelog.json"),
		TickInterval:       getEnvDuration("TICK_INTERVAL", 100*time.Millisecond),
		DropIntervalFrames: getEnvInt("DROP_INTERVAL_FRAMES", 10),
		MatchJoinTimeout:   getEnvDuration("MATCH_JOIN_TIMEOUT", 15*time.Second),
		MatchWriteTimeout:  getEnvDuration("MATCH_WRITE_TIMEOUT", 3*time.Second),
		RPCTimeout:         getEnvDuration("RPC_TIMEOUT", 5*time.Second),
		TicketTTL:          getEnvDuration("TICKET_TTL", time.Minute),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		HistorianQueueName: getEnv("HISTORIAN_QUEUE_NAME", "tetris_results"),
		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses values like "100ms" or "15s".
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
