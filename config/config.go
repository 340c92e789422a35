package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Server configuration
	DefaultAddr       = ":3000"
	DefaultStorageDir = "./storage"

	// Presence configuration. Devices heartbeat roughly once a minute; the
	// offline threshold tolerates one missed beat without flapping.
	HeartbeatInterval = 60 * time.Second
	OfflineThreshold  = 70 * time.Second
	SweepPeriod       = 60 * time.Second
)

type Config struct {
	Addr       string
	StorageDir string

	// Telegram operator channel. Empty token runs the relay headless
	// (device endpoints only, notifications go to the log).
	BotToken   string
	AdminChats []int64

	OfflineThreshold time.Duration
	SweepPeriod      time.Duration

	// Whether presence transitions for devices with no bound operator chat
	// are announced to the admin set. Source deployments disagreed on this,
	// so it is an explicit switch rather than a guess.
	NotifyUnboundTransitions bool
}

// Load builds the runtime configuration from environment variables,
// falling back to the defaults above.
func Load() Config {
	cfg := Config{
		Addr:                     envOr("RELAY_ADDR", DefaultAddr),
		StorageDir:               envOr("RELAY_STORAGE_DIR", DefaultStorageDir),
		BotToken:                 os.Getenv("BOT_TOKEN"),
		AdminChats:               parseChatIDs(os.Getenv("ADMIN_CHAT_IDS")),
		OfflineThreshold:         envDuration("RELAY_OFFLINE_THRESHOLD", OfflineThreshold),
		SweepPeriod:              envDuration("RELAY_SWEEP_PERIOD", SweepPeriod),
		NotifyUnboundTransitions: envBool("RELAY_NOTIFY_UNBOUND", true),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func parseChatIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
