package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	Signaling      SignalingConfig
	Redis          RedisConfig
	LiveKit        LiveKitConfig

	// ConnectRatePerMinute caps new signaling connections and token
	// requests per client IP. Zero disables the limit.
	ConnectRatePerMinute int
}

type SignalingConfig struct {
	SendBufferSize  int
	MaxMessageBytes int64
	NotifyPeerLeft  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type LiveKitConfig struct {
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

func Load() *Config {
	// Parse allowed origins (comma-separated, empty allows any origin)
	origins := splitCSV(getEnv("ALLOWED_ORIGINS", ""))

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		Signaling: SignalingConfig{
			SendBufferSize:  getEnvInt("SEND_BUFFER_SIZE", 1024),
			MaxMessageBytes: int64(getEnvInt("MAX_MESSAGE_BYTES", 64*1024)),
			NotifyPeerLeft:  getEnvBool("NOTIFY_PEER_LEFT", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		LiveKit: LiveKitConfig{
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
			TokenTTL:  getEnvDuration("LIVEKIT_TOKEN_TTL", 6*time.Hour),
		},
		ConnectRatePerMinute: getEnvInt("CONNECT_RATE_PER_MINUTE", 120),
	}
}

// IsProduction reports whether the server runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewLogger returns a JSON logger at INFO in production and a text logger at
// DEBUG everywhere else.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses a non-negative int, falling back on absence or garbage
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i >= 0 {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
