package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chatbot/internal/crypto"

	"github.com/joho/godotenv"
	"goa.design/clue/log"
)

// ServerConfig holds the reference backend configuration.
type ServerConfig struct {
	DatabaseURL     string // empty selects the in-memory store
	JWTSecret       string
	HTTPPort        string
	TokenExpiration time.Duration
	AllowedOrigins  []string
	SeedEmail       string
	SeedPassword    string
	ResponderDelay  time.Duration
	Debug           bool
}

// ClientConfig holds the CLI configuration.
type ClientConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RequestTimeout time.Duration
	DeleteTimeout  time.Duration
	MaxLineSize    int
	SessionDir     string
	SessionKey     []byte // nil falls back to a key file in SessionDir
	RedisURL       string // non-empty selects the redis store
	SessionTTL     time.Duration
	Debug          bool
}

// loadDotEnv loads .env from the working directory when present.
func loadDotEnv(ctx context.Context) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn(ctx, log.KV{K: "msg", V: "could not load .env file, using environment variables only"}, log.KV{K: "err", V: err.Error()})
	}
}

// LoadServerConfig reads the backend configuration from the environment.
func LoadServerConfig(ctx context.Context) (*ServerConfig, error) {
	loadDotEnv(ctx)

	cfg := &ServerConfig{
		DatabaseURL:    getEnv(ctx, "DATABASE_URL", ""),
		JWTSecret:      getEnv(ctx, "JWT_SECRET", ""),
		HTTPPort:       getEnv(ctx, "HTTP_PORT", "8080"),
		AllowedOrigins: splitList(getEnv(ctx, "CORS_ALLOWED_ORIGINS", "*")),
		SeedEmail:      getEnv(ctx, "SEED_EMAIL", ""),
		SeedPassword:   getEnv(ctx, "SEED_PASSWORD", ""),
		Debug:          getBool(ctx, "DEBUG", false),
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is not set")
	}
	hours := getInt(ctx, "JWT_EXPIRATION_HOURS", 24)
	cfg.TokenExpiration = time.Duration(hours) * time.Hour
	cfg.ResponderDelay = getDuration(ctx, "RESPONDER_DELAY", 0)

	store := "postgres"
	if cfg.DatabaseURL == "" {
		store = "memory"
	}
	log.Print(ctx, log.KV{K: "msg", V: "loaded server config"},
		log.KV{K: "port", V: cfg.HTTPPort},
		log.KV{K: "store", V: store},
		log.KV{K: "token-expiration", V: cfg.TokenExpiration.String()})
	return cfg, nil
}

// LoadClientConfig reads the CLI configuration from the environment. Flags
// override the returned values.
func LoadClientConfig(ctx context.Context) (*ClientConfig, error) {
	loadDotEnv(ctx)

	cfg := &ClientConfig{
		BaseURL:        strings.TrimSuffix(getEnv(ctx, "CHATBOT_API_URL", "http://localhost:8080"), "/"),
		ConnectTimeout: getDuration(ctx, "CHATBOT_CONNECT_TIMEOUT", 5*time.Second),
		ReadTimeout:    getDuration(ctx, "CHATBOT_READ_TIMEOUT", 300*time.Second),
		RequestTimeout: getDuration(ctx, "CHATBOT_REQUEST_TIMEOUT", 5*time.Second),
		DeleteTimeout:  getDuration(ctx, "CHATBOT_DELETE_TIMEOUT", 60*time.Second),
		MaxLineSize:    getInt(ctx, "CHATBOT_MAX_LINE_SIZE", 16<<20),
		SessionDir:     getEnv(ctx, "CHATBOT_SESSION_DIR", defaultSessionDir()),
		RedisURL:       getEnv(ctx, "CHATBOT_REDIS_URL", ""),
		SessionTTL:     getDuration(ctx, "CHATBOT_SESSION_TTL", 24*time.Hour),
		Debug:          getBool(ctx, "CHATBOT_DEBUG", false),
	}
	if hexKey := getEnv(ctx, "CHATBOT_SESSION_KEY", ""); hexKey != "" {
		key, err := crypto.ParseKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("CHATBOT_SESSION_KEY: %w", err)
		}
		cfg.SessionKey = key
	}
	return cfg, nil
}

func defaultSessionDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".chatbot"
	}
	return filepath.Join(dir, "chatbot")
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(ctx context.Context, key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Debugf(ctx, "env variable %s not set, using default", key)
	return fallback
}

func getInt(ctx context.Context, key string, fallback int) int {
	raw := getEnv(ctx, key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "invalid integer, using default"}, log.KV{K: "key", V: key}, log.KV{K: "value", V: raw})
		return fallback
	}
	return v
}

func getBool(ctx context.Context, key string, fallback bool) bool {
	raw := getEnv(ctx, key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "invalid boolean, using default"}, log.KV{K: "key", V: key}, log.KV{K: "value", V: raw})
		return fallback
	}
	return v
}

func getDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	raw := getEnv(ctx, key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Warn(ctx, log.KV{K: "msg", V: "invalid duration, using default"}, log.KV{K: "key", V: key}, log.KV{K: "value", V: raw})
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
