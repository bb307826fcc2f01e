package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatbot/internal/crypto"
	"chatbot/internal/session"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"
)

const (
	keyFileName = "session.key"
	redisPrefix = "chatbot:session:"
)

// openSessionStore picks redis when a URL is configured and files otherwise.
// Both seal snapshots with the same key.
func (a *app) openSessionStore(ctx context.Context) error {
	key := a.cfg.SessionKey
	if key == nil {
		var err error
		if key, err = loadOrCreateKey(filepath.Join(a.cfg.SessionDir, keyFileName)); err != nil {
			return err
		}
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return err
	}

	if a.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("CHATBOT_REDIS_URL: %w", err)
		}
		log.Debug(ctx, log.KV{K: "msg", V: "using redis session store"}, log.KV{K: "addr", V: opts.Addr})
		a.rdb = redis.NewClient(opts)
		a.store = session.NewRedisStore(a.rdb, sealer, redisPrefix, a.cfg.SessionTTL)
		return nil
	}
	a.store, err = session.NewFileStore(a.cfg.SessionDir, sealer)
	return err
}

// loadOrCreateKey reads the hex key at path, generating it on first use.
func loadOrCreateKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return crypto.ParseKey(strings.TrimSpace(string(raw)))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read session key: %w", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write session key: %w", err)
	}
	return key, nil
}
