package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatbot/internal/crypto"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Load when nothing is stored under the key.
var ErrNoSnapshot = errors.New("session: no stored snapshot")

// Store persists session snapshots between runs.
type Store interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap *Snapshot) error
	Delete(ctx context.Context, key string) error
}

// FileStore keeps one sealed file per key in a directory. The key is bound
// to the ciphertext so a file cannot be replayed under another key.
type FileStore struct {
	dir    string
	sealer *crypto.Sealer
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string, sealer *crypto.Sealer) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, sealer: sealer}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+".session")
}

// Load reads and opens the snapshot stored under key.
func (s *FileStore) Load(_ context.Context, key string) (*Snapshot, error) {
	sealed, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return openSnapshot(s.sealer, key, sealed)
}

// Save seals snap and replaces the file of key atomically.
func (s *FileStore) Save(_ context.Context, key string, snap *Snapshot) error {
	sealed, err := sealSnapshot(s.sealer, key, snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Delete removes the file of key. Missing files are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// RedisStore keeps sealed snapshots that expire after a TTL.
type RedisStore struct {
	rdb    redis.UniversalClient
	sealer *crypto.Sealer
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing keys under prefix. A zero ttl keeps
// snapshots forever.
func NewRedisStore(rdb redis.UniversalClient, sealer *crypto.Sealer, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, sealer: sealer, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(key string) string { return s.prefix + key }

// Load fetches and opens the snapshot stored under key.
func (s *RedisStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	sealed, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return openSnapshot(s.sealer, key, sealed)
}

// Save seals snap, stores it under key and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, key string, snap *Snapshot) error {
	sealed, err := sealSnapshot(s.sealer, key, snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(key), sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Delete removes the snapshot of key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// sealSnapshot encodes snap and seals it bound to key.
func sealSnapshot(sealer *crypto.Sealer, key string, snap *Snapshot) ([]byte, error) {
	plain, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	sealed, err := sealer.Seal(plain, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("seal session: %w", err)
	}
	return sealed, nil
}

func openSnapshot(sealer *crypto.Sealer, key string, sealed []byte) (*Snapshot, error) {
	plain, err := sealer.Open(sealed, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &snap, nil
}
