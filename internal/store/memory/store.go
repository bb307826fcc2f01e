// Package memory is an in-process implementation of store.Store used for
// development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"chatbot/internal/models"
	"chatbot/internal/store"

	"github.com/google/uuid"
)

// Compile-time check to ensure Store implements store.Store
var _ store.Store = (*Store)(nil)

type thread struct {
	models.Thread
	seq     int
	deleted bool
}

type pair struct {
	threadID uuid.UUID
	models.MessagePair
}

// Store keeps everything in maps guarded by one mutex. Pairs and checkpoints
// are kept in insertion order, which is creation order.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	nextUser    int64
	users       map[string]*models.User
	threads     map[uuid.UUID]*thread
	pairs       []pair
	checkpoints map[uuid.UUID][]models.Checkpoint
	feedback    map[uuid.UUID]models.FeedbackRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:         time.Now,
		users:       make(map[string]*models.User),
		threads:     make(map[uuid.UUID]*thread),
		checkpoints: make(map[uuid.UUID][]models.Checkpoint),
		feedback:    make(map[uuid.UUID]models.FeedbackRecord),
	}
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, email, hashedPassword string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return nil, store.ErrConflict
	}
	s.nextUser++
	now := s.now()
	u := &models.User{ID: s.nextUser, Email: email, HashedPassword: hashedPassword, CreatedAt: now, UpdatedAt: now}
	s.users[email] = u
	cp := *u
	return &cp, nil
}

func (s *Store) CreateThread(_ context.Context, account int64, title string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &thread{
		Thread: models.Thread{ID: uuid.New(), Account: account, Title: title, CreatedAt: s.now()},
		seq:    len(s.threads),
	}
	s.threads[t.ID] = t
	out := t.Thread
	return &out, nil
}

func (s *Store) liveThread(id uuid.UUID, account int64) (*thread, error) {
	t, ok := s.threads[id]
	if !ok || t.deleted || t.Account != account {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetThread(_ context.Context, id uuid.UUID, account int64) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.liveThread(id, account)
	if err != nil {
		return nil, err
	}
	out := t.Thread
	return &out, nil
}

func (s *Store) ListThreads(_ context.Context, account int64) ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var live []*thread
	for _, t := range s.threads {
		if !t.deleted && t.Account == account {
			live = append(live, t)
		}
	}
	slices.SortFunc(live, func(a, b *thread) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]models.Thread, 0, len(live))
	for _, t := range live {
		out = append(out, t.Thread)
	}
	return out, nil
}

func (s *Store) DeleteThread(_ context.Context, id uuid.UUID, account int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.liveThread(id, account)
	if err != nil {
		return err
	}
	t.deleted = true
	delete(s.checkpoints, id)
	return nil
}

func (s *Store) CreateMessagePair(_ context.Context, threadID uuid.UUID, p *models.MessagePair) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[threadID]; !ok || t.deleted {
		return store.ErrNotFound
	}
	for _, existing := range s.pairs {
		if existing.ID == p.ID {
			return store.ErrConflict
		}
	}
	stored := *p
	if stored.CreatedAt == nil {
		now := s.now()
		stored.CreatedAt = &now
	}
	s.pairs = append(s.pairs, pair{threadID: threadID, MessagePair: stored})
	return nil
}

func (s *Store) ListMessagePairs(_ context.Context, threadID uuid.UUID) ([]models.MessagePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.MessagePair{}
	for _, p := range s.pairs {
		if p.threadID == threadID {
			out = append(out, p.MessagePair)
		}
	}
	return out, nil
}

func (s *Store) GetMessagePair(_ context.Context, id uuid.UUID, account int64) (*models.MessagePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pairs {
		if p.ID != id {
			continue
		}
		if _, err := s.liveThread(p.threadID, account); err != nil {
			return nil, err
		}
		out := p.MessagePair
		return &out, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) AddCheckpoint(_ context.Context, cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[cp.ThreadID]; !ok || t.deleted {
		return store.ErrNotFound
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.checkpoints[cp.ThreadID] = append(s.checkpoints[cp.ThreadID], cp)
	return nil
}

func (s *Store) ListCheckpoints(_ context.Context, threadID uuid.UUID) ([]models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.checkpoints[threadID]), nil
}

func (s *Store) UpsertFeedback(_ context.Context, fb models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb.UpdatedAt = s.now()
	s.feedback[fb.MessagePairID] = fb
	return nil
}

func (s *Store) GetFeedback(_ context.Context, pairID uuid.UUID) (*models.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fb, ok := s.feedback[pairID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &fb, nil
}
