// Package threadlock serializes streams per thread: at most one exchange may
// be in flight for a given thread id.
package threadlock

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned when the thread already has a stream in flight.
var ErrBusy = errors.New("threadlock: a stream is already in flight for this thread")

// Guard tracks the threads that currently own a stream. The zero value is
// ready to use.
type Guard struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// New returns an empty Guard.
func New() *Guard {
	return &Guard{active: make(map[uuid.UUID]struct{})}
}

// Acquire claims threadID. The returned release func frees it and is safe to
// call more than once.
func (g *Guard) Acquire(threadID uuid.UUID) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[uuid.UUID]struct{})
	}
	if _, busy := g.active[threadID]; busy {
		return nil, ErrBusy
	}
	g.active[threadID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, threadID)
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether threadID has a stream in flight.
func (g *Guard) Busy(threadID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[threadID]
	return busy
}
