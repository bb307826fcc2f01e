package session

import (
	"maps"
	"slices"

	"chatbot/internal/models"

	"github.com/google/uuid"
)

// Snapshot is the persistable part of a session. The state machine is not
// saved: a restored session is always idle.
type Snapshot struct {
	Email    string                        `json:"email,omitempty"`
	Token    string                        `json:"access_token,omitempty"`
	ThreadID *uuid.UUID                    `json:"thread_id,omitempty"`
	History  []models.MessagePair          `json:"history,omitempty"`
	Feedback map[uuid.UUID]models.Feedback `json:"feedback,omitempty"`
	Flags    map[string]bool               `json:"flags,omitempty"`
}

// Snapshot copies the session context.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &Snapshot{
		Email:    s.email,
		Token:    s.token,
		History:  slices.Clone(s.history),
		Feedback: maps.Clone(s.feedback),
		Flags:    maps.Clone(s.flags),
	}
	if s.threadID != nil {
		id := *s.threadID
		snap.ThreadID = &id
	}
	return snap
}

// Restore replaces the session context with snap. It is refused while an
// exchange is running.
func (s *Session) Restore(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrInvalidTransition
	}
	s.email, s.token = snap.Email, snap.Token
	s.threadID = nil
	if snap.ThreadID != nil {
		id := *snap.ThreadID
		s.threadID = &id
	}
	s.history = slices.Clone(snap.History)
	s.feedback = make(map[uuid.UUID]models.Feedback, len(snap.Feedback))
	maps.Copy(s.feedback, snap.Feedback)
	s.flags = make(map[string]bool, len(snap.Flags))
	maps.Copy(s.flags, snap.Flags)
	return nil
}
