package session

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// State is the phase of the session's current exchange.
type State int

const (
	// StateIdle accepts a new prompt.
	StateIdle State = iota
	// StateAwaitingThread resolves or creates the thread for the prompt.
	StateAwaitingThread
	// StateStreaming pulls events and renders them as they arrive.
	StateStreaming
	// StateRenderingTerminal shows the finished record before going idle.
	StateRenderingTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingThread:
		return "awaiting-thread"
	case StateStreaming:
		return "streaming"
	case StateRenderingTerminal:
		return "rendering-terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the allowed successors of each state. Awaiting-thread may
// fall back to idle when no thread could be obtained.
var transitions = map[State][]State{
	StateIdle:              {StateAwaitingThread},
	StateAwaitingThread:    {StateStreaming, StateIdle},
	StateStreaming:         {StateRenderingTerminal},
	StateRenderingTerminal: {StateIdle},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates the move from one state to the next and returns the
// new state.
func Transition(from, to State) (State, error) {
	if !from.CanTransition(to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
