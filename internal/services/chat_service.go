package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatbot/internal/conversation"
	"chatbot/internal/models"
	"chatbot/internal/store"
	"chatbot/internal/threadlock"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

var (
	// ErrThreadBusy is returned when the thread already has a run in flight.
	ErrThreadBusy = fmt.Errorf("thread busy: %w", threadlock.ErrBusy)
	// ErrResponderComplete is returned to a responder that tries to emit the
	// complete event itself.
	ErrResponderComplete = errors.New("responder must not emit complete")
)

// ChatService runs the exchanges of a thread and keeps their message pairs.
type ChatService struct {
	store     store.Store
	responder Responder
	guard     *threadlock.Guard
}

// NewChatService creates a new ChatService.
func NewChatService(s store.Store, responder Responder, guard *threadlock.Guard) *ChatService {
	if guard == nil {
		guard = threadlock.New()
	}
	return &ChatService{
		store:     s,
		responder: responder,
		guard:     guard,
	}
}

// ListMessagePairs returns the pairs of a thread owned by account, oldest first.
func (s *ChatService) ListMessagePairs(ctx context.Context, account int64, threadID uuid.UUID) ([]models.MessagePair, error) {
	if _, err := s.store.GetThread(ctx, threadID, account); err != nil {
		return nil, err
	}
	pairs, err := s.store.ListMessagePairs(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list message pairs: %w", err)
	}
	return pairs, nil
}

// Stream runs one exchange of threadID and hands every event to emit, ending
// with complete whose run id is the id of the stored pair. Validation, lookup
// and busy errors are returned before anything is emitted. Once emitting has
// started Stream always stores a pair: a failing responder becomes an error
// event and a failing emit records a disconnect.
func (s *ChatService) Stream(ctx context.Context, account int64, threadID uuid.UUID, msg models.UserMessage, emit Emitter) (*models.MessagePair, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrValidation)
	}
	if _, err := s.store.GetThread(ctx, threadID, account); err != nil {
		return nil, err
	}
	release, err := s.guard.Acquire(threadID)
	if err != nil {
		return nil, ErrThreadBusy
	}
	defer release()

	memory, err := s.store.ListCheckpoints(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread memory: %w", err)
	}

	ctx = log.With(ctx, log.KV{K: "thread", V: threadID})
	pairID := uuid.New()
	acc := conversation.NewAccumulator(msg.Content)

	var emitErr error
	forward := func(ev models.StreamEvent) error {
		if emitErr != nil {
			return emitErr
		}
		if ev.Type == models.EventComplete {
			return ErrResponderComplete
		}
		if _, err := acc.Apply(ev); err != nil {
			return err
		}
		if err := emit(ev); err != nil {
			emitErr = err
			return err
		}
		return nil
	}

	artifacts, err := s.responder.Respond(ctx, ResponderRequest{
		ThreadID: threadID,
		Message:  msg.Content,
		Memory:   memory,
	}, forward)
	if err != nil && emitErr == nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[ChatService] responder failed"})
		artifacts = nil
		_ = forward(models.NewErrorEvent(models.MsgResponderFailed))
	}

	if emitErr != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "[ChatService] client went away"}, log.KV{K: "err", V: emitErr.Error()})
		if _, err := acc.Apply(models.NewErrorEvent(models.MsgStreamDisconnect)); err != nil {
			return nil, err
		}
	}
	complete := models.NewCompleteEvent(pairID)
	if _, err := acc.Apply(complete); err != nil {
		return nil, err
	}
	if emitErr == nil {
		if err := emit(complete); err != nil {
			log.Warn(ctx, log.KV{K: "msg", V: "[ChatService] complete not delivered"}, log.KV{K: "err", V: err.Error()})
		}
	}

	record, _ := acc.Record()
	now := time.Now().UTC()
	record.CreatedAt = &now
	if artifacts != nil && record.Succeeded() {
		record.ChartData = artifacts.ChartData
		record.ChartMetadata = artifacts.ChartMetadata
		record.ModelURI = artifacts.ModelURI
	}

	// The request context may already be cancelled by a departed client.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.CreateMessagePair(persistCtx, threadID, record); err != nil {
		return record, fmt.Errorf("failed to store message pair: %w", err)
	}
	if record.Succeeded() {
		err := s.store.AddCheckpoint(persistCtx, models.Checkpoint{
			ThreadID:    threadID,
			RunID:       pairID,
			UserMessage: record.UserMessage,
			Answer:      record.Answer(),
		})
		if err != nil {
			return record, fmt.Errorf("failed to store checkpoint: %w", err)
		}
	}
	log.Print(ctx, log.KV{K: "msg", V: "[ChatService] run finished"}, log.KV{K: "run", V: pairID}, log.KV{K: "ok", V: record.Succeeded()})
	return record, nil
}
