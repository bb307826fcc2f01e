package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"chatbot/internal/models"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

var (
	errReadTimeout = errors.New("chatclient: stream read timeout")
	errTruncated   = errors.New("chatclient: stream closed without complete event")
	errStopped     = errors.New("chatclient: consumer stopped")
)

// SendMessage posts message to a thread and returns the response as a lazy
// sequence of events. See Send.
func (c *Client) SendMessage(ctx context.Context, token string, threadID uuid.UUID, message string) iter.Seq[models.StreamEvent] {
	return c.Send(ctx, token, threadID, models.NewUserMessage(message))
}

// Send posts msg to a thread and returns the response as a lazy, single-pass
// sequence of events. The request is only issued when the sequence is ranged
// over; ranging a second time yields nothing.
//
// The sequence always ends with a complete event. When the backend sends one,
// reading stops right after it. Otherwise the failure is turned into an error
// event carrying a user-facing message followed by a complete event with a
// fresh run id:
//
//   - connect, handshake or read timeout: models.MsgStreamTimeout
//   - transport failure, non-2xx status or malformed line: models.MsgStreamFailure
//   - body closed without complete: models.MsgStreamDisconnect
//
// If the consumer stops early the body is closed and nothing else is yielded.
func (c *Client) Send(ctx context.Context, token string, threadID uuid.UUID, msg models.UserMessage) iter.Seq[models.StreamEvent] {
	var used atomic.Bool
	return func(yield func(models.StreamEvent) bool) {
		if used.Swap(true) {
			log.Warn(ctx, log.KV{K: "msg", V: "[MESSAGE] stream already consumed"}, log.KV{K: "message", V: msg.ID})
			return
		}
		log.Print(ctx, log.KV{K: "msg", V: "[MESSAGE] sending message"}, log.KV{K: "message", V: msg.ID}, log.KV{K: "thread", V: threadID})

		err := c.stream(ctx, token, threadID, msg, yield)
		if err == nil || errors.Is(err, errStopped) {
			return
		}

		text := failureMessage(err)
		if errors.Is(err, errTruncated) {
			log.Error(ctx, err, log.KV{K: "msg", V: "[MESSAGE] stream terminated without a complete event"}, log.KV{K: "thread", V: threadID})
		} else {
			log.Error(ctx, err, log.KV{K: "msg", V: "[MESSAGE] error on sending user message"}, log.KV{K: "thread", V: threadID})
		}
		if !yield(models.NewErrorEvent(text)) {
			return
		}
		yield(models.NewCompleteEvent(uuid.New()))
	}
}

// stream runs one request. It returns nil once complete has been yielded and
// errStopped when the consumer broke out.
func (c *Client) stream(ctx context.Context, token string, threadID uuid.UUID, msg models.UserMessage, yield func(models.StreamEvent) bool) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chatclient: encode user message: %w", err)
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := time.AfterFunc(c.readTimeout, func() { cancel(errReadTimeout) })
	defer idle.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(messagesPath(threadID)), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set("Authorization", bearer(token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return withCause(reqCtx, fmt.Errorf("chatclient: send message: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}
	log.Debug(ctx, log.KV{K: "msg", V: "[MESSAGE] user message sent"}, log.KV{K: "message", V: msg.ID})

	scanner := bufio.NewScanner(&idleReader{r: resp.Body, timer: idle, timeout: c.readTimeout})
	scanner.Buffer(make([]byte, 0, 64<<10), c.maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("chatclient: decode stream event: %w", err)
		}
		if !yield(ev) {
			return errStopped
		}
		if ev.Type == models.EventComplete {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return withCause(reqCtx, fmt.Errorf("chatclient: read stream: %w", err))
	}
	return errTruncated
}

// withCause tags err with errReadTimeout when the idle timer cancelled the
// request.
func withCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errReadTimeout) && !errors.Is(err, errReadTimeout) {
		return fmt.Errorf("%w: %w", errReadTimeout, err)
	}
	return err
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, errTruncated):
		return models.MsgStreamDisconnect
	case isTimeout(err):
		return models.MsgStreamTimeout
	default:
		return models.MsgStreamFailure
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, errReadTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// idleReader restarts the idle timer whenever bytes arrive.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}
