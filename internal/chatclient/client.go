// Package chatclient is the HTTP client of the chatbot API: authentication,
// threads, message history, feedback and the streaming message endpoint.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatbot/internal/models"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 300 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultDeleteTimeout  = 60 * time.Second
	DefaultMaxLineSize    = 16 << 20
)

// Client talks to the chatbot API. It holds no per-conversation state and is
// safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	transport      http.RoundTripper
	connectTimeout time.Duration
	readTimeout    time.Duration
	requestTimeout time.Duration
	deleteTimeout  time.Duration
	maxLineSize    int
	debug          bool
}

// Option configures a Client.
type Option func(*Client)

// WithConnectTimeout bounds dialing and the TLS handshake.
func WithConnectTimeout(d time.Duration) Option { return func(c *Client) { c.connectTimeout = d } }

// WithReadTimeout bounds the wait for response headers and the idle time
// between body reads of a stream.
func WithReadTimeout(d time.Duration) Option { return func(c *Client) { c.readTimeout = d } }

// WithRequestTimeout bounds each non-streaming call except thread deletion.
func WithRequestTimeout(d time.Duration) Option { return func(c *Client) { c.requestTimeout = d } }

// WithDeleteTimeout bounds thread deletion.
func WithDeleteTimeout(d time.Duration) Option { return func(c *Client) { c.deleteTimeout = d } }

// WithMaxLineSize caps the length of one stream line.
func WithMaxLineSize(n int) Option { return func(c *Client) { c.maxLineSize = n } }

// WithTransport replaces the default transport. The connect timeout is then
// the transport's business.
func WithTransport(rt http.RoundTripper) Option { return func(c *Client) { c.transport = rt } }

// WithDebug logs every request and response through the context logger.
func WithDebug(debug bool) Option { return func(c *Client) { c.debug = debug } }

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		requestTimeout: DefaultRequestTimeout,
		deleteTimeout:  DefaultDeleteTimeout,
		maxLineSize:    DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	rt := c.transport
	if rt == nil {
		rt = newTransport(c.connectTimeout, c.readTimeout)
	}
	if c.debug {
		rt = log.Client(rt)
	}
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func newTransport(connect, read time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = connect
	t.ResponseHeaderTimeout = read
	return t
}

func tokenPath() string                       { return "/chatbot/token/" }
func threadsPath() string                     { return "/chatbot/threads/" }
func threadPath(id uuid.UUID) string          { return fmt.Sprintf("/chatbot/threads/%s/", id) }
func messagesPath(id uuid.UUID) string        { return fmt.Sprintf("/chatbot/threads/%s/messages/", id) }
func feedbackPath(pairID uuid.UUID) string    { return fmt.Sprintf("/chatbot/message-pairs/%s/feedbacks/", pairID) }
func orderedByCreation(path string) string    { return path + "?order_by=created_at" }
func bearer(token string) string              { return "Bearer " + token }
func (c *Client) endpoint(path string) string { return c.baseURL + path }

// Authenticate exchanges credentials for an access token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	form := url.Values{"email": {email}, "password": {password}}
	var resp models.TokenResponse
	err := c.do(ctx, c.requestTimeout, http.MethodPost, tokenPath(), "",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			log.Warn(ctx, log.KV{K: "msg", V: "[LOGIN] invalid credentials"})
			return "", ErrInvalidCredentials
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "[LOGIN] login failed"})
		return "", err
	}
	if resp.Access == "" {
		log.Error(ctx, ErrNoAccessToken, log.KV{K: "msg", V: "[LOGIN] no access token returned"})
		return "", ErrNoAccessToken
	}
	log.Printf(ctx, "[LOGIN] logged in")
	return resp.Access, nil
}

// CreateThread creates a thread titled title.
func (c *Client) CreateThread(ctx context.Context, token, title string) (*models.Thread, error) {
	log.Printf(ctx, "[THREAD] creating thread")
	var thread models.Thread
	if err := c.doJSON(ctx, c.requestTimeout, http.MethodPost, threadsPath(), token, models.CreateThreadRequest{Title: title}, &thread); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[THREAD] thread creation failed"})
		return nil, err
	}
	log.Print(ctx, log.KV{K: "msg", V: "[THREAD] thread created"}, log.KV{K: "thread", V: thread.ID}, log.KV{K: "account", V: thread.Account})
	return &thread, nil
}

// ListThreads returns the caller's threads, oldest first.
func (c *Client) ListThreads(ctx context.Context, token string) ([]models.Thread, error) {
	var threads []models.Thread
	if err := c.doJSON(ctx, c.requestTimeout, http.MethodGet, orderedByCreation(threadsPath()), token, nil, &threads); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[THREAD] threads retrieval failed"})
		return nil, err
	}
	return threads, nil
}

// ListMessagePairs returns the history of a thread, oldest first. Pairs that
// break the exactly-one-of rule fail the whole call.
func (c *Client) ListMessagePairs(ctx context.Context, token string, threadID uuid.UUID) ([]models.MessagePair, error) {
	var pairs []models.MessagePair
	if err := c.doJSON(ctx, c.requestTimeout, http.MethodGet, orderedByCreation(messagesPath(threadID)), token, nil, &pairs); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[MESSAGE] message pairs retrieval failed"}, log.KV{K: "thread", V: threadID})
		return nil, err
	}
	return pairs, nil
}

// SendFeedback rates a message pair.
func (c *Client) SendFeedback(ctx context.Context, token string, pairID uuid.UUID, fb models.Feedback) error {
	if !fb.Rating.Valid() {
		return fmt.Errorf("chatclient: invalid rating %d", fb.Rating)
	}
	log.Print(ctx, log.KV{K: "msg", V: "[FEEDBACK] sending feedback"}, log.KV{K: "pair", V: pairID}, log.KV{K: "rating", V: int(fb.Rating)})
	if err := c.doJSON(ctx, c.requestTimeout, http.MethodPut, feedbackPath(pairID), token, fb, nil); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[FEEDBACK] sending feedback failed"})
		return err
	}
	return nil
}

// DeleteThread soft-deletes a thread; the backend also drops the assistant
// memory of that thread.
func (c *Client) DeleteThread(ctx context.Context, token string, threadID uuid.UUID) error {
	log.Print(ctx, log.KV{K: "msg", V: "[CLEAR] clearing assistant memory"}, log.KV{K: "thread", V: threadID})
	if err := c.do(ctx, c.deleteTimeout, http.MethodDelete, threadPath(threadID), token, nil, "", nil); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[CLEAR] clearing assistant memory failed"})
		return err
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path, token string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("chatclient: encode request: %w", err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}
	return c.do(ctx, timeout, method, path, token, body, contentType, out)
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path, token string, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", bearer(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chatclient: decode %s %s response: %w", method, path, err)
	}
	return nil
}
