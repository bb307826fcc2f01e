package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatbot/internal/models"
)

var (
	// ErrInvalidCredentials is returned by Authenticate when the backend
	// answers 401.
	ErrInvalidCredentials = errors.New("chatclient: invalid credentials")
	// ErrNoAccessToken is returned when a successful token response carries
	// no access token.
	ErrNoAccessToken = errors.New("chatclient: no access token in response")
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chatclient: %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("chatclient: %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func newStatusError(resp *http.Response) *StatusError {
	se := &StatusError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		se.Message = er.Error
	} else {
		se.Message = strings.TrimSpace(string(body))
	}
	return se
}
