package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// NDJSONContentType is the media type of newline-delimited JSON streams.
const NDJSONContentType = "application/x-ndjson"

// NDJSONWriter streams values as one JSON document per line. The status line
// and headers are sent with the first value, so the handler can still answer
// with a plain error until then.
type NDJSONWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	return &NDJSONWriter{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether the headers have been sent.
func (n *NDJSONWriter) Started() bool { return n.started }

// Write encodes v as one line and flushes it to the client.
func (n *NDJSONWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !n.started {
		h := n.w.Header()
		h.Set("Content-Type", NDJSONContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}
	if _, err := n.w.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := n.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
