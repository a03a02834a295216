// Package httputil holds the JSON envelope helpers every handler writes through.
//
// Success: {"success": true, "data": ...}
// Failure: {"success": false, "error": "...", "code": "..."} plus any details the
// error exposes.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "aidtrack/pkg/domain-errors"
)

// DefaultMaxBodyBytes bounds request bodies when a handler does not pass its own limit.
const DefaultMaxBodyBytes = 1 << 20

// Detailer is implemented by errors that carry extra fields for the client,
// such as the timestamp of the distribution that blocked a duplicate.
type Detailer interface {
	ErrorDetails() map[string]any
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

// WriteError translates err into the failure envelope. Internal errors never leak
// their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := map[string]any{
		"success": false,
		"code":    string(code),
	}
	if status >= http.StatusInternalServerError {
		body["error"] = http.StatusText(status)
	} else if de, ok := dErrors.As(err); ok && de.Message != "" {
		body["error"] = de.Message
	} else {
		body["error"] = err.Error()
	}

	var d Detailer
	if errors.As(err, &d) {
		for k, v := range d.ErrorDetails() {
			if _, reserved := body[k]; !reserved {
				body[k] = v
			}
		}
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into dst, rejecting bodies over maxBytes
// and trailing garbage. maxBytes <= 0 uses DefaultMaxBodyBytes.
func DecodeJSON(r *http.Request, dst any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes+1))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body is empty")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeBadRequest, "request body must contain a single JSON object")
	}
	if dec.InputOffset() > maxBytes {
		return dErrors.New(dErrors.CodeBadRequest, "request body too large")
	}
	return nil
}
