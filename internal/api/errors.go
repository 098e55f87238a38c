package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches 401 responses: the session is expired or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches 403 responses: the role may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")
)

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps status codes onto the sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// errorMessage picks the most useful message from an error body:
// message, then error, then the raw JSON, then the text, then the status.
func errorMessage(body []byte, status string) string {
	text := strings.TrimSpace(string(body))
	if text != "" {
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err == nil && data != nil {
			if msg, ok := data["message"].(string); ok && msg != "" {
				return msg
			}
			if msg, ok := data["error"].(string); ok && msg != "" {
				return msg
			}
			return text
		}
		return text
	}
	if status != "" {
		return status
	}
	return "Request failed"
}
