package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single failure a caller sees once retries are exhausted or the
// failure was not retryable. Title and Message are ready for display.
type Error struct {
	Status  int // 0 when no response arrived
	Title   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Title, e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// statusError marks a response that came back with an error status.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// serverMessage is the optional {"message": "..."} body error responses carry.
type serverMessage struct {
	Message string `json:"message"`
}

func newStatusError(status int, msg string, cause error) *Error {
	title := "Request Failed"
	var message string

	switch status {
	case http.StatusBadRequest:
		message = orDefault(msg, "bad request")
	case http.StatusUnauthorized:
		title = "Authentication Required"
		message = "unauthorized"
	case http.StatusForbidden:
		title = "Access Denied"
		message = "forbidden"
	case http.StatusNotFound:
		message = orDefault(msg, "not found")
	case http.StatusInternalServerError:
		title = "Server Error"
		message = "server error"
	case http.StatusServiceUnavailable:
		message = "service unavailable"
	default:
		message = orDefault(msg, fmt.Sprintf("request failed (%d)", status))
	}
	return &Error{Status: status, Title: title, Message: message, Err: cause}
}

func newNetworkError(cause error) *Error {
	return &Error{Title: "Network Error", Message: "network error", Err: cause}
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
