// Package apperr defines the small sentinel-error taxonomy shared by the
// gateway and edge processes, and maps each to its client-facing HTTP
// response.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error carries an HTTP status alongside a client-safe message. It never
// embeds internal detail (stack traces, driver errors) — those are logged,
// not returned.
type Error struct {
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Wrap attaches cause to a sentinel Error for logging, preserving Is/As
// matching against the sentinel.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Status: sentinel.Status, Message: sentinel.Message, cause: cause}
}

var (
	// ErrCapabilityInvalid covers missing, malformed, expired, or
	// mismatched signatures. Never logged at error level — adversarial
	// input is expected.
	ErrCapabilityInvalid = &Error{Status: http.StatusForbidden, Message: "forbidden"}

	// ErrResourceAbsent means the object store reports the key does not
	// exist.
	ErrResourceAbsent = &Error{Status: http.StatusNotFound, Message: "not found"}

	// ErrStorage covers any other object-store failure.
	ErrStorage = &Error{Status: http.StatusBadGateway, Message: "storage error"}

	// ErrOriginUnreachable means the edge could not complete an HTTP call
	// to the gateway.
	ErrOriginUnreachable = &Error{Status: http.StatusBadGateway, Message: "CDN Error: failed to reach streaming API"}

	// ErrBadRequest covers malformed queries outside the signature path
	// (e.g. a malformed bitrate list).
	ErrBadRequest = &Error{Status: http.StatusBadRequest, Message: "bad request"}
)

// Is lets errors.Is(err, apperr.ErrResourceAbsent) work across Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Message == t.Message
}

// WriteJSON writes err as a JSON body of the shape {"detail": "..."} with
// err's status code. Use for endpoints whose error contract is JSON (the
// CDN proxy).
func WriteJSON(w http.ResponseWriter, err error) {
	var appErr *Error
	status := http.StatusInternalServerError
	detail := "internal error"
	if errors.As(err, &appErr) {
		status = appErr.Status
		detail = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// WritePlain writes err as a plain-text body with err's status code. Use for
// the gateway origin endpoint, whose error contract is a short text message.
func WritePlain(w http.ResponseWriter, err error) {
	var appErr *Error
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.As(err, &appErr) {
		status = appErr.Status
		msg = appErr.Message
	}
	http.Error(w, msg, status)
}
