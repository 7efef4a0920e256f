package esign

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the API rejected the bearer token (HTTP 401).
	ErrAuth = errors.New("esign: credential rejected by signature api")
	// ErrTransient covers network failures and timeouts. The call may be retried.
	ErrTransient = errors.New("esign: signature api unreachable")
	// ErrNotReady is returned when the signed document is requested before the transaction is signed.
	ErrNotReady = errors.New("esign: signed document not ready")
	// ErrNotConfigured means the base url or the bearer token is missing.
	ErrNotConfigured = errors.New("esign: signature api url and bearer token must be configured")
)

// APIError is a non-2xx answer of the signature API.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("esign: %s failed: status=%d message=%s", e.Op, e.StatusCode, msg)
}

// Unwrap exposes ErrAuth for 401 answers so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrAuth
	}
	return nil
}
