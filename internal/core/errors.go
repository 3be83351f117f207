package core

import "errors"

// Error codes carried on error frames.
const (
	ErrCodeNotParticipant = "not_participant"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodePersistFailed  = "persist_failed"
)

var (
	// ErrBadRequest is returned for malformed or empty inbound payloads.
	ErrBadRequest = errors.New("bad request")
)

// DomainError wraps a code and human-readable message for error frames.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func domainError(code, msg string) *DomainError {
	return &DomainError{Code: code, Message: msg}
}
