package core

import (
	"errors"

	"github.com/pvolkhin/chatgram-server/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeChatNotFound = "chat_not_found"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInternal     = "internal"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// coreErrorFrom maps store-layer failures onto wire error codes.
func coreErrorFrom(err error) *CoreError {
	switch {
	case errors.Is(err, store.ErrEmptyContent):
		return coreError(ErrCodeBadRequest, "content is required")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotParticipant):
		return coreError(ErrCodeChatNotFound, "chat not found")
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
