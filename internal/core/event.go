package core

import (
	"time"

	"github.com/pvolkhin/chatgram-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage carries a freshly persisted message to room subscribers.
	EventNewMessage EventKind = iota
	// EventMessagesRead notifies a room that a user has read its messages.
	EventMessagesRead
	// EventMessagesDelivered notifies a room that a user acked live receipt.
	EventMessagesDelivered
	// EventUserTyping relays a typing indicator. Never persisted.
	EventUserTyping
	// EventUserStoppedTyping relays the end of a typing indicator.
	EventUserStoppedTyping
	// EventUserStatusChanged announces a presence change process-wide.
	EventUserStatusChanged
	// EventError notifies the originating client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind   EventKind
	ChatID int64

	// Message is set for EventNewMessage.
	Message *store.Message

	// UserID and UserName identify the acting user for read/typing/presence
	// events.
	UserID   int64
	UserName string

	// Presence payload for EventUserStatusChanged.
	Online   bool
	LastSeen *time.Time

	// Error is set for EventError.
	Error *CoreError
}
