package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client. Data is one of
// the typed payloads below, selected by Type; free-form maps are rejected at
// the boundary.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeHello         = "hello"
	InboundTypeJoinChat      = "join-chat"
	InboundTypeLeaveChat     = "leave-chat"
	InboundTypeMessage       = "message"
	InboundTypeTypingStart   = "typing-start"
	InboundTypeTypingStop    = "typing-stop"
	InboundTypeMarkRead      = "mark-read"
	InboundTypeMarkDelivered = "mark-delivered"
	InboundTypePresence      = "presence"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameNewMessage        = "new-message"
	EventNameMessagesRead      = "messages-read"
	EventNameMessagesDelivered = "messages-delivered"
	EventNameUserTyping        = "user-typing"
	EventNameUserStoppedTyping = "user-stopped-typing"
	EventNameUserStatusChanged = "user-status-changed"
)

// HelloData authenticates the connection with a JWT.
type HelloData struct {
	Token string `json:"token"`
}

// ChatRef targets a chat for join/leave/typing/read commands.
type ChatRef struct {
	ChatID int64 `json:"chat_id"`
}

// MessageData is a chat message from the client.
type MessageData struct {
	ChatID  int64  `json:"chat_id"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// PresenceData flips the user's own online flag.
type PresenceData struct {
	Online bool `json:"online"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserRef is the sender summary embedded in message events.
type UserRef struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// EventNewMessage carries one persisted message.
type EventNewMessage struct {
	ID          int64   `json:"id"`
	ChatID      int64   `json:"chat_id"`
	Content     string  `json:"content"`
	Type        string  `json:"type"`
	ReplyTo     *int64  `json:"reply_to,omitempty"`
	IsForwarded bool    `json:"is_forwarded,omitempty"`
	Sender      UserRef `json:"sender"`
	Status      string  `json:"status"`
	TS          int64   `json:"ts"`
}

// EventReadReceipt notifies that a user read or received a chat's messages.
type EventReadReceipt struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// EventTyping relays a typing indicator.
type EventTyping struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// EventUserStatus announces a presence change.
type EventUserStatus struct {
	UserID   int64  `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	LastSeen *int64 `json:"last_seen,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
