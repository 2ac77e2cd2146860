package core

import "github.com/pvolkhin/chatgram-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds a verified user identity to the connection.
	CommandAuthenticate CommandKind = iota
	// CommandJoinChat subscribes the connection to a chat room.
	CommandJoinChat
	// CommandLeaveChat unsubscribes the connection from a chat room.
	CommandLeaveChat
	// CommandSendMessage persists a message and fans it out to the room.
	CommandSendMessage
	// CommandTypingStart relays a typing indicator to the room.
	CommandTypingStart
	// CommandTypingStop relays the end of a typing indicator to the room.
	CommandTypingStop
	// CommandMarkRead marks the chat read for the connection's user.
	CommandMarkRead
	// CommandMarkDelivered acks live receipt of the chat's pending messages.
	CommandMarkDelivered
	// CommandSetPresence flips the user's online flag process-wide.
	CommandSetPresence
)

// Command represents an action requested by a client connection.
type Command struct {
	Kind   CommandKind
	ChatID int64

	// Message payload for CommandSendMessage.
	Content string
	Type    store.MessageType
	ReplyTo *int64

	// Identity payload for CommandAuthenticate.
	User *store.UserSummary

	// Presence payload for CommandSetPresence.
	Online bool
}
