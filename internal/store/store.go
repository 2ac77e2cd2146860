package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by store implementations.
var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyContent   = errors.New("content is empty")
	ErrNotParticipant = errors.New("not a chat participant")
)

// User represents a user account.
type User struct {
	ID           int64
	PhoneNumber  string
	Name         string
	Email        string
	PasswordHash string
	Avatar       string
	IsOnline     bool
	LastSeen     *time.Time
	CreatedAt    time.Time
}

// UserSummary is the subset of user fields rendered with messages and presence.
type UserSummary struct {
	ID       int64
	Name     string
	Avatar   string
	IsOnline bool
}

// Chat represents a direct or group conversation.
type Chat struct {
	ID        int64
	Name      string // empty for direct chats
	IsGroup   bool
	CreatedBy int64
	CreatedAt time.Time
}

// ParticipantRole defines a participant's role within a chat.
type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// Participant relates a chat to a user.
type Participant struct {
	ID       int64
	ChatID   int64
	UserID   int64
	Role     ParticipantRole
	JoinedAt time.Time
}

// MessageType tags message content.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"
	MessageTypeFile  MessageType = "file"
)

// DeliveryStatus tracks a recipient's progress for one message.
// Transitions are monotonic: sent -> delivered -> read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Message is a persisted chat message. Immutable once created; only the
// per-recipient delivery status evolves.
type Message struct {
	ID          int64
	Content     string
	Type        MessageType
	ChatID      int64
	SenderID    int64
	ReplyTo     *int64
	IsForwarded bool
	CreatedAt   time.Time

	// Sender and Status are populated on reads for rendering; Status is the
	// viewer's own delivery status ("sent" when no row exists).
	Sender UserSummary
	Status DeliveryStatus
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	ID          int64
	Name        string // peer name for direct chats, group name otherwise
	IsGroup     bool
	Avatar      string
	PeerOnline  bool // meaningful for direct chats only
	LastMessage *MessagePreview
	UnreadCount int64
}

// MessagePreview is the last-message excerpt shown in a chat list.
type MessagePreview struct {
	Content   string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, phoneNumber, name, email, passwordHash, avatar string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByPhone retrieves a user by phone number.
	GetUserByPhone(ctx context.Context, phoneNumber string) (*User, error)

	// GetUserSummary retrieves the rendering subset for a user.
	GetUserSummary(ctx context.Context, id int64) (*UserSummary, error)

	// SearchUsers searches for users by name or phone number, excluding requesterID.
	SearchUsers(ctx context.Context, query string, requesterID int64, limit int) ([]*UserSummary, error)

	// SetUserOnline marks a user online.
	SetUserOnline(ctx context.Context, userID int64) error

	// SetUserOffline marks a user offline and records last seen time.
	SetUserOffline(ctx context.Context, userID int64, lastSeen time.Time) error
}

// ChatStore handles chat and participant persistence.
type ChatStore interface {
	// ResolveOrCreateChat returns an existing direct chat for the unordered
	// (requester, participant) pair, or creates a new chat. For new chats the
	// requester is added as admin; direct chats get the second participant as
	// member. Creation is transactional. Returns created=false on reuse.
	ResolveOrCreateChat(ctx context.Context, requesterID int64, participantID *int64, isGroup bool, name string) (chatID int64, created bool, err error)

	// GetChatByID retrieves a chat by ID.
	GetChatByID(ctx context.Context, id int64) (*Chat, error)

	// ListChats lists chat summaries for a viewer, most recent activity first.
	ListChats(ctx context.Context, viewerID int64) ([]*ChatSummary, error)

	// ListParticipants lists user IDs of all chat participants.
	ListParticipants(ctx context.Context, chatID int64) ([]int64, error)

	// IsParticipant checks whether a user belongs to a chat.
	IsParticipant(ctx context.Context, userID, chatID int64) (bool, error)
}

// MessageStore handles message and delivery status persistence.
type MessageStore interface {
	// SendMessage persists a message and, in the same transaction, creates one
	// 'sent' status row per chat participant other than the sender. Fails with
	// ErrEmptyContent on blank content and ErrNotFound on unknown chat/sender.
	SendMessage(ctx context.Context, chatID, senderID int64, content string, msgType MessageType, replyTo *int64) (*Message, error)

	// ListMessages retrieves the most recent limit messages of a chat in
	// ascending creation order, each annotated with the viewer's own status.
	ListMessages(ctx context.Context, chatID, viewerID int64, limit int) ([]*Message, error)

	// MarkRead transitions every non-read status row of the viewer in the chat
	// to 'read'. Idempotent. Returns the number of rows changed.
	MarkRead(ctx context.Context, chatID, viewerID int64) (int64, error)

	// MarkDelivered transitions the user's 'sent' rows in the chat to
	// 'delivered'. Never downgrades 'read'. Returns the number of rows changed.
	MarkDelivered(ctx context.Context, chatID, userID int64) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
