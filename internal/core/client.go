package core

import "github.com/pvolkhin/chatgram-server/internal/store"

// Client is one websocket connection as seen by the core layer. User is nil
// until the connection authenticates; unauthenticated clients only receive
// process-wide presence events.
type Client struct {
	ID       string
	User     *store.UserSummary
	Commands chan *Command
	Events   chan *Event
	Chats    map[int64]struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 16),
		Chats:    make(map[int64]struct{}),
	}
}

// UserID returns the authenticated user's ID, or 0 when unauthenticated.
func (c *Client) UserID() int64 {
	if c.User == nil {
		return 0
	}
	return c.User.ID
}
