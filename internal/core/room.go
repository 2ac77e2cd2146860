package core

// Room groups connections subscribed to one chat's live events. Rooms are
// ephemeral: they exist only while at least one connection is joined and are
// rebuilt from scratch on reconnect.
type Room struct {
	ChatID  int64
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(chatID int64) *Room {
	return &Room{
		ChatID:  chatID,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to all clients in the room, skipping except when
// non-nil. Best-effort: slow consumers are dropped, a disconnected recipient
// catches up on its next fetch.
func (r *Room) Broadcast(event *Event, except *Client) {
	for client := range r.clients {
		if client == except {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// BroadcastExceptUser sends an event to all clients in the room except every
// connection of the given user.
func (r *Room) BroadcastExceptUser(event *Event, userID int64) {
	for client := range r.clients {
		if client.UserID() == userID {
			continue
		}
		select {
		case client.Events <- event:
		default:
		}
	}
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
