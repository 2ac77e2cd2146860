package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pvolkhin/chatgram-server/internal/store"
	"github.com/pvolkhin/chatgram-server/internal/store/sqlite"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	return NewHub(st, NewPipeline(st, 100), NewPresence(), &logger)
}

// attach wires a connection straight into the hub's state, bypassing the run
// loop so commands can be dispatched synchronously with handleCommand.
func attach(h *Hub, id string, user *store.UserSummary) *Client {
	c := NewClient(id)
	c.User = user
	h.clients[c] = struct{}{}
	return c
}

func mustEvent(t *testing.T, c *Client, kind EventKind) *Event {
	t.Helper()

	select {
	case event := <-c.Events:
		if event.Kind != kind {
			t.Fatalf("expected event kind %d, got %d", kind, event.Kind)
		}
		return event
	case <-time.After(time.Second):
		t.Fatalf("expected event kind %d, got none", kind)
		return nil
	}
}

func mustNoEvent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case event := <-c.Events:
		t.Fatalf("expected no event, got kind %d", event.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRejectsUnauthenticatedCommands(t *testing.T) {
	h := newTestHub(t)
	c := attach(h, "c1", nil)

	h.handleCommand(context.Background(), c, &Command{Kind: CommandJoinChat, ChatID: 1})

	event := mustEvent(t, c, EventError)
	if event.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected %s, got %s", ErrCodeUnauthorized, event.Error.Code)
	}
}

func TestHubAuthenticateBindsUser(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	c := attach(h, "c1", nil)

	h.handleCommand(ctx, c, &Command{Kind: CommandAuthenticate, User: alice})
	if c.UserID() != alice.ID {
		t.Fatalf("expected user %d bound, got %d", alice.ID, c.UserID())
	}
	mustNoEvent(t, c)
}

func TestHubJoinUnknownChat(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	c := attach(h, "c1", alice)

	h.handleCommand(ctx, c, &Command{Kind: CommandJoinChat, ChatID: 999})

	event := mustEvent(t, c, EventError)
	if event.Error.Code != ErrCodeChatNotFound {
		t.Fatalf("expected %s, got %s", ErrCodeChatNotFound, event.Error.Code)
	}
	if len(h.rooms) != 0 {
		t.Fatalf("expected no rooms, got %d", len(h.rooms))
	}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	c := attach(h, "c1", alice)
	h.handleCommand(ctx, c, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, c, &Command{Kind: CommandJoinChat, ChatID: chatID})

	mustNoEvent(t, c)
	if len(h.rooms[chatID].clients) != 1 {
		t.Fatalf("expected 1 room member, got %d", len(h.rooms[chatID].clients))
	}
}

func TestHubSendBroadcastsToRoomIncludingSender(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	ca := attach(h, "c1", alice)
	cb := attach(h, "c2", bob)
	h.handleCommand(ctx, ca, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, cb, &Command{Kind: CommandJoinChat, ChatID: chatID})

	h.handleCommand(ctx, ca, &Command{Kind: CommandSendMessage, ChatID: chatID, Content: "hello"})

	// The canonical new-message emission reaches the sender's connection too.
	for _, c := range []*Client{ca, cb} {
		event := mustEvent(t, c, EventNewMessage)
		if event.Message.Content != "hello" {
			t.Fatalf("expected content %q, got %q", "hello", event.Message.Content)
		}
		if event.Message.Sender.Name != "alice" {
			t.Fatalf("expected sender alice, got %q", event.Message.Sender.Name)
		}
	}
}

func TestHubSendEmptyContent(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	c := attach(h, "c1", alice)
	h.handleCommand(ctx, c, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, c, &Command{Kind: CommandSendMessage, ChatID: chatID, Content: "   "})

	event := mustEvent(t, c, EventError)
	if event.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected %s, got %s", ErrCodeBadRequest, event.Error.Code)
	}
}

func TestHubTypingRelayExcludesOrigin(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	ca := attach(h, "c1", alice)
	cb := attach(h, "c2", bob)
	h.handleCommand(ctx, ca, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, cb, &Command{Kind: CommandJoinChat, ChatID: chatID})

	h.handleCommand(ctx, ca, &Command{Kind: CommandTypingStart, ChatID: chatID})

	event := mustEvent(t, cb, EventUserTyping)
	if event.UserID != alice.ID || event.UserName != "alice" {
		t.Fatalf("expected typing from alice, got user %d %q", event.UserID, event.UserName)
	}
	mustNoEvent(t, ca)

	h.handleCommand(ctx, ca, &Command{Kind: CommandTypingStop, ChatID: chatID})
	mustEvent(t, cb, EventUserStoppedTyping)
}

func TestHubTypingRequiresJoinedRoom(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	c := attach(h, "c1", alice)
	h.handleCommand(ctx, c, &Command{Kind: CommandTypingStart, ChatID: chatID})

	event := mustEvent(t, c, EventError)
	if event.Error.Code != ErrCodeChatNotFound {
		t.Fatalf("expected %s, got %s", ErrCodeChatNotFound, event.Error.Code)
	}
}

func TestHubMarkReadBroadcastsReceipt(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	ca := attach(h, "c1", alice)
	cb := attach(h, "c2", bob)
	h.handleCommand(ctx, ca, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, cb, &Command{Kind: CommandJoinChat, ChatID: chatID})

	h.handleCommand(ctx, ca, &Command{Kind: CommandSendMessage, ChatID: chatID, Content: "hello"})
	mustEvent(t, ca, EventNewMessage)
	mustEvent(t, cb, EventNewMessage)

	h.handleCommand(ctx, cb, &Command{Kind: CommandMarkRead, ChatID: chatID})

	event := mustEvent(t, ca, EventMessagesRead)
	if event.UserID != bob.ID {
		t.Fatalf("expected read receipt from bob, got user %d", event.UserID)
	}
	mustNoEvent(t, cb)

	// A second mark-read has nothing left to flip and stays silent.
	h.handleCommand(ctx, cb, &Command{Kind: CommandMarkRead, ChatID: chatID})
	mustNoEvent(t, ca)
}

func TestHubMarkDeliveredBroadcastsReceipt(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	ca := attach(h, "c1", alice)
	cb := attach(h, "c2", bob)
	h.handleCommand(ctx, ca, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, cb, &Command{Kind: CommandJoinChat, ChatID: chatID})

	h.handleCommand(ctx, ca, &Command{Kind: CommandSendMessage, ChatID: chatID, Content: "hello"})
	mustEvent(t, ca, EventNewMessage)
	mustEvent(t, cb, EventNewMessage)

	h.handleCommand(ctx, cb, &Command{Kind: CommandMarkDelivered, ChatID: chatID})

	event := mustEvent(t, ca, EventMessagesDelivered)
	if event.UserID != bob.ID {
		t.Fatalf("expected delivery ack from bob, got user %d", event.UserID)
	}
	mustNoEvent(t, cb)
}

func TestHubPresenceBroadcastsToEveryConnection(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	ca := attach(h, "c1", alice)
	anon := attach(h, "c2", nil) // never authenticated

	h.handleCommand(ctx, ca, &Command{Kind: CommandSetPresence, Online: false})

	for _, c := range []*Client{ca, anon} {
		event := mustEvent(t, c, EventUserStatusChanged)
		if event.UserID != alice.ID || event.Online {
			t.Fatalf("expected alice offline, got user %d online=%v", event.UserID, event.Online)
		}
		if event.LastSeen == nil {
			t.Fatalf("expected last_seen on offline event")
		}
	}

	if h.presence.IsOnline(alice.ID) {
		t.Fatalf("expected alice offline in registry")
	}
	user, err := h.store.GetUserByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.IsOnline {
		t.Fatalf("expected offline flag persisted")
	}

	h.handleCommand(ctx, ca, &Command{Kind: CommandSetPresence, Online: true})
	event := mustEvent(t, anon, EventUserStatusChanged)
	if !event.Online || event.LastSeen != nil {
		t.Fatalf("expected plain online event, got online=%v last_seen=%v", event.Online, event.LastSeen)
	}
}

func TestHubDropClientLeavesRooms(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	ca := attach(h, "c1", alice)
	cb := attach(h, "c2", bob)
	h.handleCommand(ctx, ca, &Command{Kind: CommandJoinChat, ChatID: chatID})
	h.handleCommand(ctx, cb, &Command{Kind: CommandJoinChat, ChatID: chatID})

	h.dropClient(cb)

	// Disconnect only detaches the connection; the user is not flipped offline.
	user, err := h.store.GetUserByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !user.IsOnline {
		t.Fatalf("expected bob still online after disconnect")
	}

	h.handleCommand(ctx, ca, &Command{Kind: CommandTypingStart, ChatID: chatID})
	mustNoEvent(t, cb)

	h.dropClient(ca)
	if len(h.rooms) != 0 {
		t.Fatalf("expected empty rooms after last client left, got %d", len(h.rooms))
	}
}

func TestHubRunRegistersAndPublishes(t *testing.T) {
	h := newTestHub(t)

	alice := seedUser(t, h.store, "+1001", "alice")
	bob := seedUser(t, h.store, "+1002", "bob")
	chatID := seedDirectChat(t, h.store, alice.ID, bob.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c1")
	h.RegisterClient(c)
	defer h.UnregisterClient(c)

	c.Commands <- &Command{Kind: CommandAuthenticate, User: alice}
	c.Commands <- &Command{Kind: CommandJoinChat, ChatID: chatID}
	// Commands from one connection are processed in order, so this error
	// confirms the join above has been applied.
	c.Commands <- &Command{Kind: CommandTypingStart, ChatID: 999}
	mustEvent(t, c, EventError)

	h.Publish(chatID, &Event{Kind: EventMessagesRead, ChatID: chatID, UserID: bob.ID}, 0)
	event := mustEvent(t, c, EventMessagesRead)
	if event.UserID != bob.ID {
		t.Fatalf("expected receipt from bob, got user %d", event.UserID)
	}

	// Excluding the user skips every one of their connections.
	h.Publish(chatID, &Event{Kind: EventMessagesRead, ChatID: chatID, UserID: bob.ID}, alice.ID)
	mustNoEvent(t, c)
}
