package http

import (
	"fmt"
	stdhttp "net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, stdhttp.MethodGet, "/health", "", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body ok, got %q", rec.Body.String())
	}
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)

	token, userID := registerUser(t, e, "+15550001", "alice")
	if token == "" || userID == 0 {
		t.Fatalf("expected token and user id, got %q %d", token, userID)
	}

	// Duplicate phone number.
	rec := e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		PhoneNumber: "+15550001",
		Name:        "someone else",
		Password:    "password123",
	})
	if rec.Code != stdhttp.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = e.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{PhoneNumber: "+15550001", Password: "password123"})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[AuthResponse](t, rec)
	if resp.User.ID != userID {
		t.Fatalf("expected user %d, got %d", userID, resp.User.ID)
	}

	rec = e.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{PhoneNumber: "+15550001", Password: "wrong"})
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRegisterValidatesBody(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		PhoneNumber: "+15550001",
		Name:        "alice",
		Password:    "short",
	})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rec.Code)
	}

	rec = e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{Name: "alice", Password: "password123"})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for missing phone, got %d", rec.Code)
	}
}

func TestAuthMiddlewareGuardsAPI(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, stdhttp.MethodGet, "/api/chats", "", nil)
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = e.do(t, stdhttp.MethodGet, "/api/chats", "not-a-token", nil)
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	e := newTestEnv(t)

	token, _ := registerUser(t, e, "+15550001", "alice")
	registerUser(t, e, "+15550002", "alex")
	registerUser(t, e, "+15550003", "bob")

	// Queries under two characters return nothing rather than everything.
	rec := e.do(t, stdhttp.MethodGet, "/api/users/search?q=a", token, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if hits := decodeJSON[[]UserSummaryResponse](t, rec); len(hits) != 0 {
		t.Fatalf("expected no hits for short query, got %d", len(hits))
	}

	rec = e.do(t, stdhttp.MethodGet, "/api/users/search?q=al", token, nil)
	hits := decodeJSON[[]UserSummaryResponse](t, rec)
	if len(hits) != 1 || hits[0].Name != "alex" {
		t.Fatalf("expected only alex (requester excluded), got %+v", hits)
	}
}

func TestCreateChat(t *testing.T) {
	e := newTestEnv(t)

	aliceToken, _ := registerUser(t, e, "+15550001", "alice")
	bobToken, bobID := registerUser(t, e, "+15550002", "bob")

	rec := e.do(t, stdhttp.MethodPost, "/api/chats", aliceToken, CreateChatRequest{})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for direct chat without participant, got %d", rec.Code)
	}

	rec = e.do(t, stdhttp.MethodPost, "/api/chats", aliceToken, CreateChatRequest{ParticipantID: &bobID})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	first := decodeJSON[CreateChatResponse](t, rec)
	if !first.Created {
		t.Fatalf("expected created=true")
	}

	// The same pair resolves to the existing chat, from either side.
	rec = e.do(t, stdhttp.MethodPost, "/api/chats", aliceToken, CreateChatRequest{ParticipantID: &bobID})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200 on reuse, got %d", rec.Code)
	}
	second := decodeJSON[CreateChatResponse](t, rec)
	if second.Created || second.ChatID != first.ChatID {
		t.Fatalf("expected existing chat %d, got %+v", first.ChatID, second)
	}

	bobsChats := e.do(t, stdhttp.MethodGet, "/api/chats", bobToken, nil)
	chats := decodeJSON[[]ChatSummaryResponse](t, bobsChats)
	if len(chats) != 1 || chats[0].Name != "alice" {
		t.Fatalf("expected one chat named after the peer, got %+v", chats)
	}

	rec = e.do(t, stdhttp.MethodPost, "/api/chats", aliceToken, CreateChatRequest{IsGroup: true, Name: "team"})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected 201 for group, got %d", rec.Code)
	}
}

func TestSendAndListMessages(t *testing.T) {
	e := newTestEnv(t)

	aliceToken, _ := registerUser(t, e, "+15550001", "alice")
	bobToken, bobID := registerUser(t, e, "+15550002", "bob")
	chatID := createDirectChat(t, e, aliceToken, bobID)
	messagesPath := fmt.Sprintf("/api/chats/%d/messages", chatID)

	rec := e.do(t, stdhttp.MethodPost, messagesPath, aliceToken, SendMessageRequest{Content: "   "})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", rec.Code)
	}

	rec = e.do(t, stdhttp.MethodPost, messagesPath, aliceToken, SendMessageRequest{Content: "hello bob"})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	sent := decodeJSON[MessageResponse](t, rec)
	if sent.Status != "sent" || sent.Sender.Name != "alice" {
		t.Fatalf("expected fresh message from alice, got %+v", sent)
	}

	chats := decodeJSON[[]ChatSummaryResponse](t, e.do(t, stdhttp.MethodGet, "/api/chats", bobToken, nil))
	if chats[0].UnreadCount != 1 {
		t.Fatalf("expected 1 unread for bob, got %d", chats[0].UnreadCount)
	}

	// Fetching acknowledges receipt: bob's unread counter drops to zero.
	rec = e.do(t, stdhttp.MethodGet, messagesPath, bobToken, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	messages := decodeJSON[[]MessageResponse](t, rec)
	if len(messages) != 1 || messages[0].Content != "hello bob" {
		t.Fatalf("expected the sent message, got %+v", messages)
	}

	chats = decodeJSON[[]ChatSummaryResponse](t, e.do(t, stdhttp.MethodGet, "/api/chats", bobToken, nil))
	if chats[0].UnreadCount != 0 {
		t.Fatalf("expected 0 unread after fetch, got %d", chats[0].UnreadCount)
	}
}

func TestMessagesEndpointsRejectOutsiders(t *testing.T) {
	e := newTestEnv(t)

	aliceToken, _ := registerUser(t, e, "+15550001", "alice")
	_, bobID := registerUser(t, e, "+15550002", "bob")
	malloryToken, _ := registerUser(t, e, "+15550003", "mallory")
	chatID := createDirectChat(t, e, aliceToken, bobID)
	messagesPath := fmt.Sprintf("/api/chats/%d/messages", chatID)

	// Membership failures are indistinguishable from unknown chats.
	rec := e.do(t, stdhttp.MethodGet, messagesPath, malloryToken, nil)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404 for outsider fetch, got %d", rec.Code)
	}
	rec = e.do(t, stdhttp.MethodPost, messagesPath, malloryToken, SendMessageRequest{Content: "hi"})
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404 for outsider send, got %d", rec.Code)
	}

	rec = e.do(t, stdhttp.MethodGet, "/api/chats/999/messages", aliceToken, nil)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404 for unknown chat, got %d", rec.Code)
	}
	rec = e.do(t, stdhttp.MethodGet, "/api/chats/abc/messages", aliceToken, nil)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for malformed chat id, got %d", rec.Code)
	}
}
