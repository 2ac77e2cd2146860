package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pvolkhin/chatgram-server/internal/auth"
	"github.com/pvolkhin/chatgram-server/internal/config"
	"github.com/pvolkhin/chatgram-server/internal/core"
	"github.com/pvolkhin/chatgram-server/internal/store"
	"github.com/pvolkhin/chatgram-server/internal/store/sqlite"
)

type testEnv struct {
	handler stdhttp.Handler
	store   store.Store
	hub     *core.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	logger := zerolog.New(os.Stderr)
	pipeline := core.NewPipeline(st, 100)
	hub := core.NewHub(st, pipeline, core.NewPresence(), &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	server := NewServer(hub, pipeline, authService, st, &cfg, &logger)

	return &testEnv{
		handler: server.Handler,
		store:   st,
		hub:     hub,
	}
}

// do performs one request against the router. A non-empty token is attached
// as a bearer credential; body is JSON-encoded when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// registerUser creates an account through the public endpoint and returns its
// token and user ID.
func registerUser(t *testing.T, e *testEnv, phone, name string) (string, int64) {
	t.Helper()

	rec := e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		PhoneNumber: phone,
		Name:        name,
		Password:    "password123",
	})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d (%s)", phone, rec.Code, rec.Body.String())
	}

	resp := decodeJSON[AuthResponse](t, rec)
	return resp.Token, resp.User.ID
}

// createDirectChat resolves a direct chat between the token's owner and peer.
func createDirectChat(t *testing.T, e *testEnv, token string, peer int64) int64 {
	t.Helper()

	rec := e.do(t, stdhttp.MethodPost, "/api/chats", token, CreateChatRequest{ParticipantID: &peer})
	if rec.Code != stdhttp.StatusCreated && rec.Code != stdhttp.StatusOK {
		t.Fatalf("create chat: expected 201 or 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	return decodeJSON[CreateChatResponse](t, rec).ChatID
}
