package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/pvolkhin/chatgram-server/internal/store"
)

// Pipeline orchestrates the message delivery lifecycle: validate, persist
// with atomic status fan-out, and build the events the hub broadcasts.
// Methods return the event to route rather than routing it themselves so the
// hub (websocket path) and HTTP handlers share one implementation.
type Pipeline struct {
	store        store.Store
	historyLimit int
}

// NewPipeline creates a message pipeline backed by the given store.
// historyLimit caps fetches; zero means the default of 100.
func NewPipeline(st store.Store, historyLimit int) *Pipeline {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Pipeline{store: st, historyLimit: historyLimit}
}

// Send validates and persists a message. The message row and its per-recipient
// 'sent' status rows commit in one store transaction, so a crash can never
// leave a recipient without a status row. The returned event targets the whole
// room, sender's own connections included (canonical database-backed emission,
// unlike relay-only events).
func (p *Pipeline) Send(ctx context.Context, chatID, senderID int64, content string, msgType store.MessageType, replyTo *int64) (*store.Message, *Event, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, store.ErrEmptyContent
	}

	ok, err := p.store.IsParticipant(ctx, senderID, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("check participation: %w", err)
	}
	if !ok {
		return nil, nil, store.ErrNotParticipant
	}

	msg, err := p.store.SendMessage(ctx, chatID, senderID, content, msgType, replyTo)
	if err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}

	return msg, &Event{
		Kind:    EventNewMessage,
		ChatID:  chatID,
		Message: msg,
	}, nil
}

// Fetch lists the chat's recent messages for a viewer and marks them read as a
// side effect: a successful fetch leaves no unread status rows for the viewer.
// The returned event (nil when nothing was unread) targets the room excluding
// the viewer.
func (p *Pipeline) Fetch(ctx context.Context, chatID, viewerID int64, limit int) ([]*store.Message, *Event, error) {
	if limit <= 0 || limit > p.historyLimit {
		limit = p.historyLimit
	}

	ok, err := p.store.IsParticipant(ctx, viewerID, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("check participation: %w", err)
	}
	if !ok {
		return nil, nil, store.ErrNotParticipant
	}

	messages, err := p.store.ListMessages(ctx, chatID, viewerID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}

	readEvent, err := p.MarkRead(ctx, chatID, viewerID)
	if err != nil {
		return nil, nil, err
	}

	return messages, readEvent, nil
}

// MarkRead transitions the viewer's pending status rows to 'read'. Idempotent;
// returns a messages-read event when any row changed, nil otherwise.
func (p *Pipeline) MarkRead(ctx context.Context, chatID, viewerID int64) (*Event, error) {
	changed, err := p.store.MarkRead(ctx, chatID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if changed == 0 {
		return nil, nil
	}

	return &Event{
		Kind:   EventMessagesRead,
		ChatID: chatID,
		UserID: viewerID,
	}, nil
}

// MarkDelivered upgrades the user's 'sent' rows to 'delivered' on an explicit
// client ack. Monotonic: rows already read stay read.
func (p *Pipeline) MarkDelivered(ctx context.Context, chatID, userID int64) (*Event, error) {
	changed, err := p.store.MarkDelivered(ctx, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	if changed == 0 {
		return nil, nil
	}

	return &Event{
		Kind:   EventMessagesDelivered,
		ChatID: chatID,
		UserID: userID,
	}, nil
}
