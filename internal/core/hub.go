package core

import (
	"context"
	"time"

	"github.com/pvolkhin/chatgram-server/internal/store"
	"github.com/rs/zerolog"
)

// Hub owns the chat rooms and routes commands from client connections. All
// room and client state is confined to the Run loop, so one send's
// persist-then-broadcast sequence is never interleaved with another command's
// view of the same chat.
type Hub struct {
	store    store.Store
	pipeline *Pipeline
	presence *Presence
	log      *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	publishes  chan publishRequest

	rooms   map[int64]*Room
	clients map[*Client]struct{}
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

type publishRequest struct {
	chatID       int64
	event        *Event
	exceptUserID int64 // 0 means no exclusion
}

// NewHub creates a new chat hub instance.
func NewHub(st store.Store, pipeline *Pipeline, presence *Presence, logger *zerolog.Logger) *Hub {
	return &Hub{
		store:      st,
		pipeline:   pipeline,
		presence:   presence,
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		publishes:  make(chan publishRequest, 64),
		rooms:      make(map[int64]*Room),
		clients:    make(map[*Client]struct{}),
	}
}

// RegisterClient adds a connection to the hub and starts pumping its commands
// into the run loop.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
	go func() {
		for cmd := range c.Commands {
			h.commands <- clientCommand{client: c, cmd: cmd}
		}
	}()
}

// UnregisterClient removes a connection from the hub and from every room it
// joined. It does not mark the user offline: the offline transition is an
// explicit client action.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Publish delivers an event to a chat's room from outside the run loop (the
// HTTP handlers). exceptUserID, when non-zero, skips every connection of that
// user.
func (h *Hub) Publish(chatID int64, event *Event, exceptUserID int64) {
	h.publishes <- publishRequest{chatID: chatID, event: event, exceptUserID: exceptUserID}
}

// Run processes hub traffic until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			h.dropClient(c)
		case req := <-h.publishes:
			if room, ok := h.rooms[req.chatID]; ok {
				if req.exceptUserID != 0 {
					room.BroadcastExceptUser(req.event, req.exceptUserID)
				} else {
					room.Broadcast(req.event, nil)
				}
			}
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				continue // command raced with disconnect
			}
			h.handleCommand(ctx, cc.client, cc.cmd)
		}
	}
}

func (h *Hub) dropClient(c *Client) {
	for chatID := range c.Chats {
		if room, ok := h.rooms[chatID]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, chatID)
			}
		}
	}
	c.Chats = make(map[int64]struct{})
	delete(h.clients, c)
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Kind == CommandAuthenticate {
		c.User = cmd.User
		return
	}

	if c.User == nil {
		h.sendError(c, coreError(ErrCodeUnauthorized, "authentication required"))
		return
	}

	switch cmd.Kind {
	case CommandJoinChat:
		h.handleJoin(ctx, c, cmd.ChatID)
	case CommandLeaveChat:
		h.handleLeave(c, cmd.ChatID)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd)
	case CommandTypingStart:
		h.relayTyping(c, cmd.ChatID, EventUserTyping)
	case CommandTypingStop:
		h.relayTyping(c, cmd.ChatID, EventUserStoppedTyping)
	case CommandMarkRead:
		h.handleMarkRead(ctx, c, cmd.ChatID)
	case CommandMarkDelivered:
		h.handleMarkDelivered(ctx, c, cmd.ChatID)
	case CommandSetPresence:
		h.handleSetPresence(ctx, c, cmd.Online)
	default:
		h.sendError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

// handleJoin subscribes the connection to a chat room. Idempotent: joining a
// room already joined is a no-op.
func (h *Hub) handleJoin(ctx context.Context, c *Client, chatID int64) {
	if _, joined := c.Chats[chatID]; joined {
		return
	}

	ok, err := h.store.IsParticipant(ctx, c.User.ID, chatID)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("check participation")
		h.sendError(c, coreErrorFrom(err))
		return
	}
	if !ok {
		h.sendError(c, coreError(ErrCodeChatNotFound, "chat not found"))
		return
	}

	room, exists := h.rooms[chatID]
	if !exists {
		room = NewRoom(chatID)
		h.rooms[chatID] = room
	}
	room.AddClient(c)
	c.Chats[chatID] = struct{}{}
}

// handleLeave unsubscribes the connection from a chat room. Idempotent.
func (h *Hub) handleLeave(c *Client, chatID int64) {
	if _, joined := c.Chats[chatID]; !joined {
		return
	}
	delete(c.Chats, chatID)
	if room, ok := h.rooms[chatID]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(h.rooms, chatID)
		}
	}
}

// handleSend runs the full pipeline for one message: validate, persist with
// atomic status fan-out, then broadcast. The new-message event reaches every
// subscribed connection including the sender's own; sender exclusion applies
// to relay-only events, not this canonical emission.
func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	msg, event, err := h.pipeline.Send(ctx, cmd.ChatID, c.User.ID, cmd.Content, cmd.Type, cmd.ReplyTo)
	if err != nil {
		h.sendError(c, coreErrorFrom(err))
		return
	}

	if room, ok := h.rooms[cmd.ChatID]; ok {
		room.Broadcast(event, nil)
	}
	h.log.Debug().Int64("chat_id", cmd.ChatID).Int64("message_id", msg.ID).Msg("message delivered")
}

// relayTyping forwards a typing indicator to the room, never persisting it and
// never echoing it back to the originating connection.
func (h *Hub) relayTyping(c *Client, chatID int64, kind EventKind) {
	if _, joined := c.Chats[chatID]; !joined {
		h.sendError(c, coreError(ErrCodeChatNotFound, "join the chat first"))
		return
	}
	if room, ok := h.rooms[chatID]; ok {
		room.Broadcast(&Event{
			Kind:     kind,
			ChatID:   chatID,
			UserID:   c.User.ID,
			UserName: c.User.Name,
		}, c)
	}
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, chatID int64) {
	event, err := h.pipeline.MarkRead(ctx, chatID, c.User.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("mark read")
		h.sendError(c, coreErrorFrom(err))
		return
	}
	if event == nil {
		return
	}
	event.UserName = c.User.Name
	if room, ok := h.rooms[chatID]; ok {
		room.Broadcast(event, c)
	}
}

func (h *Hub) handleMarkDelivered(ctx context.Context, c *Client, chatID int64) {
	event, err := h.pipeline.MarkDelivered(ctx, chatID, c.User.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("mark delivered")
		h.sendError(c, coreErrorFrom(err))
		return
	}
	if event == nil {
		return
	}
	event.UserName = c.User.Name
	if room, ok := h.rooms[chatID]; ok {
		room.Broadcast(event, c)
	}
}

// handleSetPresence flips the user's online flag, persists it, and announces
// the change to every connection process-wide. Presence is not room-scoped:
// contact lists need it regardless of open chats.
func (h *Hub) handleSetPresence(ctx context.Context, c *Client, online bool) {
	event := &Event{
		Kind:     EventUserStatusChanged,
		UserID:   c.User.ID,
		UserName: c.User.Name,
		Online:   online,
	}

	if online {
		h.presence.SetOnline(c.User.ID)
		if err := h.store.SetUserOnline(ctx, c.User.ID); err != nil {
			h.log.Error().Err(err).Int64("user_id", c.User.ID).Msg("persist online flag")
		}
	} else {
		now := time.Now().UTC()
		h.presence.SetOffline(c.User.ID, now)
		if err := h.store.SetUserOffline(ctx, c.User.ID, now); err != nil {
			h.log.Error().Err(err).Int64("user_id", c.User.ID).Msg("persist offline flag")
		}
		event.LastSeen = &now
	}

	h.broadcastAll(event)
}

// broadcastAll delivers an event to every connection, authenticated or not.
func (h *Hub) broadcastAll(event *Event) {
	for client := range h.clients {
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

func (h *Hub) sendError(c *Client, cerr *CoreError) {
	select {
	case c.Events <- &Event{Kind: EventError, Error: cerr}:
	default:
	}
}
