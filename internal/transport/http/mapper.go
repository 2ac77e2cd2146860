package http

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pvolkhin/chatgram-server/internal/core"
	"github.com/pvolkhin/chatgram-server/internal/proto"
	"github.com/pvolkhin/chatgram-server/internal/store"
)

// inboundToCommand maps a wire message onto a core command. A nil command with
// a non-nil proto.Error means the input was rejected at the boundary.
func (h *WSHandler) inboundToCommand(ctx context.Context, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if err := json.Unmarshal(inbound.Data, &hello); err != nil {
			return nil, nil, err
		}
		claims, err := h.authService.ValidateToken(hello.Token)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}, nil
		}
		user, err := h.store.GetUserSummary(ctx, claims.UserID)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "unknown user"}, nil
		}
		return &core.Command{
			Kind: core.CommandAuthenticate,
			User: user,
		}, nil, nil

	case proto.InboundTypeJoinChat, proto.InboundTypeLeaveChat,
		proto.InboundTypeTypingStart, proto.InboundTypeTypingStop,
		proto.InboundTypeMarkRead, proto.InboundTypeMarkDelivered:
		var ref proto.ChatRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil {
			return nil, nil, err
		}
		if ref.ChatID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:   chatCommandKind(inbound.Type),
			ChatID: ref.ChatID,
		}, nil, nil

	case proto.InboundTypeMessage:
		var msg proto.MessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.ChatID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		if msg.Content == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "content is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSendMessage,
			ChatID:  msg.ChatID,
			Content: msg.Content,
			Type:    store.MessageType(msg.Type),
			ReplyTo: msg.ReplyTo,
		}, nil, nil

	case proto.InboundTypePresence:
		var presence proto.PresenceData
		if err := json.Unmarshal(inbound.Data, &presence); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:   core.CommandSetPresence,
			Online: presence.Online,
		}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func chatCommandKind(inboundType string) core.CommandKind {
	switch inboundType {
	case proto.InboundTypeJoinChat:
		return core.CommandJoinChat
	case proto.InboundTypeLeaveChat:
		return core.CommandLeaveChat
	case proto.InboundTypeTypingStart:
		return core.CommandTypingStart
	case proto.InboundTypeTypingStop:
		return core.CommandTypingStop
	case proto.InboundTypeMarkRead:
		return core.CommandMarkRead
	default:
		return core.CommandMarkDelivered
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		msg := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameNewMessage,
			Data: proto.EventNewMessage{
				ID:          msg.ID,
				ChatID:      msg.ChatID,
				Content:     msg.Content,
				Type:        string(msg.Type),
				ReplyTo:     msg.ReplyTo,
				IsForwarded: msg.IsForwarded,
				Sender: proto.UserRef{
					ID:     msg.Sender.ID,
					Name:   msg.Sender.Name,
					Avatar: msg.Sender.Avatar,
				},
				Status: string(msg.Status),
				TS:     msg.CreatedAt.Unix(),
			},
		}
	case core.EventMessagesRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessagesRead,
			Data: proto.EventReadReceipt{
				ChatID: event.ChatID,
				UserID: event.UserID,
			},
		}
	case core.EventMessagesDelivered:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessagesDelivered,
			Data: proto.EventReadReceipt{
				ChatID: event.ChatID,
				UserID: event.UserID,
			},
		}
	case core.EventUserTyping, core.EventUserStoppedTyping:
		name := proto.EventNameUserTyping
		if event.Kind == core.EventUserStoppedTyping {
			name = proto.EventNameUserStoppedTyping
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.EventTyping{
				ChatID:   event.ChatID,
				UserID:   event.UserID,
				UserName: event.UserName,
			},
		}
	case core.EventUserStatusChanged:
		data := proto.EventUserStatus{
			UserID:   event.UserID,
			IsOnline: event.Online,
		}
		if event.LastSeen != nil {
			ts := event.LastSeen.Unix()
			data.LastSeen = &ts
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameUserStatusChanged,
			Data:  data,
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Error: &proto.Error{Code: "unknown", Msg: fmt.Sprintf("unmapped event kind %d", event.Kind)}}
	}
}
