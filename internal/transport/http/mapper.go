package http

import (
	"encoding/json"
	"fmt"

	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/proto"
	"github.com/campuslms/chatcore/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Message: msg}
}

// inboundToCommand decodes a client frame. A non-nil *proto.Error is sent back
// to the client and the frame is dropped.
func inboundToCommand(client *core.Client, inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom, proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.RoomID <= 0 {
			return nil, badRequest("roomId is required")
		}
		if perr := checkActor(client, data.UserID); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: roomCommandKinds[inbound.Type], RoomID: data.RoomID}, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.RoomID <= 0 {
			return nil, badRequest("roomId is required")
		}
		if perr := checkActor(client, data.UserID); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandSendMessage, RoomID: data.RoomID, Content: data.Content}, nil

	case proto.InboundTypeMarkRead:
		var data proto.MarkReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.MessageID <= 0 {
			return nil, badRequest("messageId is required")
		}
		if perr := checkActor(client, data.UserID); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandMarkRead, MessageID: data.MessageID}, nil

	case proto.InboundTypeDeleteMessage:
		var data proto.DeleteMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.MessageID <= 0 {
			return nil, badRequest("messageId is required")
		}
		if data.RoomID < 0 {
			return nil, badRequest("roomId is invalid")
		}
		if perr := checkActor(client, data.UserID); perr != nil {
			return nil, perr
		}
		if perr := checkActor(client, data.DeletedBy); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandDeleteMessage, RoomID: data.RoomID, MessageID: data.MessageID}, nil

	default:
		return nil, badRequest("unknown message type")
	}
}

var roomCommandKinds = map[string]core.CommandKind{
	proto.InboundTypeJoinRoom:    core.CommandJoinRoom,
	proto.InboundTypeLeaveRoom:   core.CommandLeaveRoom,
	proto.InboundTypeTypingStart: core.CommandTypingStart,
	proto.InboundTypeTypingStop:  core.CommandTypingStop,
}

// checkActor rejects frames that claim to act for someone other than the
// authenticated user. Zero means the field was omitted.
func checkActor(client *core.Client, claimed int64) *proto.Error {
	if claimed != 0 && claimed != client.UserID {
		return &proto.Error{Code: core.ErrCodeNotAuthorized, Message: "cannot act on behalf of another user"}
	}
	return nil
}

func outboundFromEvent(event *core.Event) (proto.Outbound, error) {
	if event.Kind == core.EventError {
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Message: "unknown error"}}, nil
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Message: event.Error.Message},
		}, nil
	}

	var payload any
	switch event.Kind {
	case core.EventUserJoined:
		data := proto.EventUserJoined{
			RoomID:      event.RoomID,
			UserID:      event.UserID,
			OnlineCount: event.OnlineCount,
		}
		if event.User != nil {
			data.User = userToProto(*event.User)
		}
		payload = data
	case core.EventUserLeft:
		payload = proto.EventUserLeft{RoomID: event.RoomID, UserID: event.UserID, OnlineCount: event.OnlineCount}
	case core.EventOnlineUsers:
		users := make([]proto.User, 0, len(event.Users))
		for _, u := range event.Users {
			users = append(users, userToProto(u))
		}
		payload = proto.EventOnlineUsers{RoomID: event.RoomID, Users: users}
	case core.EventNewMessage:
		if event.Message == nil {
			return proto.Outbound{}, fmt.Errorf("new_message event without message")
		}
		payload = proto.EventNewMessage{Message: messageToProto(event.Message)}
	case core.EventUserTyping, core.EventUserStoppedTyping:
		payload = proto.EventTyping{RoomID: event.RoomID, UserID: event.UserID}
	case core.EventMessageRead:
		payload = proto.EventMessageRead{RoomID: event.RoomID, MessageID: event.MessageID, UserID: event.UserID, ReadAt: event.At}
	case core.EventMessageDeleted:
		payload = proto.EventMessageDeleted{RoomID: event.RoomID, MessageID: event.MessageID, DeletedBy: event.DeletedBy, DeletedAt: event.At}
	default:
		return proto.Outbound{}, fmt.Errorf("unsupported event kind %d", event.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return proto.Outbound{}, fmt.Errorf("marshal %s: %w", event.Kind, err)
	}
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String(), Data: data}, nil
}

func userToProto(u store.User) proto.User {
	return proto.User{
		ID:        u.ID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Role:      string(u.Role),
	}
}

func messageToProto(m *store.Message) proto.Message {
	receipts := make([]proto.ReadReceipt, 0, len(m.ReadReceipts))
	for _, r := range m.ReadReceipts {
		receipts = append(receipts, proto.ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return proto.Message{
		ID:           m.ID,
		RoomID:       m.RoomID,
		SenderID:     m.SenderID,
		Sender:       userToProto(m.Sender),
		Content:      m.Body,
		CreatedAt:    m.CreatedAt,
		DeletedBy:    m.DeletedBy,
		DeletedAt:    m.DeletedAt,
		ReadReceipts: receipts,
	}
}
