package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/proto"
	"github.com/campuslms/chatcore/internal/store"
)

func TestOutboundMessageCarriesTombstone(t *testing.T) {
	deletedBy := int64(7)
	deletedAt := time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC)
	ev := &core.Event{
		Kind:   core.EventNewMessage,
		RoomID: 3,
		Message: &store.Message{
			ID:        11,
			RoomID:    3,
			SenderID:  2,
			Sender:    store.User{ID: 2, Name: "alice", Role: store.UserRoleStudent},
			Body:      "hello",
			CreatedAt: deletedAt.Add(-time.Hour),
			DeletedBy: &deletedBy,
			DeletedAt: &deletedAt,
		},
	}

	out, err := outboundFromEvent(ev)
	if err != nil {
		t.Fatalf("map event: %v", err)
	}
	if out.Type != proto.OutboundTypeEvent || out.Event != "new_message" {
		t.Fatalf("unexpected envelope: %+v", out)
	}

	var raw struct {
		Message map[string]json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(out.Data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw.Message["deletedBy"]) != "7" || string(raw.Message["deletedAt"]) != `"2025-09-01T10:30:00Z"` {
		t.Fatalf("expected tombstone fields, got deletedBy=%s deletedAt=%s", raw.Message["deletedBy"], raw.Message["deletedAt"])
	}

	ev.Message.DeletedBy, ev.Message.DeletedAt = nil, nil
	out, _ = outboundFromEvent(ev)
	_ = json.Unmarshal(out.Data, &raw)
	if string(raw.Message["deletedAt"]) != "null" {
		t.Fatalf("expected null deletedAt for a live message, got %s", raw.Message["deletedAt"])
	}
}

func TestInboundDeleteMessageCarriesRoom(t *testing.T) {
	client := core.NewClient("c1", store.User{ID: 5, Name: "bob"}, 0)

	tests := []struct {
		name    string
		data    string
		code    string
		roomID  int64
		message int64
	}{
		{name: "with room", data: `{"messageId":9,"roomId":4}`, roomID: 4, message: 9},
		{name: "without room", data: `{"messageId":9}`, message: 9},
		{name: "negative room", data: `{"messageId":9,"roomId":-1}`, code: core.ErrCodeBadRequest},
		{name: "other deleter", data: `{"messageId":9,"deletedBy":6}`, code: core.ErrCodeNotAuthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, perr := inboundToCommand(client, proto.Inbound{Type: proto.InboundTypeDeleteMessage, Data: json.RawMessage(tc.data)})
			if tc.code != "" {
				if perr == nil || perr.Code != tc.code {
					t.Fatalf("expected %s, got %+v", tc.code, perr)
				}
				return
			}
			if perr != nil {
				t.Fatalf("unexpected error: %+v", perr)
			}
			if cmd.Kind != core.CommandDeleteMessage || cmd.RoomID != tc.roomID || cmd.MessageID != tc.message {
				t.Fatalf("unexpected command: %+v", cmd)
			}
		})
	}
}
