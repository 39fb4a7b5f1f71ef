package orch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// Inbound event types.
const (
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
)

// Outbound event types.
const (
	TypeMessage           = "message"
	TypeError             = "error"
	TypeJoinSuccess       = "join_success"
	TypeUserTyping        = "user_typing"
	TypeUserStoppedTyping = "user_stopped_typing"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Event is a decoded client request. The set of implementations is closed.
type Event interface{ isEvent() }

type JoinRoom struct{ RoomID domain.RoomID }

type LeaveRoom struct{ RoomID domain.RoomID }

type SendMessage struct {
	RoomID domain.RoomID
	Body   string
}

type TypingStart struct{ RoomID domain.RoomID }

type TypingStop struct{ RoomID domain.RoomID }

func (JoinRoom) isEvent()    {}
func (LeaveRoom) isEvent()   {}
func (SendMessage) isEvent() {}
func (TypingStart) isEvent() {}
func (TypingStop) isEvent()  {}

// Envelope is the wire shape in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type roomPayload struct {
	RoomID domain.RoomID `json:"room_id"`
}

type messagePayload struct {
	RoomID  domain.RoomID `json:"room_id"`
	Message string        `json:"message"`
}

// DecodeEvent parses one inbound envelope.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env.Event()
}

func (env Envelope) Event() (Event, error) {
	switch env.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeTypingStart, TypeTypingStop:
		var p roomPayload
		if err := env.decodeData(&p); err != nil {
			return nil, err
		}
		switch env.Type {
		case TypeJoinRoom:
			return JoinRoom{RoomID: p.RoomID}, nil
		case TypeLeaveRoom:
			return LeaveRoom{RoomID: p.RoomID}, nil
		case TypeTypingStart:
			return TypingStart{RoomID: p.RoomID}, nil
		default:
			return TypingStop{RoomID: p.RoomID}, nil
		}
	case TypeSendMessage:
		var p messagePayload
		if err := env.decodeData(&p); err != nil {
			return nil, err
		}
		return SendMessage{RoomID: p.RoomID, Body: p.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func (env Envelope) decodeData(v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}

// MessageView is the broadcast shape of a stored message.
type MessageView struct {
	ID          domain.MessageID   `json:"id"`
	UserID      domain.UserID      `json:"user_id"`
	Username    string             `json:"username"`
	Message     string             `json:"message"`
	MessageType domain.MessageType `json:"message_type"`
	Timestamp   time.Time          `json:"timestamp"`
	IsSystem    bool               `json:"is_system"`
	RoomID      domain.RoomID      `json:"room_id"`
}

func NewMessageView(m *domain.Message) MessageView {
	return MessageView{
		ID:          m.ID,
		UserID:      m.UserID,
		Username:    m.Username,
		Message:     m.Body,
		MessageType: m.Type,
		Timestamp:   m.Timestamp,
		IsSystem:    m.IsSystem,
		RoomID:      m.RoomID,
	}
}

type ErrorView struct {
	Message string `json:"message"`
}

type JoinSuccessView struct {
	RoomID   domain.RoomID `json:"room_id"`
	RoomName string        `json:"room_name"`
}

type TypingView struct {
	Username string        `json:"username"`
	RoomID   domain.RoomID `json:"room_id"`
}

// EncodeFrame wraps data into an envelope of type t.
func EncodeFrame(t string, data any) (core.Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}
