package orch

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		raw  string
		want Event
	}{
		{`{"type":"join_room","data":{"room_id":"r1"}}`, JoinRoom{RoomID: "r1"}},
		{`{"type":"leave_room","data":{"room_id":"r1"}}`, LeaveRoom{RoomID: "r1"}},
		{`{"type":"send_message","data":{"room_id":"r1","message":"hi"}}`, SendMessage{RoomID: "r1", Body: "hi"}},
		{`{"type":"typing_start","data":{"room_id":"r1"}}`, TypingStart{RoomID: "r1"}},
		{`{"type":"typing_stop","data":{"room_id":"r1"}}`, TypingStop{RoomID: "r1"}},
		{`{"type":"join_room"}`, JoinRoom{}},
		{`{"type":"send_message","data":null}`, SendMessage{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"dance"}`))
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"type":"join_room","data":{"room_id":42}}`))
	assert.Error(t, err)
}

func TestEncodeFrame(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := &domain.Message{
		ID: "m1", RoomID: "r1", UserID: "u1", Username: "alice",
		Body: "hi", Type: domain.MessageText, Timestamp: ts,
	}
	frame, err := EncodeFrame(TypeMessage, NewMessageView(msg))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "message", got["type"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "hi", data["message"])
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, "text", data["message_type"])
	assert.Equal(t, false, data["is_system"])
	assert.Equal(t, "r1", data["room_id"])
	assert.Equal(t, "2024-05-01T10:00:00Z", data["timestamp"])
}
