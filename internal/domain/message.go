package domain

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type (
	MessageID   string
	MessageType string
)

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
)

// MaxMessageLen is counted in code points.
const MaxMessageLen = 2000

const MessageTooLong = "Message too long (max 2000 characters)"

type Message struct {
	ID        MessageID   `json:"id"`
	RoomID    RoomID      `json:"room_id"`
	UserID    UserID      `json:"user_id"`
	Username  string      `json:"username"`
	Body      string      `json:"message"`
	Type      MessageType `json:"message_type"`
	Timestamp time.Time   `json:"timestamp"`
	IsSystem  bool        `json:"is_system"`
	IsEdited  bool        `json:"is_edited"`
}

// NewTextMessage trims the body and enforces the length bound.
func NewTextMessage(roomID RoomID, author UserID, username, body string, now time.Time) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, Validation("Message cannot be empty")
	}
	if utf8.RuneCountInString(body) > MaxMessageLen {
		return nil, Validation(MessageTooLong)
	}
	return &Message{
		ID:        MessageID(uuid.NewString()),
		RoomID:    roomID,
		UserID:    author,
		Username:  username,
		Body:      body,
		Type:      MessageText,
		Timestamp: now,
	}, nil
}

func NewSystemMessage(roomID RoomID, text string, now time.Time) *Message {
	return &Message{
		ID:        MessageID(uuid.NewString()),
		RoomID:    roomID,
		UserID:    SystemUserID,
		Username:  SystemUsername,
		Body:      text,
		Type:      MessageSystem,
		Timestamp: now,
		IsSystem:  true,
	}
}

func JoinNotice(username string) string { return username + " joined the room" }

func LeaveNotice(username string) string { return username + " left the room" }

// PageOffset converts a 1-based page into a row offset. ok is false when the
// offset does not fit in an int; such a page is past any history.
func PageOffset(page, perPage int) (offset int, ok bool) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return 0, true
	}
	if page-1 > math.MaxInt/perPage {
		return 0, false
	}
	return (page - 1) * perPage, true
}
