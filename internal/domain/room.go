package domain

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type RoomID string

const (
	MinRoomNameLen    = 3
	MaxRoomNameLen    = 50
	MaxPublicMembers  = 100
	MaxPrivateMembers = 10

	DefaultRoomName        = "general"
	DefaultRoomDescription = "Welcome! This is the general discussion room."
)

type Room struct {
	ID           RoomID    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatedBy    UserID    `json:"created_by"`
	Members      []UserID  `json:"members"`
	IsPrivate    bool      `json:"is_private"`
	MaxMembers   int       `json:"max_members"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
	MemberCount  int       `json:"member_count"`
}

// NewRoom builds an active room with the creator as its only member.
func NewRoom(name string, creator UserID, description string, isPrivate bool, now time.Time) (*Room, error) {
	name = strings.TrimSpace(name)
	if err := ValidateRoomName(name); err != nil {
		return nil, err
	}
	if creator == "" {
		return nil, Validation("Room creator is required")
	}
	return &Room{
		ID:           RoomID(uuid.NewString()),
		Name:         name,
		Description:  strings.TrimSpace(description),
		CreatedBy:    creator,
		Members:      []UserID{creator},
		IsPrivate:    isPrivate,
		MaxMembers:   MaxMembersFor(isPrivate),
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
		MemberCount:  1,
	}, nil
}

func ValidateRoomName(name string) error {
	if name == "" {
		return Validation("Room name is required")
	}
	if n := utf8.RuneCountInString(name); n < MinRoomNameLen || n > MaxRoomNameLen {
		return Validation("Room name must be between 3 and 50 characters")
	}
	return nil
}

func MaxMembersFor(isPrivate bool) int {
	if isPrivate {
		return MaxPrivateMembers
	}
	return MaxPublicMembers
}

func (r *Room) HasMember(id UserID) bool {
	return slices.Contains(r.Members, id)
}

// Clone returns a deep copy safe to hand out of a lock.
func (r *Room) Clone() *Room {
	c := *r
	c.Members = slices.Clone(r.Members)
	c.MemberCount = len(c.Members)
	return &c
}
