package mongostore

import (
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

type userDocument struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	DisplayName  string    `bson:"display_name"`
	Status       string    `bson:"status"`
	LastSeen     time.Time `bson:"last_seen"`
	CreatedAt    time.Time `bson:"created_at"`
}

type roomDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Description  string    `bson:"description"`
	CreatedBy    string    `bson:"created_by"`
	Members      []string  `bson:"members"`
	IsPrivate    bool      `bson:"is_private"`
	MaxMembers   int       `bson:"max_members"`
	CreatedAt    time.Time `bson:"created_at"`
	LastActivity time.Time `bson:"last_activity"`
	IsActive     bool      `bson:"is_active"`
}

type messageDocument struct {
	ID        string    `bson:"_id"`
	RoomID    string    `bson:"room_id"`
	UserID    string    `bson:"user_id"`
	Username  string    `bson:"username"`
	Message   string    `bson:"message"`
	Type      string    `bson:"message_type"`
	Timestamp time.Time `bson:"timestamp"`
	IsSystem  bool      `bson:"is_system"`
	IsEdited  bool      `bson:"is_edited"`
}

func newUserDocument(u *domain.User) userDocument {
	return userDocument{
		ID:           string(u.ID),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Status:       string(u.Status),
		LastSeen:     u.LastSeen,
		CreatedAt:    u.CreatedAt,
	}
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(d.ID),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		DisplayName:  d.DisplayName,
		Status:       domain.UserStatus(d.Status),
		LastSeen:     d.LastSeen,
		CreatedAt:    d.CreatedAt,
	}
}

func newRoomDocument(r *domain.Room) roomDocument {
	members := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, string(m))
	}
	return roomDocument{
		ID:           string(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		CreatedBy:    string(r.CreatedBy),
		Members:      members,
		IsPrivate:    r.IsPrivate,
		MaxMembers:   r.MaxMembers,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		IsActive:     r.IsActive,
	}
}

func (d roomDocument) toDomain() *domain.Room {
	r := &domain.Room{
		ID:           domain.RoomID(d.ID),
		Name:         d.Name,
		Description:  d.Description,
		CreatedBy:    domain.UserID(d.CreatedBy),
		Members:      make([]domain.UserID, 0, len(d.Members)),
		IsPrivate:    d.IsPrivate,
		MaxMembers:   d.MaxMembers,
		CreatedAt:    d.CreatedAt,
		LastActivity: d.LastActivity,
		IsActive:     d.IsActive,
	}
	for _, m := range d.Members {
		r.Members = append(r.Members, domain.UserID(m))
	}
	r.MemberCount = len(r.Members)
	return r
}

func newMessageDocument(m *domain.Message) messageDocument {
	return messageDocument{
		ID:        string(m.ID),
		RoomID:    string(m.RoomID),
		UserID:    string(m.UserID),
		Username:  m.Username,
		Message:   m.Body,
		Type:      string(m.Type),
		Timestamp: m.Timestamp,
		IsSystem:  m.IsSystem,
		IsEdited:  m.IsEdited,
	}
}

func (d messageDocument) toDomain() *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(d.ID),
		RoomID:    domain.RoomID(d.RoomID),
		UserID:    domain.UserID(d.UserID),
		Username:  d.Username,
		Body:      d.Message,
		Type:      domain.MessageType(d.Type),
		Timestamp: d.Timestamp,
		IsSystem:  d.IsSystem,
		IsEdited:  d.IsEdited,
	}
}
