package sqlstore

import (
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

type userRecord struct {
	ID           string    `gorm:"primarykey;size:36"`
	Username     string    `gorm:"size:30;not null;uniqueIndex"`
	Email        string    `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `gorm:"not null"`
	DisplayName  string    `gorm:"size:100"`
	Status       string    `gorm:"size:16;not null;default:offline"`
	LastSeen     time.Time
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

type roomRecord struct {
	ID           string `gorm:"primarykey;size:36"`
	Name         string `gorm:"size:50;not null;index"`
	Description  string `gorm:"size:500"`
	CreatedBy    string `gorm:"size:36;not null"`
	IsPrivate    bool   `gorm:"not null;index"`
	MaxMembers   int    `gorm:"not null"`
	IsActive     bool   `gorm:"not null;index"`
	CreatedAt    time.Time
	LastActivity time.Time      `gorm:"index"`
	Members      []memberRecord `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

func (roomRecord) TableName() string { return "rooms" }

type memberRecord struct {
	RoomID   string `gorm:"primarykey;size:36"`
	UserID   string `gorm:"primarykey;size:36;index"`
	JoinedAt time.Time
}

func (memberRecord) TableName() string { return "room_members" }

type messageRecord struct {
	ID        string    `gorm:"primarykey;size:36"`
	RoomID    string    `gorm:"size:36;not null;index:idx_messages_room_ts,priority:1"`
	UserID    string    `gorm:"size:36;not null"`
	Username  string    `gorm:"size:30;not null"`
	Body      string    `gorm:"not null"`
	Type      string    `gorm:"size:16;not null"`
	Timestamp time.Time `gorm:"not null;index:idx_messages_room_ts,priority:2"`
	IsSystem  bool      `gorm:"not null"`
	IsEdited  bool      `gorm:"not null"`
}

func (messageRecord) TableName() string { return "messages" }

func fromUser(u *domain.User) userRecord {
	return userRecord{
		ID:           string(u.ID),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Status:       string(u.Status),
		LastSeen:     u.LastSeen.UTC(),
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func (r userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(r.ID),
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		DisplayName:  r.DisplayName,
		Status:       domain.UserStatus(r.Status),
		LastSeen:     r.LastSeen,
		CreatedAt:    r.CreatedAt,
	}
}

func fromRoom(r *domain.Room) roomRecord {
	rec := roomRecord{
		ID:           string(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		CreatedBy:    string(r.CreatedBy),
		IsPrivate:    r.IsPrivate,
		MaxMembers:   r.MaxMembers,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt.UTC(),
		LastActivity: r.LastActivity.UTC(),
	}
	for _, m := range r.Members {
		rec.Members = append(rec.Members, memberRecord{RoomID: rec.ID, UserID: string(m), JoinedAt: rec.CreatedAt})
	}
	return rec
}

func (r roomRecord) toDomain() *domain.Room {
	room := &domain.Room{
		ID:           domain.RoomID(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		CreatedBy:    domain.UserID(r.CreatedBy),
		Members:      make([]domain.UserID, 0, len(r.Members)),
		IsPrivate:    r.IsPrivate,
		MaxMembers:   r.MaxMembers,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		IsActive:     r.IsActive,
	}
	for _, m := range r.Members {
		room.Members = append(room.Members, domain.UserID(m.UserID))
	}
	room.MemberCount = len(room.Members)
	return room
}

func fromMessage(m *domain.Message) messageRecord {
	return messageRecord{
		ID:        string(m.ID),
		RoomID:    string(m.RoomID),
		UserID:    string(m.UserID),
		Username:  m.Username,
		Body:      m.Body,
		Type:      string(m.Type),
		Timestamp: m.Timestamp.UTC(),
		IsSystem:  m.IsSystem,
		IsEdited:  m.IsEdited,
	}
}

func (r messageRecord) toDomain() *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(r.ID),
		RoomID:    domain.RoomID(r.RoomID),
		UserID:    domain.UserID(r.UserID),
		Username:  r.Username,
		Body:      r.Body,
		Type:      domain.MessageType(r.Type),
		Timestamp: r.Timestamp,
		IsSystem:  r.IsSystem,
		IsEdited:  r.IsEdited,
	}
}
