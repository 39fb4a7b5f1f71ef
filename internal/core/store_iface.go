package core

import (
	"context"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

// Not-found lookups return an error matching domain.ErrNotFound; uniqueness
// violations match domain.ErrConflict.

type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateUserStatus(ctx context.Context, id domain.UserID, status domain.UserStatus, at time.Time) error
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r *domain.Room) error
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	// ListRooms returns active rooms only.
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	AddMember(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error
	RemoveMember(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error
	UpdateActivity(ctx context.Context, id domain.RoomID, at time.Time) error
	DeactivateRoom(ctx context.Context, id domain.RoomID) error
}

type MessageStore interface {
	AddMessage(ctx context.Context, m *domain.Message) error
	// ListMessages pages newest first; page is 1-based.
	ListMessages(ctx context.Context, room domain.RoomID, page, perPage int) ([]*domain.Message, error)
}

type Store interface {
	UserStore
	RoomStore
	MessageStore
	Ping(ctx context.Context) error
	Close() error
}
