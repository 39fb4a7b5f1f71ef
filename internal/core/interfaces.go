package core

import (
	"context"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

//go:generate mockgen -destination=mocks/presence_mock.go -package=mocks github.com/dkeye/Chat/internal/core Presence

// Frame is one encoded outbound envelope.
type Frame []byte

// ConnID identifies one live transport connection.
type ConnID string

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	ConnID   ConnID
	UserID   domain.UserID
	Username string
}

func (i Identity) Authenticated() bool { return i.UserID != "" }

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// Presence records online/offline transitions of a user.
type Presence interface {
	SetStatus(ctx context.Context, id domain.UserID, status domain.UserStatus) error
}

// RoomHooks observes room lifecycle. Called outside every registry lock.
type RoomHooks interface {
	OnRoomCreated(ctx context.Context, room domain.Room)
	OnRoomActivity(ctx context.Context, id domain.RoomID, at time.Time)
	OnRoomDeactivated(ctx context.Context, id domain.RoomID)
	// OnRoomsLoaded receives every active room after a reload from the store.
	OnRoomsLoaded(ctx context.Context, rooms []domain.Room)
}

type NopHooks struct{}

func (NopHooks) OnRoomCreated(context.Context, domain.Room) {}
func (NopHooks) OnRoomActivity(context.Context, domain.RoomID, time.Time) {}
func (NopHooks) OnRoomDeactivated(context.Context, domain.RoomID) {}
func (NopHooks) OnRoomsLoaded(context.Context, []domain.Room) {}
