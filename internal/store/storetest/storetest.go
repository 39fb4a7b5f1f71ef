// Package storetest holds the behaviour every core.Store must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store implementations. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Rooms", func(t *testing.T) { testRooms(t, newStore(t)) })
	t.Run("ActiveNameUnique", func(t *testing.T) { testActiveNameUnique(t, newStore(t)) })
	t.Run("Members", func(t *testing.T) { testMembers(t, newStore(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { assert.NoError(t, newStore(t).Ping(context.Background())) })
}

// base has millisecond precision so every backend round-trips it.
var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newUser(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name, name+"@example.com", base)
	require.NoError(t, err)
	u.PasswordHash = "hash"
	return u
}

func newRoom(t *testing.T, name string, creator domain.UserID, private bool, at time.Time) *domain.Room {
	t.Helper()
	r, err := domain.NewRoom(name, creator, "", private, at)
	require.NoError(t, err)
	return r
}

func testUsers(t *testing.T, s core.Store) {
	ctx := context.Background()
	alice := newUser(t, "alice")
	require.NoError(t, s.CreateUser(ctx, alice))

	got, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = s.GetUserByID(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	dup := newUser(t, "alice")
	dup.Email = "other@example.com"
	err = s.CreateUser(ctx, dup)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, "Username already exists", domain.UserMessage(err, ""))

	sameMail := newUser(t, "alicia")
	sameMail.Email = alice.Email
	err = s.CreateUser(ctx, sameMail)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, "Email already registered", domain.UserMessage(err, ""))

	seen := base.Add(time.Hour)
	require.NoError(t, s.UpdateUserStatus(ctx, alice.ID, domain.StatusOnline, seen))
	got, err = s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, got.Status)
	assert.WithinDuration(t, seen, got.LastSeen, time.Millisecond)

	err = s.UpdateUserStatus(ctx, "nobody", domain.StatusOnline, seen)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func testRooms(t *testing.T, s core.Store) {
	ctx := context.Background()
	older := newRoom(t, "older", "alice", false, base)
	newer := newRoom(t, "newer", "alice", true, base.Add(time.Minute))
	require.NoError(t, s.CreateRoom(ctx, older))
	require.NoError(t, s.CreateRoom(ctx, newer))

	got, err := s.GetRoom(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Name)
	assert.True(t, got.IsPrivate)
	assert.True(t, got.IsActive)
	assert.Equal(t, domain.MaxPrivateMembers, got.MaxMembers)
	assert.Equal(t, []domain.UserID{"alice"}, got.Members)
	assert.Equal(t, 1, got.MemberCount)

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, newer.ID, rooms[0].ID)

	bump := base.Add(time.Hour)
	require.NoError(t, s.UpdateActivity(ctx, older.ID, bump))
	got, err = s.GetRoom(ctx, older.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, bump, got.LastActivity, time.Millisecond)

	require.NoError(t, s.DeactivateRoom(ctx, older.ID))
	rooms, err = s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, newer.ID, rooms[0].ID)

	// soft-deleted rooms are still readable by id
	got, err = s.GetRoom(ctx, older.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = s.GetRoom(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(s.UpdateActivity(ctx, "missing", bump), domain.ErrNotFound))
	assert.True(t, errors.Is(s.DeactivateRoom(ctx, "missing"), domain.ErrNotFound))
}

func testActiveNameUnique(t *testing.T, s core.Store) {
	ctx := context.Background()
	first := newRoom(t, "lobby", "alice", false, base)
	require.NoError(t, s.CreateRoom(ctx, first))

	err := s.CreateRoom(ctx, newRoom(t, "lobby", "bob", false, base))
	assert.True(t, errors.Is(err, domain.ErrConflict))

	require.NoError(t, s.DeactivateRoom(ctx, first.ID))
	assert.NoError(t, s.CreateRoom(ctx, newRoom(t, "lobby", "bob", false, base)))
}

func testMembers(t *testing.T, s core.Store) {
	ctx := context.Background()
	room := newRoom(t, "lobby", "alice", false, base)
	require.NoError(t, s.CreateRoom(ctx, room))

	at := base.Add(time.Second)
	require.NoError(t, s.AddMember(ctx, room.ID, "bob", at))
	require.NoError(t, s.AddMember(ctx, room.ID, "bob", at.Add(time.Second)))

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, got.Members)
	assert.Equal(t, 2, got.MemberCount)
	assert.WithinDuration(t, at.Add(time.Second), got.LastActivity, time.Millisecond)

	left := at.Add(time.Minute)
	require.NoError(t, s.RemoveMember(ctx, room.ID, "alice", left))
	got, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"bob"}, got.Members)
	assert.WithinDuration(t, left, got.LastActivity, time.Millisecond)

	// removing a non-member is not an error
	require.NoError(t, s.RemoveMember(ctx, room.ID, "carol", left))

	assert.True(t, errors.Is(s.AddMember(ctx, "missing", "bob", at), domain.ErrNotFound))
}

func testMessages(t *testing.T, s core.Store) {
	ctx := context.Background()
	room := newRoom(t, "lobby", "alice", false, base)
	require.NoError(t, s.CreateRoom(ctx, room))

	for i := range 5 {
		m, err := domain.NewTextMessage(room.ID, "alice", "alice", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, s.AddMessage(ctx, m))
	}
	require.NoError(t, s.AddMessage(ctx, domain.NewSystemMessage("elsewhere", "noise", base)))

	bodies := func(msgs []*domain.Message) []string {
		out := make([]string, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, m.Body)
		}
		return out
	}

	page1, err := s.ListMessages(ctx, room.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m3"}, bodies(page1))
	assert.Equal(t, domain.UserID("alice"), page1[0].UserID)
	assert.Equal(t, domain.MessageText, page1[0].Type)

	page3, err := s.ListMessages(ctx, room.ID, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0"}, bodies(page3))

	beyond, err := s.ListMessages(ctx, room.ID, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	// pages whose offset overflows are simply past the end
	huge, err := s.ListMessages(ctx, room.ID, math.MaxInt/3*2+2, 3)
	require.NoError(t, err)
	assert.Empty(t, huge)
	huge, err = s.ListMessages(ctx, room.ID, math.MaxInt/3+1, 3)
	require.NoError(t, err)
	assert.Empty(t, huge)
	huge, err = s.ListMessages(ctx, "empty", math.MaxInt, math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, huge)

	other, err := s.ListMessages(ctx, "elsewhere", 1, 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, other[0].IsSystem)
	assert.Equal(t, domain.SystemUserID, other[0].UserID)
}
