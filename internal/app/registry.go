package app

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomEntry struct {
	mu      sync.Mutex
	room    domain.Room // Members is kept nil; the set below is authoritative
	members map[domain.UserID]struct{}
}

func newRoomEntry(r *domain.Room) *roomEntry {
	e := &roomEntry{room: *r, members: make(map[domain.UserID]struct{}, len(r.Members))}
	e.room.Members = nil
	for _, id := range r.Members {
		e.members[id] = struct{}{}
	}
	return e
}

// snapshot must be called with e.mu held.
func (e *roomEntry) snapshot() *domain.Room {
	out := e.room
	out.Members = make([]domain.UserID, 0, len(e.members))
	for id := range e.members {
		out.Members = append(out.Members, id)
	}
	slices.Sort(out.Members)
	out.MemberCount = len(out.Members)
	return &out
}

// RoomRegistry is the authoritative model of rooms and persisted membership.
// Lock order: r.mu before e.mu. Store and hooks are called with no lock held.
type RoomRegistry struct {
	store core.RoomStore
	hooks []core.RoomHooks

	mu     sync.RWMutex
	rooms  map[domain.RoomID]*roomEntry
	byName map[string]domain.RoomID // active names, including reservations

	clockMu sync.Mutex
	last    time.Time
	now     func() time.Time
}

func NewRoomRegistry(store core.RoomStore, hooks ...core.RoomHooks) *RoomRegistry {
	return &RoomRegistry{
		store:  store,
		hooks:  hooks,
		rooms:  make(map[domain.RoomID]*roomEntry),
		byName: make(map[string]domain.RoomID),
		now:    time.Now,
	}
}

// stamp returns a strictly increasing activity time.
func (r *RoomRegistry) stamp() time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}

func (r *RoomRegistry) observe(t time.Time) {
	r.clockMu.Lock()
	if t.After(r.last) {
		r.last = t
	}
	r.clockMu.Unlock()
}

// Load replaces the in-memory model with the active rooms of the store.
func (r *RoomRegistry) Load(ctx context.Context) error {
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return err
	}
	active := make([]domain.Room, 0, len(rooms))
	r.mu.Lock()
	r.rooms = make(map[domain.RoomID]*roomEntry, len(rooms))
	r.byName = make(map[string]domain.RoomID, len(rooms))
	for _, room := range rooms {
		if !room.IsActive {
			continue
		}
		r.rooms[room.ID] = newRoomEntry(room)
		r.byName[room.Name] = room.ID
		r.observe(room.LastActivity)
		active = append(active, *room.Clone())
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Int("rooms", len(active)).Msg("rooms loaded")
	for _, h := range r.hooks {
		h.OnRoomsLoaded(ctx, active)
	}
	return nil
}

func (r *RoomRegistry) CreateRoom(ctx context.Context, name string, creator domain.UserID, description string, isPrivate bool) (domain.RoomID, error) {
	room, err := domain.NewRoom(name, creator, description, isPrivate, r.stamp())
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if _, taken := r.byName[room.Name]; taken {
		r.mu.Unlock()
		return "", domain.Conflict("Room name already exists")
	}
	r.byName[room.Name] = room.ID
	r.mu.Unlock()

	if err := r.store.CreateRoom(ctx, room); err != nil {
		r.mu.Lock()
		if r.byName[room.Name] == room.ID {
			delete(r.byName, room.Name)
		}
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "app.registry").Str("name", room.Name).Msg("persist room failed")
		return "", err
	}

	r.mu.Lock()
	r.rooms[room.ID] = newRoomEntry(room)
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("room", string(room.ID)).Str("name", room.Name).
		Str("user", string(creator)).Bool("private", isPrivate).Msg("room created")
	for _, h := range r.hooks {
		h.OnRoomCreated(ctx, *room.Clone())
	}
	return room.ID, nil
}

func (r *RoomRegistry) entry(id domain.RoomID) *roomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// GetRoom returns a snapshot of an active room.
func (r *RoomRegistry) GetRoom(id domain.RoomID) (*domain.Room, bool) {
	e := r.entry(id)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.room.IsActive {
		return nil, false
	}
	return e.snapshot(), true
}

func (r *RoomRegistry) IsMember(id domain.RoomID, user domain.UserID) bool {
	e := r.entry(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.members[user]
	return ok
}

func (r *RoomRegistry) ListPublicRooms() []*domain.Room {
	return r.list(func(room *domain.Room) bool { return !room.IsPrivate })
}

func (r *RoomRegistry) ListUserRooms(user domain.UserID) []*domain.Room {
	return r.list(func(room *domain.Room) bool { return room.HasMember(user) })
}

func (r *RoomRegistry) list(keep func(*domain.Room) bool) []*domain.Room {
	r.mu.RLock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*domain.Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.room.IsActive {
			if snap := e.snapshot(); keep(snap) {
				out = append(out, snap)
			}
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Join adds user to the room. It reports false without error when the user is
// already a member or the room is unknown, inactive or full.
func (r *RoomRegistry) Join(ctx context.Context, id domain.RoomID, user domain.UserID) (bool, error) {
	e := r.entry(id)
	if e == nil {
		return false, nil
	}

	e.mu.Lock()
	if _, ok := e.members[user]; ok || !e.room.IsActive || len(e.members) >= e.room.MaxMembers {
		e.mu.Unlock()
		return false, nil
	}
	prev := e.room.LastActivity
	at := r.stamp()
	e.members[user] = struct{}{}
	e.room.LastActivity = at
	e.mu.Unlock()

	if err := r.store.AddMember(ctx, id, user, at); err != nil {
		e.mu.Lock()
		delete(e.members, user)
		if e.room.LastActivity.Equal(at) {
			e.room.LastActivity = prev
		}
		e.mu.Unlock()
		log.Error().Err(err).Str("module", "app.registry").Str("room", string(id)).Str("user", string(user)).Msg("persist join failed")
		return false, err
	}

	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("user", string(user)).Msg("member joined")
	r.fireActivity(ctx, id, at)
	return true, nil
}

// Leave removes user from the room; the room survives even when empty.
func (r *RoomRegistry) Leave(ctx context.Context, id domain.RoomID, user domain.UserID) (bool, error) {
	e := r.entry(id)
	if e == nil {
		return false, nil
	}

	e.mu.Lock()
	if _, ok := e.members[user]; !ok {
		e.mu.Unlock()
		return false, nil
	}
	prev := e.room.LastActivity
	at := r.stamp()
	delete(e.members, user)
	e.room.LastActivity = at
	e.mu.Unlock()

	if err := r.store.RemoveMember(ctx, id, user, at); err != nil {
		e.mu.Lock()
		e.members[user] = struct{}{}
		if e.room.LastActivity.Equal(at) {
			e.room.LastActivity = prev
		}
		e.mu.Unlock()
		log.Error().Err(err).Str("module", "app.registry").Str("room", string(id)).Str("user", string(user)).Msg("persist leave failed")
		return false, err
	}

	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("user", string(user)).Msg("member left")
	r.fireActivity(ctx, id, at)
	return true, nil
}

// Touch bumps the last activity of an active room.
func (r *RoomRegistry) Touch(ctx context.Context, id domain.RoomID) error {
	e := r.entry(id)
	if e == nil {
		return domain.NotFound("Room not found")
	}
	e.mu.Lock()
	if !e.room.IsActive {
		e.mu.Unlock()
		return domain.NotFound("Room not found")
	}
	at := r.stamp()
	e.room.LastActivity = at
	e.mu.Unlock()

	if err := r.store.UpdateActivity(ctx, id, at); err != nil {
		// the in-memory stamp stays; it is only an ordering hint
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(id)).Msg("persist activity failed")
		return err
	}
	r.fireActivity(ctx, id, at)
	return nil
}

func (r *RoomRegistry) CanAccess(room *domain.Room, user domain.UserID) bool {
	if room == nil || !room.IsActive {
		return false
	}
	return !room.IsPrivate || room.HasMember(user)
}

// Deactivate soft-deletes a room and frees its name.
func (r *RoomRegistry) Deactivate(ctx context.Context, id domain.RoomID) error {
	r.mu.Lock()
	e, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return domain.NotFound("Room not found")
	}
	e.mu.Lock()
	if !e.room.IsActive {
		e.mu.Unlock()
		r.mu.Unlock()
		return nil
	}
	e.room.IsActive = false
	name := e.room.Name
	e.mu.Unlock()
	if r.byName[name] == id {
		delete(r.byName, name)
	}
	r.mu.Unlock()

	if err := r.store.DeactivateRoom(ctx, id); err != nil {
		r.mu.Lock()
		e.mu.Lock()
		if _, taken := r.byName[name]; !taken {
			e.room.IsActive = true
			r.byName[name] = id
		}
		e.mu.Unlock()
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "app.registry").Str("room", string(id)).Msg("persist deactivate failed")
		return err
	}
	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("name", name).Msg("room deactivated")
	for _, h := range r.hooks {
		h.OnRoomDeactivated(ctx, id)
	}
	return nil
}

// EnsureDefaultRoom makes sure the public "general" room exists.
func (r *RoomRegistry) EnsureDefaultRoom(ctx context.Context) (domain.RoomID, error) {
	if id, ok := r.activeByName(domain.DefaultRoomName); ok {
		return id, nil
	}
	id, err := r.CreateRoom(ctx, domain.DefaultRoomName, domain.SystemUserID, domain.DefaultRoomDescription, false)
	if errors.Is(err, domain.ErrConflict) {
		if id, ok := r.activeByName(domain.DefaultRoomName); ok {
			return id, nil
		}
	}
	return id, err
}

// activeByName ignores names that are only reserved by an in-flight create.
func (r *RoomRegistry) activeByName(name string) (domain.RoomID, bool) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return "", false
	}
	_, ok = r.rooms[id]
	return id, ok
}

func (r *RoomRegistry) fireActivity(ctx context.Context, id domain.RoomID, at time.Time) {
	for _, h := range r.hooks {
		h.OnRoomActivity(ctx, id, at)
	}
}
