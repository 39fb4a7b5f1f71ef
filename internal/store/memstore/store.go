// Package memstore keeps users, rooms and messages in process memory.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

var _ core.Store = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	users    map[domain.UserID]*domain.User
	rooms    map[domain.RoomID]*domain.Room
	messages map[domain.RoomID][]*domain.Message

	failNext error
}

func New() *Store {
	return &Store{
		users:    make(map[domain.UserID]*domain.User),
		rooms:    make(map[domain.RoomID]*domain.Room),
		messages: make(map[domain.RoomID][]*domain.Message),
	}
}

// FailNext makes the next mutating call fail with err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for _, other := range s.users {
		if other.Username == u.Username {
			return domain.Conflict("Username already exists")
		}
		if other.Email == u.Email {
			return domain.Conflict("Email already registered")
		}
	}
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.NotFound("User not found")
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.NotFound("User not found")
}

func (s *Store) UpdateUserStatus(_ context.Context, id domain.UserID, status domain.UserStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return domain.NotFound("User not found")
	}
	u.Status = status
	u.LastSeen = at
	return nil
}

func (s *Store) CreateRoom(_ context.Context, r *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for _, other := range s.rooms {
		if other.IsActive && other.Name == r.Name {
			return domain.Conflict("Room name already exists")
		}
	}
	s.rooms[r.ID] = r.Clone()
	return nil
}

func (s *Store) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.NotFound("Room not found")
	}
	return r.Clone(), nil
}

func (s *Store) ListRooms(context.Context) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.IsActive {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (s *Store) mutateRoom(id domain.RoomID, fn func(*domain.Room)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	r, ok := s.rooms[id]
	if !ok {
		return domain.NotFound("Room not found")
	}
	fn(r)
	r.MemberCount = len(r.Members)
	return nil
}

func (s *Store) AddMember(_ context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	return s.mutateRoom(id, func(r *domain.Room) {
		if !r.HasMember(user) {
			r.Members = append(r.Members, user)
		}
		r.LastActivity = at
	})
}

func (s *Store) RemoveMember(_ context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	return s.mutateRoom(id, func(r *domain.Room) {
		r.Members = slices.DeleteFunc(r.Members, func(m domain.UserID) bool { return m == user })
		r.LastActivity = at
	})
}

func (s *Store) UpdateActivity(_ context.Context, id domain.RoomID, at time.Time) error {
	return s.mutateRoom(id, func(r *domain.Room) { r.LastActivity = at })
}

func (s *Store) DeactivateRoom(_ context.Context, id domain.RoomID) error {
	return s.mutateRoom(id, func(r *domain.Room) { r.IsActive = false })
}

func (s *Store) AddMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	c := *m
	s.messages[m.RoomID] = append(s.messages[m.RoomID], &c)
	return nil
}

func (s *Store) ListMessages(_ context.Context, room domain.RoomID, page, perPage int) ([]*domain.Message, error) {
	offset, ok := domain.PageOffset(page, perPage)
	if !ok || perPage < 1 {
		return []*domain.Message{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[room]
	if offset >= len(all) {
		return []*domain.Message{}, nil
	}
	// stored oldest first; serve newest first
	start := len(all) - offset
	if start <= 0 {
		return []*domain.Message{}, nil
	}
	end := max(start-perPage, 0)
	out := make([]*domain.Message, 0, start-end)
	for i := start - 1; i >= end; i-- {
		c := *all[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
