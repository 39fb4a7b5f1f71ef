package app

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthenticated   = errors.New("connection has no authenticated identity")
	ErrDuplicateConn     = errors.New("connection already registered")
	ErrUnknownConnection = errors.New("unknown connection")
)

type connEntry struct {
	identity core.Identity
	conn     core.SignalConnection
	rooms    map[domain.RoomID]struct{}
}

// ConnectionHub maps live connections to identities and room subscriptions.
type ConnectionHub struct {
	presence core.Presence
	policy   Policy

	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
	rooms map[domain.RoomID]map[core.ConnID]struct{}
	users map[domain.UserID]int // live connections per user
}

func NewConnectionHub(presence core.Presence, policy Policy) *ConnectionHub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &ConnectionHub{
		presence: presence,
		policy:   policy,
		conns:    make(map[core.ConnID]*connEntry),
		rooms:    make(map[domain.RoomID]map[core.ConnID]struct{}),
		users:    make(map[domain.UserID]int),
	}
}

func (h *ConnectionHub) Register(ctx context.Context, conn core.SignalConnection, id core.Identity) error {
	if !id.Authenticated() || id.ConnID == "" {
		return ErrUnauthenticated
	}
	h.mu.Lock()
	if _, ok := h.conns[id.ConnID]; ok {
		h.mu.Unlock()
		return ErrDuplicateConn
	}
	h.conns[id.ConnID] = &connEntry{identity: id, conn: conn, rooms: make(map[domain.RoomID]struct{})}
	h.users[id.UserID]++
	h.mu.Unlock()

	log.Info().Str("module", "app.hub").Str("conn", string(id.ConnID)).Str("user", string(id.UserID)).Msg("connection registered")
	h.setStatus(ctx, id.UserID, domain.StatusOnline)
	return nil
}

// Unregister drops the connection and its subscriptions. The user goes
// offline once their last connection is gone. Reports false when unknown.
func (h *ConnectionHub) Unregister(ctx context.Context, connID core.ConnID) bool {
	h.mu.Lock()
	e, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, connID)
	for room := range e.rooms {
		h.unsubscribeLocked(connID, room)
	}
	uid := e.identity.UserID
	h.users[uid]--
	last := h.users[uid] <= 0
	if last {
		delete(h.users, uid)
	}
	h.mu.Unlock()

	log.Info().Str("module", "app.hub").Str("conn", string(connID)).Str("user", string(uid)).Msg("connection unregistered")
	if last {
		h.setStatus(ctx, uid, domain.StatusOffline)
	}
	return true
}

func (h *ConnectionHub) setStatus(ctx context.Context, uid domain.UserID, status domain.UserStatus) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetStatus(ctx, uid, status); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("user", string(uid)).Str("status", string(status)).Msg("status update failed")
	}
}

func (h *ConnectionHub) Subscribe(connID core.ConnID, room domain.RoomID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	e.rooms[room] = struct{}{}
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[core.ConnID]struct{})
		h.rooms[room] = subs
	}
	subs[connID] = struct{}{}
	return nil
}

func (h *ConnectionHub) Unsubscribe(connID core.ConnID, room domain.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.conns[connID]
	if !ok {
		return false
	}
	if _, ok := e.rooms[room]; !ok {
		return false
	}
	delete(e.rooms, room)
	h.unsubscribeLocked(connID, room)
	return true
}

func (h *ConnectionHub) unsubscribeLocked(connID core.ConnID, room domain.RoomID) {
	subs := h.rooms[room]
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
}

type target struct {
	identity core.Identity
	conn     core.SignalConnection
}

// Broadcast delivers payload to every subscriber of room except the excluded
// connections. Sends never block; failures go to the policy.
func (h *ConnectionHub) Broadcast(room domain.RoomID, payload core.Frame, exclude ...core.ConnID) core.PublishResult {
	h.mu.RLock()
	targets := make([]target, 0, len(h.rooms[room]))
	for cid := range h.rooms[room] {
		if slices.Contains(exclude, cid) {
			continue
		}
		e := h.conns[cid]
		targets = append(targets, target{identity: e.identity, conn: e.conn})
	}
	h.mu.RUnlock()

	res := core.PublishResult{}
	for _, t := range targets {
		if err := t.conn.TrySend(payload); err != nil {
			res.Dropped = append(res.Dropped, t.identity.ConnID)
			h.onBackPressure(room, t, err)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.hub").Str("room", string(room)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (h *ConnectionHub) onBackPressure(room domain.RoomID, t target, err error) {
	action := h.policy.OnBackPressure(room, t.identity)
	log.Warn().Err(err).Str("module", "app.hub").Str("room", string(room)).Str("conn", string(t.identity.ConnID)).
		Str("action", action.String()).Msg("send failed")
	if action == KickMember {
		t.conn.Close()
	}
}

// Send delivers payload to one connection.
func (h *ConnectionHub) Send(connID core.ConnID, payload core.Frame) error {
	h.mu.RLock()
	e, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	return e.conn.TrySend(payload)
}

func (h *ConnectionHub) Identity(connID core.ConnID) (core.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.conns[connID]
	if !ok {
		return core.Identity{}, false
	}
	return e.identity, true
}

func (h *ConnectionHub) Rooms(connID core.ConnID) []domain.RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.conns[connID]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.rooms))
	for id := range e.rooms {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (h *ConnectionHub) Subscribers(room domain.RoomID) []core.ConnID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.ConnID, 0, len(h.rooms[room]))
	for cid := range h.rooms[room] {
		out = append(out, cid)
	}
	slices.Sort(out)
	return out
}

func (h *ConnectionHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every transport; read pumps then unregister themselves.
func (h *ConnectionHub) CloseAll() {
	h.mu.RLock()
	conns := make([]core.SignalConnection, 0, len(h.conns))
	for _, e := range h.conns {
		conns = append(conns, e.conn)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
	log.Info().Str("module", "app.hub").Int("closed", len(conns)).Msg("all connections closed")
}
