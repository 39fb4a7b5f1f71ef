package orch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	StateUnauthenticated State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unauthenticated"
	}
}

// Session is the per-connection protocol state.
type Session struct {
	Identity core.Identity
	state    atomic.Int32
}

func (s *Session) State() State { return State(s.state.Load()) }

// Orchestrator drives the chat protocol over the registries.
type Orchestrator struct {
	Rooms    *app.RoomRegistry
	Hub      *app.ConnectionHub
	Messages core.MessageStore
	Limiter  *app.RateLimiter
}

// Connect binds an authenticated identity to conn. Without identity the
// transport is closed and the session never leaves Unauthenticated.
func (o *Orchestrator) Connect(ctx context.Context, conn core.SignalConnection, id core.Identity) (*Session, error) {
	sess := &Session{Identity: id}
	if !id.Authenticated() {
		log.Warn().Str("module", "orch").Str("conn", string(id.ConnID)).Msg("connect without identity")
		conn.Close()
		return sess, app.ErrUnauthenticated
	}
	if err := o.Hub.Register(ctx, conn, id); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(id.ConnID)).Msg("register failed")
		conn.Close()
		return sess, err
	}
	sess.state.Store(int32(StateConnected))
	log.Info().Str("module", "orch").Str("conn", string(id.ConnID)).Str("user", string(id.UserID)).Msg("connected")
	return sess, nil
}

// Disconnect is terminal and safe to call more than once.
func (o *Orchestrator) Disconnect(ctx context.Context, sess *Session) {
	if sess == nil {
		return
	}
	if State(sess.state.Swap(int32(StateClosed))) != StateConnected {
		return
	}
	o.Hub.Unregister(ctx, sess.Identity.ConnID)
	log.Info().Str("module", "orch").Str("conn", string(sess.Identity.ConnID)).Str("user", string(sess.Identity.UserID)).Msg("disconnected")
}

// Handle dispatches one inbound event. Events outside Connected are ignored.
func (o *Orchestrator) Handle(ctx context.Context, sess *Session, ev Event) {
	if sess == nil || sess.State() != StateConnected {
		return
	}
	id := sess.Identity
	switch e := ev.(type) {
	case JoinRoom:
		o.joinRoom(ctx, id, e.RoomID)
	case LeaveRoom:
		o.leaveRoom(ctx, id, e.RoomID)
	case SendMessage:
		o.sendMessage(ctx, id, e)
	case TypingStart:
		o.typing(id, e.RoomID, TypeUserTyping)
	case TypingStop:
		o.typing(id, e.RoomID, TypeUserStoppedTyping)
	default:
		log.Warn().Str("module", "orch").Str("conn", string(id.ConnID)).Msgf("unhandled event %T", ev)
	}
}

// EvictRoom deactivates a room and drops every live subscription to it.
func (o *Orchestrator) EvictRoom(ctx context.Context, id domain.RoomID) error {
	if err := o.Rooms.Deactivate(ctx, id); err != nil {
		return err
	}
	for _, cid := range o.Hub.Subscribers(id) {
		o.Hub.Unsubscribe(cid, id)
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room evicted")
	return nil
}

func (o *Orchestrator) send(to core.ConnID, t string, data any) {
	frame, err := EncodeFrame(t, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", t).Msg("encode frame")
		return
	}
	if err := o.Hub.Send(to, frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(to)).Str("type", t).Msg("private send failed")
	}
}

func (o *Orchestrator) sendError(to core.ConnID, msg string) {
	o.send(to, TypeError, ErrorView{Message: msg})
}

func (o *Orchestrator) broadcast(room domain.RoomID, t string, data any, exclude ...core.ConnID) {
	frame, err := EncodeFrame(t, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", t).Msg("encode frame")
		return
	}
	o.Hub.Broadcast(room, frame, exclude...)
}

func now() time.Time { return time.Now().UTC() }
