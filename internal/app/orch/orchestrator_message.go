package orch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	errSendFailed  = "Could not send message"
	errRateLimited = "Rate limit exceeded"
)

func (o *Orchestrator) sendMessage(ctx context.Context, id core.Identity, e SendMessage) {
	body := strings.TrimSpace(e.Body)
	if e.RoomID == "" || body == "" {
		return
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageLen {
		o.sendError(id.ConnID, domain.MessageTooLong)
		return
	}
	room, ok := o.Rooms.GetRoom(e.RoomID)
	if !ok {
		o.sendError(id.ConnID, errRoomNotFound)
		return
	}
	if !o.Rooms.CanAccess(room, id.UserID) {
		o.sendError(id.ConnID, domain.AccessDenied().Error())
		return
	}
	if !o.Limiter.Allow(id.UserID) {
		log.Info().Str("module", "orch").Str("user", string(id.UserID)).Msg("rate limited")
		o.sendError(id.ConnID, errRateLimited)
		return
	}

	msg, err := domain.NewTextMessage(room.ID, id.UserID, id.Username, body, now())
	if err != nil {
		o.sendError(id.ConnID, domain.UserMessage(err, errSendFailed))
		return
	}
	if err := o.Messages.AddMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("persist message")
		o.sendError(id.ConnID, errSendFailed)
		return
	}
	if err := o.Rooms.Touch(ctx, room.ID); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("touch room")
	}
	o.broadcast(room.ID, TypeMessage, NewMessageView(msg))
}

// typing is relayed to everyone in the room but the sending connection.
// Rooms the user cannot access are ignored silently.
func (o *Orchestrator) typing(id core.Identity, roomID domain.RoomID, t string) {
	if roomID == "" {
		return
	}
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok || !o.Rooms.CanAccess(room, id.UserID) {
		return
	}
	o.broadcast(roomID, t, TypingView{Username: id.Username, RoomID: roomID}, id.ConnID)
}
