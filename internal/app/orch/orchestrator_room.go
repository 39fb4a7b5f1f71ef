package orch

import (
	"context"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	errRoomNotFound = "Room not found"
	errRoomFull     = "Room is full"
	errJoinFailed   = "Could not join room"
)

func (o *Orchestrator) joinRoom(ctx context.Context, id core.Identity, roomID domain.RoomID) {
	if roomID == "" {
		return
	}
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		o.sendError(id.ConnID, errRoomNotFound)
		return
	}
	if !o.Rooms.CanAccess(room, id.UserID) {
		log.Info().Str("module", "orch").Str("conn", string(id.ConnID)).Str("room", string(roomID)).Msg("join denied")
		o.sendError(id.ConnID, domain.AccessDenied().Error())
		return
	}

	joined := false
	if !room.HasMember(id.UserID) {
		var err error
		if joined, err = o.Rooms.Join(ctx, roomID, id.UserID); err != nil {
			o.sendError(id.ConnID, errJoinFailed)
			return
		}
		if !o.Rooms.IsMember(roomID, id.UserID) {
			// deactivated since the lookup above
			if _, ok := o.Rooms.GetRoom(roomID); !ok {
				o.sendError(id.ConnID, errRoomNotFound)
				return
			}
			o.sendError(id.ConnID, errRoomFull)
			return
		}
	}

	// persisted before subscribing: a failed join leaves no subscription
	notice := domain.NewSystemMessage(roomID, domain.JoinNotice(id.Username), now())
	if err := o.Messages.AddMessage(ctx, notice); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("persist join notice")
		if joined {
			if _, lerr := o.Rooms.Leave(ctx, roomID, id.UserID); lerr != nil {
				log.Warn().Err(lerr).Str("module", "orch").Str("room", string(roomID)).Msg("undo join")
			}
		}
		o.sendError(id.ConnID, errJoinFailed)
		return
	}

	if err := o.Hub.Subscribe(id.ConnID, roomID); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id.ConnID)).Msg("subscribe failed")
		return
	}
	o.broadcast(roomID, TypeMessage, NewMessageView(notice))
	o.send(id.ConnID, TypeJoinSuccess, JoinSuccessView{RoomID: roomID, RoomName: room.Name})
	log.Info().Str("module", "orch").Str("conn", string(id.ConnID)).Str("user", string(id.UserID)).Str("room", string(roomID)).Msg("joined room")
}

// leaveRoom drops the live subscription only; persisted membership stays.
func (o *Orchestrator) leaveRoom(ctx context.Context, id core.Identity, roomID domain.RoomID) {
	if roomID == "" {
		return
	}
	o.Hub.Unsubscribe(id.ConnID, roomID)

	if _, ok := o.Rooms.GetRoom(roomID); !ok {
		return
	}
	notice := domain.NewSystemMessage(roomID, domain.LeaveNotice(id.Username), now())
	if err := o.Messages.AddMessage(ctx, notice); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("persist leave notice")
		return
	}
	o.broadcast(roomID, TypeMessage, NewMessageView(notice))
	log.Info().Str("module", "orch").Str("conn", string(id.ConnID)).Str("user", string(id.UserID)).Str("room", string(roomID)).Msg("left room")
}
