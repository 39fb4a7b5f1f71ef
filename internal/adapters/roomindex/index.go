// Package roomindex mirrors room activity into Redis sorted sets.
package roomindex

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const opTimeout = 2 * time.Second

var _ core.RoomHooks = (*Index)(nil)

// Index keeps <prefix>rooms:activity (every room) and <prefix>rooms:public
// scored by last activity in unix milliseconds, plus a hash per room.
type Index struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Index {
	return &Index{client: client, prefix: prefix}
}

func (i *Index) activityKey() string { return i.prefix + "rooms:activity" }

func (i *Index) publicKey() string { return i.prefix + "rooms:public" }

func (i *Index) roomKey(id domain.RoomID) string { return i.prefix + "room:" + string(id) }

func (i *Index) OnRoomCreated(ctx context.Context, room domain.Room) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	_, err := i.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		i.indexRoom(ctx, p, room)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "roomindex").Str("room", string(room.ID)).Msg("index room failed")
	}
}

func (i *Index) indexRoom(ctx context.Context, p redis.Pipeliner, room domain.Room) {
	score := float64(room.LastActivity.UnixMilli())
	p.HSet(ctx, i.roomKey(room.ID), map[string]any{
		"name":       room.Name,
		"created_by": string(room.CreatedBy),
		"is_private": strconv.FormatBool(room.IsPrivate),
	})
	p.ZAdd(ctx, i.activityKey(), redis.Z{Score: score, Member: string(room.ID)})
	if !room.IsPrivate {
		p.ZAdd(ctx, i.publicKey(), redis.Z{Score: score, Member: string(room.ID)})
	}
}

func (i *Index) OnRoomActivity(ctx context.Context, id domain.RoomID, at time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	z := redis.Z{Score: float64(at.UnixMilli()), Member: string(id)}
	_, err := i.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, i.activityKey(), z)
		// only rooms already known as public move in the public set
		p.ZAddXX(ctx, i.publicKey(), z)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "roomindex").Str("room", string(id)).Msg("index activity failed")
	}
}

// OnRoomDeactivated drops the room from both sets and removes its hash.
func (i *Index) OnRoomDeactivated(ctx context.Context, id domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	_, err := i.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, i.activityKey(), string(id))
		p.ZRem(ctx, i.publicKey(), string(id))
		p.Del(ctx, i.roomKey(id))
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "roomindex").Str("room", string(id)).Msg("unindex room failed")
	}
}

// OnRoomsLoaded rebuilds both sets from the loaded rooms, so entries written
// while the index was unreachable or flushed are reconciled on startup.
func (i *Index) OnRoomsLoaded(ctx context.Context, rooms []domain.Room) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	_, err := i.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, i.activityKey(), i.publicKey())
		for _, room := range rooms {
			i.indexRoom(ctx, p, room)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "roomindex").Int("rooms", len(rooms)).Msg("rebuild index failed")
		return
	}
	log.Info().Str("module", "roomindex").Int("rooms", len(rooms)).Msg("index rebuilt")
}

// RecentRooms returns up to limit room ids, most recently active first.
func (i *Index) RecentRooms(ctx context.Context, publicOnly bool, limit int) ([]domain.RoomID, error) {
	if limit <= 0 {
		return []domain.RoomID{}, nil
	}
	key := i.activityKey()
	if publicOnly {
		key = i.publicKey()
	}
	ids, err := i.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("room index read: %w", err)
	}
	out := make([]domain.RoomID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RoomID(id))
	}
	return out, nil
}

func (i *Index) Ping(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}
