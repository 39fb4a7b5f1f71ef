package orch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a SignalConnection that keeps every decoded envelope.
type recorder struct {
	mu     sync.Mutex
	frames []orch.Envelope
	closed bool
}

func (r *recorder) TrySend(f core.Frame) error {
	var env orch.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, env)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) ofType(t string) []orch.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []orch.Envelope
	for _, env := range r.frames {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

func (r *recorder) errors(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range r.ofType(orch.TypeError) {
		var v orch.ErrorView
		require.NoError(t, json.Unmarshal(env.Data, &v))
		out = append(out, v.Message)
	}
	return out
}

func (r *recorder) messages(t *testing.T) []orch.MessageView {
	t.Helper()
	var out []orch.MessageView
	for _, env := range r.ofType(orch.TypeMessage) {
		var v orch.MessageView
		require.NoError(t, json.Unmarshal(env.Data, &v))
		out = append(out, v)
	}
	return out
}

type fixture struct {
	o       *orch.Orchestrator
	store   *memstore.Store
	general domain.RoomID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	rooms := app.NewRoomRegistry(s)
	general, err := rooms.EnsureDefaultRoom(ctx)
	require.NoError(t, err)
	return &fixture{
		o: &orch.Orchestrator{
			Rooms:    rooms,
			Hub:      app.NewConnectionHub(nil, app.SimplePolicy{}),
			Messages: s,
			Limiter:  app.NewRateLimiter(0, time.Second),
		},
		store:   s,
		general: general,
	}
}

func (f *fixture) connect(t *testing.T, conn core.ConnID, user domain.UserID) (*orch.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	sess, err := f.o.Connect(context.Background(), rec, core.Identity{ConnID: conn, UserID: user, Username: string(user)})
	require.NoError(t, err)
	require.Equal(t, orch.StateConnected, sess.State())
	return sess, rec
}

func (f *fixture) textMessages(t *testing.T, room domain.RoomID) []*domain.Message {
	t.Helper()
	all, err := f.store.ListMessages(context.Background(), room, 1, 1000)
	require.NoError(t, err)
	var out []*domain.Message
	for _, m := range all {
		if !m.IsSystem {
			out = append(out, m)
		}
	}
	return out
}

func TestOrchestrator_ConnectWithoutIdentity(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	sess, err := f.o.Connect(context.Background(), rec, core.Identity{ConnID: "c1"})
	require.ErrorIs(t, err, app.ErrUnauthenticated)
	assert.True(t, rec.closed)
	assert.Equal(t, orch.StateUnauthenticated, sess.State())

	f.o.Handle(context.Background(), sess, orch.JoinRoom{RoomID: f.general})
	assert.Empty(t, rec.frames)
	assert.Equal(t, 0, f.o.Hub.Count())
}

func TestOrchestrator_JoinPublicRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	aSess, a := f.connect(t, "ca", "alice")
	bSess, b := f.connect(t, "cb", "bob")

	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: f.general})
	a.reset()
	f.o.Handle(ctx, bSess, orch.JoinRoom{RoomID: f.general})

	// both subscribers see the notice, including the joiner
	for _, rec := range []*recorder{a, b} {
		msgs := rec.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, "bob joined the room", msgs[0].Message)
		assert.True(t, msgs[0].IsSystem)
		assert.Equal(t, domain.SystemUserID, msgs[0].UserID)
		assert.Equal(t, domain.MessageSystem, msgs[0].MessageType)
	}

	success := b.ofType(orch.TypeJoinSuccess)
	require.Len(t, success, 1)
	var view orch.JoinSuccessView
	require.NoError(t, json.Unmarshal(success[0].Data, &view))
	assert.Equal(t, orch.JoinSuccessView{RoomID: f.general, RoomName: domain.DefaultRoomName}, view)
	assert.Empty(t, a.ofType(orch.TypeJoinSuccess))

	assert.True(t, f.o.Rooms.IsMember(f.general, "bob"))
	assert.Equal(t, []domain.RoomID{f.general}, f.o.Hub.Rooms("cb"))
}

func TestOrchestrator_PrivateRoomAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	secret, err := f.o.Rooms.CreateRoom(ctx, "secret", "alice", "", true)
	require.NoError(t, err)
	before, _ := f.o.Rooms.GetRoom(secret)

	aSess, a := f.connect(t, "ca", "alice")
	bSess, b := f.connect(t, "cb", "bob")

	f.o.Handle(ctx, bSess, orch.JoinRoom{RoomID: secret})
	assert.Equal(t, []string{"Access denied"}, b.errors(t))
	assert.Empty(t, b.ofType(orch.TypeJoinSuccess))
	assert.Empty(t, f.o.Hub.Rooms("cb"))

	after, _ := f.o.Rooms.GetRoom(secret)
	assert.Equal(t, before, after, "denied join leaves the room untouched")

	b.reset()
	f.o.Handle(ctx, bSess, orch.SendMessage{RoomID: secret, Body: "let me in"})
	assert.Equal(t, []string{"Access denied"}, b.errors(t))
	assert.Empty(t, f.textMessages(t, secret))

	// the creator is already a member
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: secret})
	assert.Len(t, a.ofType(orch.TypeJoinSuccess), 1)
	assert.Empty(t, a.errors(t))
}

func TestOrchestrator_JoinErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, rec := f.connect(t, "c1", "zed")

	f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: "missing"})
	assert.Equal(t, []string{"Room not found"}, rec.errors(t))

	// fill a room while zed is not a member
	full, err := f.o.Rooms.CreateRoom(ctx, "crowded", "owner", "", false)
	require.NoError(t, err)
	for i := 1; i < domain.MaxPublicMembers; i++ {
		_, err := f.o.Rooms.Join(ctx, full, domain.UserID("m"+strings.Repeat("x", i)))
		require.NoError(t, err)
	}
	rec.reset()
	f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: full})
	assert.Equal(t, []string{"Room is full"}, rec.errors(t))
	assert.Empty(t, f.o.Hub.Rooms("c1"))

	// store failure during join
	rec.reset()
	f.store.FailNext(errors.New("db gone"))
	f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: f.general})
	assert.Equal(t, []string{"Could not join room"}, rec.errors(t))
	assert.False(t, f.o.Rooms.IsMember(f.general, "zed"))

	// empty room id is ignored
	rec.reset()
	f.o.Handle(ctx, sess, orch.JoinRoom{})
	assert.Empty(t, rec.frames)
}

// failingMessages rejects every write.
type failingMessages struct {
	core.MessageStore
	err error
}

func (f failingMessages) AddMessage(context.Context, *domain.Message) error { return f.err }

func TestOrchestrator_JoinNoticeFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	aSess, a := f.connect(t, "ca", "alice")
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: f.general})
	f.o.Handle(ctx, aSess, orch.LeaveRoom{RoomID: f.general})
	require.Empty(t, f.o.Hub.Rooms("ca"))
	a.reset()

	// an existing member whose notice cannot be stored stays unsubscribed
	f.store.FailNext(errors.New("db gone"))
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: f.general})
	assert.Equal(t, []string{"Could not join room"}, a.errors(t))
	assert.Empty(t, a.ofType(orch.TypeJoinSuccess))
	assert.Empty(t, f.o.Hub.Rooms("ca"))
	assert.True(t, f.o.Rooms.IsMember(f.general, "alice"))

	bSess, b := f.connect(t, "cb", "bob")
	f.o.Handle(ctx, bSess, orch.SendMessage{RoomID: f.general, Body: "anyone?"})
	assert.Empty(t, a.messages(t))

	// a new member is taken out again
	before, _ := f.o.Rooms.GetRoom(f.general)
	f.o.Messages = failingMessages{MessageStore: f.store, err: errors.New("db gone")}
	b.reset()
	f.o.Handle(ctx, bSess, orch.JoinRoom{RoomID: f.general})
	assert.Equal(t, []string{"Could not join room"}, b.errors(t))
	assert.Empty(t, f.o.Hub.Rooms("cb"))
	assert.False(t, f.o.Rooms.IsMember(f.general, "bob"))
	after, _ := f.o.Rooms.GetRoom(f.general)
	assert.Equal(t, before.Members, after.Members)
}

func TestOrchestrator_JoinRacingEviction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := range 50 {
		room, err := f.o.Rooms.CreateRoom(ctx, fmt.Sprintf("short-lived-%d", i), "owner", "", false)
		require.NoError(t, err)
		conn := core.ConnID(fmt.Sprintf("c%d", i))
		sess, rec := f.connect(t, conn, domain.UserID(fmt.Sprintf("u%d", i)))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: room})
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.o.EvictRoom(ctx, room))
		}()
		wg.Wait()

		// a deactivated room is reported as missing, never as full
		for _, msg := range rec.errors(t) {
			assert.Equal(t, "Room not found", msg)
		}
	}
}

func TestOrchestrator_SendMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	aSess, a := f.connect(t, "ca", "alice")
	bSess, b := f.connect(t, "cb", "bob")
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: f.general})
	f.o.Handle(ctx, bSess, orch.JoinRoom{RoomID: f.general})
	a.reset()
	b.reset()

	other, err := f.o.Rooms.CreateRoom(ctx, "other", "alice", "", false)
	require.NoError(t, err)
	require.Equal(t, other, f.o.Rooms.ListPublicRooms()[0].ID)

	f.o.Handle(ctx, aSess, orch.SendMessage{RoomID: f.general, Body: "  hello  "})

	for _, rec := range []*recorder{a, b} {
		msgs := rec.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Message)
		assert.Equal(t, domain.UserID("alice"), msgs[0].UserID)
		assert.Equal(t, "alice", msgs[0].Username)
		assert.Equal(t, domain.MessageText, msgs[0].MessageType)
		assert.False(t, msgs[0].IsSystem)
		assert.Equal(t, f.general, msgs[0].RoomID)
	}

	stored := f.textMessages(t, f.general)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello", stored[0].Body)

	// activity moves the room to the front
	public := f.o.Rooms.ListPublicRooms()
	require.Len(t, public, 2)
	assert.Equal(t, f.general, public[0].ID)
	assert.Equal(t, other, public[1].ID)
}

func TestOrchestrator_SendMessageRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	aSess, a := f.connect(t, "ca", "alice")
	bSess, b := f.connect(t, "cb", "bob")
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: f.general})
	f.o.Handle(ctx, bSess, orch.JoinRoom{RoomID: f.general})
	a.reset()
	b.reset()

	f.o.Handle(ctx, aSess, orch.SendMessage{RoomID: f.general, Body: strings.Repeat("x", domain.MaxMessageLen+1)})
	assert.Equal(t, []string{domain.MessageTooLong}, a.errors(t))
	assert.Empty(t, b.frames)
	assert.Empty(t, f.textMessages(t, f.general))

	a.reset()
	f.o.Handle(ctx, aSess, orch.SendMessage{RoomID: f.general, Body: "   "})
	f.o.Handle(ctx, aSess, orch.SendMessage{Body: "no room"})
	assert.Empty(t, a.frames)

	f.o.Handle(ctx, aSess, orch.SendMessage{RoomID: "missing", Body: "hi"})
	assert.Equal(t, []string{"Room not found"}, a.errors(t))

	a.reset()
	f.store.FailNext(errors.New("write failed"))
	f.o.Handle(ctx, aSess, orch.SendMessage{RoomID: f.general, Body: "hi"})
	assert.Equal(t, []string{"Could not send message"}, a.errors(t))
	assert.Empty(t, b.messages(t))
}

func TestOrchestrator_SendMessageRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.o.Limiter = app.NewRateLimiter(2, time.Minute)
	sess, rec := f.connect(t, "c1", "alice")
	f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: f.general})
	rec.reset()

	for range 3 {
		f.o.Handle(ctx, sess, orch.SendMessage{RoomID: f.general, Body: "spam"})
	}
	assert.Len(t, rec.messages(t), 2)
	assert.Equal(t, []string{"Rate limit exceeded"}, rec.errors(t))
	assert.Len(t, f.textMessages(t, f.general), 2)
}

func TestOrchestrator_TypingSkipsSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a1Sess, a1 := f.connect(t, "a1", "alice")
	a2Sess, a2 := f.connect(t, "a2", "alice")
	bSess, b := f.connect(t, "cb", "bob")
	for _, s := range []*orch.Session{a1Sess, a2Sess, bSess} {
		f.o.Handle(ctx, s, orch.JoinRoom{RoomID: f.general})
	}
	for _, rec := range []*recorder{a1, a2, b} {
		rec.reset()
	}

	f.o.Handle(ctx, a1Sess, orch.TypingStart{RoomID: f.general})
	assert.Empty(t, a1.frames)
	assert.Len(t, a2.ofType(orch.TypeUserTyping), 1, "other connections of the same user still get it")
	require.Len(t, b.ofType(orch.TypeUserTyping), 1)

	var view orch.TypingView
	require.NoError(t, json.Unmarshal(b.ofType(orch.TypeUserTyping)[0].Data, &view))
	assert.Equal(t, orch.TypingView{Username: "alice", RoomID: f.general}, view)

	f.o.Handle(ctx, a1Sess, orch.TypingStop{RoomID: f.general})
	assert.Len(t, b.ofType(orch.TypeUserStoppedTyping), 1)
	assert.Empty(t, a1.frames)
}

func TestOrchestrator_TypingNeedsAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	secret, err := f.o.Rooms.CreateRoom(ctx, "secret", "alice", "", true)
	require.NoError(t, err)
	aSess, a := f.connect(t, "ca", "alice")
	bSess, b := f.connect(t, "cb", "bob")
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: secret})
	a.reset()

	f.o.Handle(ctx, bSess, orch.TypingStart{RoomID: secret})
	f.o.Handle(ctx, bSess, orch.TypingStart{RoomID: "missing"})
	assert.Empty(t, a.frames)
	assert.Empty(t, b.frames)
}

func TestOrchestrator_LeaveRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	aSess, a := f.connect(t, "ca", "alice")
	bSess, b := f.connect(t, "cb", "bob")
	f.o.Handle(ctx, aSess, orch.JoinRoom{RoomID: f.general})
	f.o.Handle(ctx, bSess, orch.JoinRoom{RoomID: f.general})
	a.reset()
	b.reset()

	f.o.Handle(ctx, bSess, orch.LeaveRoom{RoomID: f.general})
	assert.Empty(t, b.frames, "the leaver is unsubscribed before the notice")
	msgs := a.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob left the room", msgs[0].Message)

	// membership survives leaving the live channel
	assert.True(t, f.o.Rooms.IsMember(f.general, "bob"))
	assert.Empty(t, f.o.Hub.Rooms("cb"))

	a.reset()
	f.o.Handle(ctx, bSess, orch.LeaveRoom{RoomID: "missing"})
	assert.Empty(t, a.frames)
}

func TestOrchestrator_DisconnectKeepsMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, _ := f.connect(t, "c1", "bob")
	f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: f.general})
	before, _ := f.o.Rooms.GetRoom(f.general)

	f.o.Disconnect(ctx, sess)
	f.o.Disconnect(ctx, sess)
	assert.Equal(t, orch.StateClosed, sess.State())
	assert.Equal(t, 0, f.o.Hub.Count())
	assert.True(t, f.o.Rooms.IsMember(f.general, "bob"))

	// events after close are ignored
	f.o.Handle(ctx, sess, orch.SendMessage{RoomID: f.general, Body: "ghost"})
	assert.Empty(t, f.textMessages(t, f.general))

	// rejoining on a fresh connection does not duplicate membership
	again, rec := f.connect(t, "c2", "bob")
	f.o.Handle(ctx, again, orch.JoinRoom{RoomID: f.general})
	assert.Len(t, rec.ofType(orch.TypeJoinSuccess), 1)
	after, _ := f.o.Rooms.GetRoom(f.general)
	assert.Equal(t, before.MemberCount, after.MemberCount)
}

func TestOrchestrator_EvictRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room, err := f.o.Rooms.CreateRoom(ctx, "doomed", "alice", "", false)
	require.NoError(t, err)
	sess, rec := f.connect(t, "c1", "alice")
	f.o.Handle(ctx, sess, orch.JoinRoom{RoomID: room})
	rec.reset()

	require.NoError(t, f.o.EvictRoom(ctx, room))
	assert.Empty(t, f.o.Hub.Subscribers(room))
	_, ok := f.o.Rooms.GetRoom(room)
	assert.False(t, ok)

	f.o.Handle(ctx, sess, orch.SendMessage{RoomID: room, Body: "anyone?"})
	assert.Equal(t, []string{"Room not found"}, rec.errors(t))

	assert.True(t, errors.Is(f.o.EvictRoom(ctx, "missing"), domain.ErrNotFound))
}
