package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lalith-99/panelchat/internal/models"
	"github.com/lalith-99/panelchat/internal/protocol"
)

// Scenario: a non-member is refused, joins through the directory, retries
// and can then send to everyone in the room.
func TestDirectory_JoinRoomThenSubscribe(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	room := f.room(t, "random")

	bob := f.connect(t, "bob")
	_, err := f.directory.JoinRoom(ctx, bob.UserID, room.ID)
	req.NoError(err)
	req.NoError(f.manager.Join(ctx, bob, room.ID))

	alice := f.connect(t, "alice")
	req.ErrorIs(f.manager.Join(ctx, alice, room.ID), ErrNotAMember)

	created, err := f.directory.JoinRoom(ctx, alice.UserID, room.ID)
	req.NoError(err)
	req.True(created)
	req.NoError(f.manager.Join(ctx, alice, room.ID))

	_, err = f.pipeline.Send(ctx, alice, SendRequest{ChannelID: room.ID, Content: "hello"})
	req.NoError(err)

	for _, s := range []struct {
		name string
		envs []protocol.Envelope
	}{{"alice", drain(t, alice)}, {"bob", drain(t, bob)}} {
		msgs := ofType(s.envs, protocol.TypeMessage)
		req.Len(msgs, 1, s.name)
		req.Equal("hello", decodeMessage(t, msgs[0]).Content)
	}
}

func TestDirectory_JoinRoomIsIdempotent(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	room := f.room(t, "random")
	userID := uuid.New()

	created, err := f.directory.JoinRoom(ctx, userID, room.ID)
	req.NoError(err)
	req.True(created)

	created, err = f.directory.JoinRoom(ctx, userID, room.ID)
	req.NoError(err)
	req.False(created)
	req.Equal(1, f.db.CountMembers(room.ID, userID))
}

func TestDirectory_JoinRoomRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	private, err := f.db.Channels().Create(ctx, models.ChannelKindPrivate, "team")
	require.NoError(t, err)
	closed := f.room(t, "closed")
	f.db.SetChannelActive(closed.ID, false)

	tests := []struct {
		name      string
		channelID uuid.UUID
		want      error
	}{
		{"global", f.global.ID, ErrNotARoom},
		{"private", private.ID, ErrNotARoom},
		{"inactive room", closed.ID, ErrChannelNotFound},
		{"unknown", uuid.New(), ErrChannelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.directory.JoinRoom(ctx, uuid.New(), tt.channelID)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDirectory_LeaveRoomEvictsLiveSessions(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	room := f.room(t, "random")

	userID := uuid.New()
	phone := f.connectAs(t, userID, "alice")
	laptop := f.connectAs(t, userID, "alice")
	_, err := f.directory.JoinRoom(ctx, userID, room.ID)
	req.NoError(err)
	req.NoError(f.manager.Join(ctx, phone, room.ID))
	req.NoError(f.manager.Join(ctx, laptop, room.ID))

	req.NoError(f.directory.LeaveRoom(ctx, userID, room.ID))
	req.Zero(f.db.CountMembers(room.ID, userID))
	req.False(f.manager.IsSubscribed(phone, room.ID))
	req.False(f.manager.IsSubscribed(laptop, room.ID))

	// Leaving again is harmless.
	req.NoError(f.directory.LeaveRoom(ctx, userID, room.ID))
}

func TestDirectory_ListChannelsFor(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	alpha := f.room(t, "alpha")
	f.room(t, "beta")
	userID := uuid.New()

	anon, err := f.directory.ListChannelsFor(ctx, uuid.Nil)
	req.NoError(err)
	req.Len(anon, 1)
	req.Equal(f.global.ID, anon[0].ID)

	_, err = f.directory.JoinRoom(ctx, userID, alpha.ID)
	req.NoError(err)
	mine, err := f.directory.ListChannelsFor(ctx, userID)
	req.NoError(err)
	req.Len(mine, 2)
	req.Equal(models.ChannelKindGlobal, mine[0].Kind)
	req.Equal(alpha.ID, mine[1].ID)
}

func TestDirectory_ListDiscoverableRooms(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	alpha := f.room(t, "alpha")
	beta := f.room(t, "beta")
	_, err := f.db.Channels().Create(ctx, models.ChannelKindPrivate, "hidden")
	req.NoError(err)
	userID := uuid.New()
	_, err = f.directory.JoinRoom(ctx, userID, beta.ID)
	req.NoError(err)

	rooms, err := f.directory.ListDiscoverableRooms(ctx, userID)
	req.NoError(err)
	req.Len(rooms, 2)
	req.Equal(alpha.ID, rooms[0].ID)
	req.False(rooms[0].Joined)
	req.Equal(beta.ID, rooms[1].ID)
	req.True(rooms[1].Joined)
}

func TestDirectory_GetHistory(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	alice := f.connect(t, "alice")
	req.NoError(f.manager.Join(ctx, alice, f.global.ID))

	// More sends than alice's queue holds; drain so she stays connected.
	for i := 0; i < 120; i++ {
		_, err := f.pipeline.Send(ctx, alice, SendRequest{ChannelID: f.global.ID, Content: fmt.Sprintf("m%d", i)})
		req.NoError(err)
		drain(t, alice)
	}
	req.True(f.manager.IsSubscribed(alice, f.global.ID))

	page, err := f.directory.GetHistory(ctx, uuid.Nil, f.global.ID, 0, 0)
	req.NoError(err)
	req.Len(page, DefaultHistoryLimit)
	req.Equal("m119", page[0].Content)

	page, err = f.directory.GetHistory(ctx, alice.UserID, f.global.ID, 0, 1000)
	req.NoError(err)
	req.Len(page, MaxHistoryLimit)

	older, err := f.directory.GetHistory(ctx, alice.UserID, f.global.ID, page[len(page)-1].ID, 50)
	req.NoError(err)
	req.Len(older, 20)
	req.Equal("m19", older[0].Content)
	req.Equal("m0", older[len(older)-1].Content)
}

func TestDirectory_ReadAccess(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	room := f.room(t, "random")
	member := uuid.New()
	_, err := f.directory.JoinRoom(ctx, member, room.ID)
	req.NoError(err)

	_, err = f.directory.GetHistory(ctx, uuid.Nil, room.ID, 0, 10)
	req.ErrorIs(err, ErrForbidden)
	_, err = f.directory.GetHistory(ctx, uuid.New(), room.ID, 0, 10)
	req.ErrorIs(err, ErrForbidden)
	_, err = f.directory.ListPinned(ctx, uuid.New(), room.ID)
	req.ErrorIs(err, ErrForbidden)
	_, err = f.directory.GetHistory(ctx, member, uuid.New(), 0, 10)
	req.ErrorIs(err, ErrChannelNotFound)

	members, err := f.directory.ListMembers(ctx, member, room.ID)
	req.NoError(err)
	req.Len(members, 1)
	req.Equal(member, members[0].UserID)

	members, err = f.directory.ListMembers(ctx, uuid.Nil, f.global.ID)
	req.NoError(err)
	req.Empty(members)
}

func TestDirectory_EnsureDefaultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)

	global, err := f.directory.EnsureDefaults(ctx, "general", []string{"random", "help"})
	req.NoError(err)
	req.Equal(f.global.ID, global.ID)

	_, err = f.directory.EnsureDefaults(ctx, "general", []string{"random", "help"})
	req.NoError(err)

	rooms, err := f.directory.ListDiscoverableRooms(ctx, uuid.Nil)
	req.NoError(err)
	req.Len(rooms, 2)
}
