package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lalith-99/panelchat/internal/models"
)

func TestChannelStore_SingleGlobal(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	db := New()
	channels := db.Channels()

	first, err := channels.EnsureGlobal(ctx, "general")
	req.NoError(err)
	again, err := channels.EnsureGlobal(ctx, "other-name")
	req.NoError(err)
	req.Equal(first.ID, again.ID)

	_, err = channels.Create(ctx, models.ChannelKindGlobal, "second")
	req.ErrorIs(err, ErrGlobalExists)

	_, err = channels.Create(ctx, models.ChannelKind("dm"), "x")
	req.ErrorIs(err, ErrInvalidKind)
}

func TestChannelStore_RoomNamesAreUnique(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	channels := New().Channels()

	room, err := channels.EnsureRoom(ctx, "random")
	req.NoError(err)
	_, err = channels.Create(ctx, models.ChannelKindRoom, "random")
	req.ErrorIs(err, ErrRoomExists)

	// Private channels may share a room's name.
	_, err = channels.Create(ctx, models.ChannelKindPrivate, "random")
	req.NoError(err)

	got, err := channels.GetByID(ctx, room.ID)
	req.NoError(err)
	req.Equal(room.ID, got.ID)

	missing, err := channels.GetByID(ctx, uuid.New())
	req.NoError(err)
	req.Nil(missing)
}

func TestMembershipStore_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	db := New()
	members := db.Memberships()
	channelID, userID := uuid.New(), uuid.New()

	created, err := members.AddMember(ctx, channelID, userID)
	req.NoError(err)
	req.True(created)
	created, err = members.AddMember(ctx, channelID, userID)
	req.NoError(err)
	req.False(created)
	req.Equal(1, db.CountMembers(channelID, userID))

	req.NoError(members.RemoveMember(ctx, channelID, userID))
	req.NoError(members.RemoveMember(ctx, channelID, userID))
	ok, err := members.IsMember(ctx, channelID, userID)
	req.NoError(err)
	req.False(ok)
}

func TestMessageStore_ReplyResolution(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	db := New()
	messages := db.Messages()
	a, b := uuid.New(), uuid.New()
	sender := db.PutUser(uuid.New(), "alice")

	inA, err := messages.Create(ctx, a, sender.ID, "in a", nil)
	req.NoError(err)

	sameChannel, err := messages.Create(ctx, a, sender.ID, "reply", &inA.ID)
	req.NoError(err)
	req.Equal(inA.ID, *sameChannel.ReplyToID)

	otherChannel, err := messages.Create(ctx, b, sender.ID, "reply", &inA.ID)
	req.NoError(err)
	req.Nil(otherChannel.ReplyToID)
	req.Greater(otherChannel.ID, sameChannel.ID)
}

func TestMessageStore_DeletedSender(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	db := New()
	channelID := uuid.New()
	sender := db.PutUser(uuid.New(), "alice")

	msg, err := db.Messages().Create(ctx, channelID, sender.ID, "hello", nil)
	req.NoError(err)

	db.DeleteUser(sender.ID)
	got, err := db.Messages().GetByID(ctx, msg.ID)
	req.NoError(err)
	req.Nil(got.SenderID)

	views, err := db.Messages().ListByChannel(ctx, channelID, 0, 10)
	req.NoError(err)
	req.Len(views, 1)
	req.Empty(views[0].SenderName)
	req.Equal("hello", views[0].Content)
}
