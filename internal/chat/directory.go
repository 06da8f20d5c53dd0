package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/models"
	"github.com/lalith-99/panelchat/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Evictor drops live subscriptions when a membership goes away.
type Evictor interface {
	Evict(userID, channelID uuid.UUID)
}

// Directory is the read side: which channels a viewer can see, which rooms
// can be discovered, history, and the join-room side effect. Viewer
// uuid.Nil means anonymous.
type Directory struct {
	channels repository.ChannelRepository
	members  repository.MembershipRepository
	messages repository.MessageRepository
	evictor  Evictor
	logger   *zap.Logger
}

func NewDirectory(
	channels repository.ChannelRepository,
	members repository.MembershipRepository,
	messages repository.MessageRepository,
	evictor Evictor,
	logger *zap.Logger,
) *Directory {
	return &Directory{
		channels: channels,
		members:  members,
		messages: messages,
		evictor:  evictor,
		logger:   logger,
	}
}

// ListChannelsFor returns the global channel for everyone, plus every room
// and private channel the viewer is a member of.
func (d *Directory) ListChannelsFor(ctx context.Context, viewer uuid.UUID) ([]models.Channel, error) {
	channels, err := d.channels.ListForUser(ctx, viewer)
	if err != nil {
		return nil, serverError("list channels", err)
	}
	return channels, nil
}

// ListDiscoverableRooms returns active rooms with the viewer's joined flag.
// Private channels are only discoverable through their group.
func (d *Directory) ListDiscoverableRooms(ctx context.Context, viewer uuid.UUID) ([]models.RoomListing, error) {
	rooms, err := d.channels.ListRooms(ctx, viewer)
	if err != nil {
		return nil, serverError("list rooms", err)
	}
	return rooms, nil
}

// JoinRoom creates the membership row if absent. Joining twice succeeds
// (created=false). It opens no live subscription: the client still sends
// "join" over its connection.
func (d *Directory) JoinRoom(ctx context.Context, userID, channelID uuid.UUID) (created bool, err error) {
	ch, err := d.room(ctx, channelID)
	if err != nil {
		return false, err
	}

	created, err = d.members.AddMember(ctx, ch.ID, userID)
	if err != nil {
		return false, serverError("add member", err)
	}
	if created {
		d.logger.Info("user joined room",
			zap.String("user_id", userID.String()),
			zap.String("channel_id", channelID.String()),
		)
	}
	return created, nil
}

// LeaveRoom removes the membership and drops the user's live subscriptions
// to the room, keeping "membership is required to be subscribed" true.
func (d *Directory) LeaveRoom(ctx context.Context, userID, channelID uuid.UUID) error {
	ch, err := d.room(ctx, channelID)
	if err != nil {
		return err
	}
	if err := d.members.RemoveMember(ctx, ch.ID, userID); err != nil {
		return serverError("remove member", err)
	}
	if d.evictor != nil {
		d.evictor.Evict(userID, ch.ID)
	}
	return nil
}

func (d *Directory) room(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := d.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, serverError("load channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, ErrChannelNotFound
	}
	if ch.Kind != models.ChannelKindRoom {
		return nil, ErrNotARoom
	}
	return ch, nil
}

// GetHistory returns up to limit messages, newest first, older than before
// (0 = latest). limit is clamped to [1, MaxHistoryLimit], defaulting to
// DefaultHistoryLimit.
func (d *Directory) GetHistory(ctx context.Context, viewer, channelID uuid.UUID, before int64, limit int) ([]models.MessageView, error) {
	if _, err := d.readable(ctx, viewer, channelID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	views, err := d.messages.ListByChannel(ctx, channelID, before, limit)
	if err != nil {
		return nil, serverError("list messages", err)
	}
	return views, nil
}

// ListPinned returns a channel's pinned messages, for viewers who may read it.
func (d *Directory) ListPinned(ctx context.Context, viewer, channelID uuid.UUID) ([]models.MessageView, error) {
	if _, err := d.readable(ctx, viewer, channelID); err != nil {
		return nil, err
	}
	views, err := d.messages.ListPinned(ctx, channelID)
	if err != nil {
		return nil, serverError("list pinned", err)
	}
	return views, nil
}

// ListMembers is visible to members only. The global channel has no
// membership rows, so it lists nobody.
func (d *Directory) ListMembers(ctx context.Context, viewer, channelID uuid.UUID) ([]models.ChannelMember, error) {
	ch, err := d.readable(ctx, viewer, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.Kind.RequiresMembership() {
		return []models.ChannelMember{}, nil
	}
	members, err := d.members.ListMembers(ctx, channelID)
	if err != nil {
		return nil, serverError("list members", err)
	}
	return members, nil
}

// readable enforces read access: global is open to anyone, rooms and
// private channels to members only.
func (d *Directory) readable(ctx context.Context, viewer, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := d.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, serverError("load channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, ErrChannelNotFound
	}
	if !ch.Kind.RequiresMembership() {
		return ch, nil
	}
	if viewer == uuid.Nil {
		return nil, ErrForbidden
	}
	member, err := d.members.IsMember(ctx, channelID, viewer)
	if err != nil {
		return nil, serverError("check membership", err)
	}
	if !member {
		return nil, ErrForbidden
	}
	return ch, nil
}

// EnsureDefaults provisions the global channel and any named rooms.
func (d *Directory) EnsureDefaults(ctx context.Context, globalName string, rooms []string) (*models.Channel, error) {
	global, err := d.channels.EnsureGlobal(ctx, globalName)
	if err != nil {
		return nil, serverError("ensure global channel", err)
	}
	for _, name := range rooms {
		if _, err := d.channels.EnsureRoom(ctx, name); err != nil {
			return nil, serverError("ensure room "+name, err)
		}
	}
	return global, nil
}
