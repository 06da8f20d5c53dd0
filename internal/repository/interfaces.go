package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/panelchat/internal/models"
)

// Every method takes ctx first: these all touch the network in the
// Postgres driver, and a cancelled request should cancel its query.
//
// Lookups return nil, nil when the row does not exist. Callers decide
// whether "missing" is an error for them.

// ChannelRepository defines the contract for channel data operations.
type ChannelRepository interface {
	// Create inserts a channel. Creating a second global channel fails.
	Create(ctx context.Context, kind models.ChannelKind, name string) (*models.Channel, error)

	// EnsureGlobal returns the global channel, creating it on first use.
	EnsureGlobal(ctx context.Context, name string) (*models.Channel, error)

	// EnsureRoom returns the active room with this name, creating it if absent.
	EnsureRoom(ctx context.Context, name string) (*models.Channel, error)

	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// ListForUser returns the active global channel plus every active channel
	// the user has a membership row for. uuid.Nil means anonymous.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error)

	// ListRooms returns every active room with the viewer's joined flag.
	// Private channels are never included.
	ListRooms(ctx context.Context, userID uuid.UUID) ([]models.RoomListing, error)
}

// MembershipRepository handles who belongs to which channel.
type MembershipRepository interface {
	// AddMember is idempotent. created is false when the row already existed.
	AddMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (created bool, err error)

	// RemoveMember removes a user from a channel. No-op if not a member.
	RemoveMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) error

	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)

	// IsMember is on the hot path: every Join and every pin checks it.
	IsMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (bool, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create persists a message. replyToID is kept only if it names a message
	// in the same channel at write time; otherwise the stored value is nil.
	Create(ctx context.Context, channelID uuid.UUID, senderID uuid.UUID, content string, replyToID *int64) (*models.Message, error)

	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// ListByChannel returns message views newest first.
	// before=0 means "from the latest message".
	ListByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int) ([]models.MessageView, error)

	// SetPinned updates the pinned flag. Returns nil, nil if the message is gone.
	SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error)

	// ListPinned returns the channel's pinned messages, newest first.
	ListPinned(ctx context.Context, channelID uuid.UUID) ([]models.MessageView, error)
}

// UserRepository handles user data.
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}
