package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the read-only view of an identity owned by the account service.
// The chat core never creates users; it only needs display fields.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelKind decides who may subscribe to a channel.
//
//   - global:  every authenticated user, no membership row needed.
//   - room:    discoverable, opt-in through an explicit join.
//   - private: tied to a group; membership mirrors the group's.
type ChannelKind string

const (
	ChannelKindGlobal  ChannelKind = "global"
	ChannelKindRoom    ChannelKind = "room"
	ChannelKindPrivate ChannelKind = "private"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelKindGlobal, ChannelKindRoom, ChannelKindPrivate:
		return true
	}
	return false
}

// RequiresMembership reports whether subscribing needs a ChannelMember row.
func (k ChannelKind) RequiresMembership() bool {
	return k != ChannelKindGlobal
}

type Channel struct {
	ID        uuid.UUID   `json:"id"`
	Kind      ChannelKind `json:"kind"`
	Name      string      `json:"name"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

// RoomListing is a discoverable room plus whether the viewer already joined it.
type RoomListing struct {
	Channel
	Joined bool `json:"joined"`
}

// ChannelMember is the join table between channels and users.
// A row is both necessary and sufficient to subscribe to a room or private channel.
type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Message is a single chat message in a channel.
//
// ID is a bigserial, so a higher ID always means a later commit; clients
// order by it rather than by receipt order.
//
// SenderID is nil once the sender's account is deleted. ReplyToID is only
// ever stored when it pointed at a message in the same channel at write time.
type Message struct {
	ID        int64      `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	SenderID  *uuid.UUID `json:"sender_id"`
	Content   string     `json:"content"`
	ReplyToID *int64     `json:"reply_to_id"`
	IsPinned  bool       `json:"is_pinned"`
	CreatedAt time.Time  `json:"created_at"`
}

// ReplyPreview is the quoted target of a reply. Removed is set when the
// target was deleted after the reply was written.
type ReplyPreview struct {
	ID         int64  `json:"id"`
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content,omitempty"`
	Removed    bool   `json:"removed"`
}

// MessageView is a Message with the display fields clients render.
type MessageView struct {
	Message
	SenderName string        `json:"sender_name"`
	ReplyTo    *ReplyPreview `json:"reply_to,omitempty"`
}
