package chat

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lalith-99/panelchat/internal/moderation"
)

var (
	// Authentication: fatal to the connection attempt, never retried by the server.
	ErrUnauthenticated = errors.New("unauthenticated")

	// Membership: recoverable by joining through the directory and retrying.
	ErrNotAMember = errors.New("not a member of this channel")
	ErrNotARoom   = errors.New("channel is not a room")
	ErrForbidden  = errors.New("forbidden")

	// Validation: rejected before moderation; nothing persisted or broadcast.
	ErrChannelNotFound = errors.New("channel not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrNotSubscribed   = errors.New("not subscribed to this channel")
	ErrRateLimited     = errors.New("sending too fast, slow down")

	ErrSessionClosed = errors.New("session closed")

	// ErrServer wraps store failures. The attempt failed atomically and the
	// client may retry it.
	ErrServer = errors.New("server error")
)

// BlockedError is a moderation rejection. It is not a system error: the
// sender gets a "blocked" notice instead of an "error".
type BlockedError struct {
	ChannelID uuid.UUID
	Reason    moderation.Reason
	Detail    string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("message blocked: %s", e.Reason)
}

func serverError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrServer, op, err)
}

// Code maps an error to the machine-readable code sent to clients.
func Code(err error) string {
	var blocked *BlockedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &blocked):
		return "blocked"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrNotARoom):
		return "not_a_room"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrChannelNotFound):
		return "channel_not_found"
	case errors.Is(err, ErrMessageNotFound):
		return "message_not_found"
	case errors.Is(err, ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, ErrNotSubscribed):
		return "not_subscribed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "server_error"
	}
}

// PublicMessage is the text shown to the client. Server errors are not
// described beyond "try again"; their cause stays in the logs.
func PublicMessage(err error) string {
	if Code(err) == "server_error" {
		return "something went wrong, please try again"
	}
	return err.Error()
}
