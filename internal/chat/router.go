package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/protocol"
	"github.com/lalith-99/panelchat/internal/session"
)

// Router handles the frames read from one connection. The connection's read
// loop calls Dispatch for each frame in order, so a session's requests are
// processed one at a time; replies go onto the session's own queue.
type Router struct {
	manager  *Manager
	pipeline *Pipeline
	logger   *zap.Logger
}

func NewRouter(manager *Manager, pipeline *Pipeline, logger *zap.Logger) *Router {
	return &Router{manager: manager, pipeline: pipeline, logger: logger}
}

func (r *Router) Dispatch(ctx context.Context, s *session.Session, frame []byte) {
	in, err := protocol.Decode(frame)
	if err != nil {
		var derr *protocol.DecodeError
		ref := ""
		if errors.As(err, &derr) {
			ref = derr.Ref
		}
		r.reply(s, protocol.TypeError, ref, protocol.ErrorPayload{Message: err.Error(), Code: "bad_request"})
		return
	}

	switch p := in.Payload.(type) {
	case protocol.JoinPayload:
		if err := r.manager.Join(ctx, s, p.ChannelID); err != nil {
			r.fail(s, in.Ref, err)
			return
		}
		r.ack(s, in.Ref, protocol.TypeJoin, p.ChannelID, 0)

	case protocol.LeavePayload:
		r.manager.Leave(s, p.ChannelID)
		r.ack(s, in.Ref, protocol.TypeLeave, p.ChannelID, 0)

	case protocol.SendPayload:
		view, err := r.pipeline.Send(ctx, s, SendRequest{
			ChannelID: p.ChannelID,
			Content:   p.Content,
			ReplyToID: p.ReplyToID,
			Ref:       in.Ref,
		})
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			// The pipeline already sent the blocked notice.
			return
		}
		if err != nil {
			r.fail(s, in.Ref, err)
			return
		}
		r.ack(s, in.Ref, protocol.TypeSend, p.ChannelID, view.ID)
	}
}

func (r *Router) ack(s *session.Session, ref string, action protocol.EventType, channelID uuid.UUID, messageID int64) {
	r.reply(s, protocol.TypeAck, ref, protocol.AckPayload{Action: action, ChannelID: channelID, MessageID: messageID})
}

func (r *Router) fail(s *session.Session, ref string, err error) {
	if Code(err) == "server_error" {
		r.logger.Error("chat request failed",
			zap.String("session_id", s.ID.String()),
			zap.Error(err),
		)
	}
	r.reply(s, protocol.TypeError, ref, protocol.ErrorPayload{Message: PublicMessage(err), Code: Code(err)})
}

func (r *Router) reply(s *session.Session, t protocol.EventType, ref string, payload any) {
	data, err := protocol.Encode(t, ref, payload)
	if err != nil {
		r.logger.Error("failed to encode reply", zap.String("type", string(t)), zap.Error(err))
		return
	}
	r.manager.Notify(s, data)
}
