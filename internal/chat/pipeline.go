package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/models"
	"github.com/lalith-99/panelchat/internal/moderation"
	"github.com/lalith-99/panelchat/internal/observ"
	"github.com/lalith-99/panelchat/internal/protocol"
	"github.com/lalith-99/panelchat/internal/ratelimit"
	"github.com/lalith-99/panelchat/internal/repository"
	"github.com/lalith-99/panelchat/internal/session"
)

// Subscriptions is the pipeline's read-and-deliver view of the connection
// manager. The pipeline never changes who is subscribed.
type Subscriptions interface {
	IsSubscribed(s *session.Session, channelID uuid.UUID) bool
	Broadcast(channelID uuid.UUID, payload []byte) int
	Notify(s *session.Session, payload []byte) bool
}

// Checker is the moderation filter.
type Checker interface {
	Check(text string) moderation.Verdict
}

type SendRequest struct {
	ChannelID uuid.UUID
	Content   string
	ReplyToID *int64
	// Ref is echoed on the blocked notice so the client can match it.
	Ref string
}

// Pipeline takes a submitted message through
// validate → moderate → persist → broadcast.
type Pipeline struct {
	subs     Subscriptions
	channels repository.ChannelRepository
	members  repository.MembershipRepository
	messages repository.MessageRepository
	filter   Checker
	limiter  ratelimit.Limiter
	locks    channelLocks
	logger   *zap.Logger
}

func NewPipeline(
	subs Subscriptions,
	channels repository.ChannelRepository,
	members repository.MembershipRepository,
	messages repository.MessageRepository,
	filter Checker,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
) *Pipeline {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Pipeline{
		subs:     subs,
		channels: channels,
		members:  members,
		messages: messages,
		filter:   filter,
		limiter:  limiter,
		logger:   logger,
	}
}

// Send returns the persisted view on success. On a moderation rejection it
// has already sent the blocked notice to s and returns a *BlockedError.
func (p *Pipeline) Send(ctx context.Context, s *session.Session, req SendRequest) (*models.MessageView, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		observ.SendsRejected.WithLabelValues("empty").Inc()
		return nil, ErrEmptyContent
	}

	if !p.subs.IsSubscribed(s, req.ChannelID) {
		observ.SendsRejected.WithLabelValues("not_subscribed").Inc()
		return nil, ErrNotSubscribed
	}

	ch, err := p.channels.GetByID(ctx, req.ChannelID)
	if err != nil {
		observ.SendsRejected.WithLabelValues("server_error").Inc()
		return nil, serverError("load channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, ErrChannelNotFound
	}

	if !p.limiter.Allow(ctx, s.UserID) {
		observ.SendsRejected.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	if verdict := p.filter.Check(content); !verdict.Allowed {
		return nil, p.block(s, req, verdict)
	}

	// Persist and broadcast under the channel's lock: subscribers see
	// messages in commit order. Other channels are not held up.
	//
	// Why not one lock around the whole pipeline?
	//   - A slow INSERT in one room would stall sends everywhere.
	//   - Ordering is only promised within a channel, so a per-channel
	//     lock is all it takes.
	unlock := p.locks.lock(req.ChannelID)
	defer unlock()

	msg, err := p.messages.Create(ctx, req.ChannelID, s.UserID, content, req.ReplyToID)
	if err != nil {
		observ.SendsRejected.WithLabelValues("server_error").Inc()
		p.logger.Error("failed to persist message",
			zap.String("channel_id", req.ChannelID.String()),
			zap.String("user_id", s.UserID.String()),
			zap.Error(err),
		)
		return nil, serverError("persist message", err)
	}
	if req.ReplyToID != nil && msg.ReplyToID == nil {
		p.logger.Debug("dropped reply reference outside channel",
			zap.Int64("reply_to_id", *req.ReplyToID),
			zap.String("channel_id", req.ChannelID.String()),
		)
	}

	view := p.view(ctx, msg, s.DisplayName)
	if payload, err := protocol.Encode(protocol.TypeMessage, "", view); err != nil {
		p.logger.Error("failed to encode message event", zap.Int64("message_id", msg.ID), zap.Error(err))
	} else {
		p.subs.Broadcast(req.ChannelID, payload)
	}
	observ.MessagesDelivered.WithLabelValues(string(ch.Kind)).Inc()

	return view, nil
}

// block reports a moderation rejection to the sender only. Blocked content
// is never stored; the attempt is logged without the text for review.
func (p *Pipeline) block(s *session.Session, req SendRequest, v moderation.Verdict) error {
	observ.MessagesBlocked.WithLabelValues(string(v.Reason)).Inc()
	p.logger.Info("message blocked by moderation",
		zap.String("user_id", s.UserID.String()),
		zap.String("channel_id", req.ChannelID.String()),
		zap.String("reason", string(v.Reason)),
	)

	blocked := &BlockedError{ChannelID: req.ChannelID, Reason: v.Reason, Detail: v.Detail}
	payload, err := protocol.Encode(protocol.TypeBlocked, req.Ref, protocol.BlockedPayload{
		ChannelID: req.ChannelID,
		Reason:    string(v.Reason),
		Detail:    v.Detail,
	})
	if err == nil {
		p.subs.Notify(s, payload)
	}
	return blocked
}

func (p *Pipeline) view(ctx context.Context, msg *models.Message, senderName string) *models.MessageView {
	view := &models.MessageView{Message: *msg, SenderName: senderName}
	if msg.ReplyToID == nil {
		return view
	}

	target, err := p.messages.GetByID(ctx, *msg.ReplyToID)
	if err != nil {
		// No preview rather than a wrong one; reply_to_id still links it.
		p.logger.Warn("failed to load reply target", zap.Int64("reply_to_id", *msg.ReplyToID), zap.Error(err))
		return view
	}
	view.ReplyTo = &models.ReplyPreview{ID: *msg.ReplyToID, Removed: true}
	if target != nil {
		view.ReplyTo.Removed = false
		view.ReplyTo.Content = target.Content
	}
	return view
}

// SetPinned pins or unpins a message. The actor must be able to read the
// channel: any authenticated user for global, members otherwise. The change
// goes out as a "pinned" event, not as a new message.
func (p *Pipeline) SetPinned(ctx context.Context, actor uuid.UUID, messageID int64, pinned bool) (*models.Message, error) {
	msg, err := p.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, serverError("load message", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}

	ch, err := p.channels.GetByID(ctx, msg.ChannelID)
	if err != nil {
		return nil, serverError("load channel", err)
	}
	if ch == nil {
		return nil, ErrMessageNotFound
	}
	if ch.Kind.RequiresMembership() {
		member, err := p.members.IsMember(ctx, ch.ID, actor)
		if err != nil {
			return nil, serverError("check membership", err)
		}
		if !member {
			return nil, ErrNotAMember
		}
	}

	unlock := p.locks.lock(ch.ID)
	defer unlock()

	updated, err := p.messages.SetPinned(ctx, messageID, pinned)
	if err != nil {
		return nil, serverError("update pin", err)
	}
	if updated == nil {
		return nil, ErrMessageNotFound
	}

	payload, err := protocol.Encode(protocol.TypePinned, "", protocol.PinnedPayload{
		MessageID: updated.ID,
		ChannelID: updated.ChannelID,
		Pinned:    updated.IsPinned,
		PinnedBy:  actor,
	})
	if err == nil {
		p.subs.Broadcast(updated.ChannelID, payload)
	}

	p.logger.Info("message pin updated",
		zap.Int64("message_id", updated.ID),
		zap.Bool("pinned", pinned),
		zap.String("actor", actor.String()),
	)
	return updated, nil
}

// channelLocks serializes writes per channel. Entries are never removed;
// the number of channels is small and bounded by the catalog.
type channelLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *channelLocks) lock(channelID uuid.UUID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	m, ok := l.locks[channelID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[channelID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
