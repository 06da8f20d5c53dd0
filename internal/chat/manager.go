package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/auth"
	"github.com/lalith-99/panelchat/internal/observ"
	"github.com/lalith-99/panelchat/internal/repository"
	"github.com/lalith-99/panelchat/internal/session"
)

// Manager owns the session registry. Every change to who is connected and
// who is subscribed where goes through Connect, Join, Leave, Evict and
// Disconnect; other components only read through IsSubscribed and deliver
// through Broadcast and Notify.
type Manager struct {
	authn       auth.Authenticator
	channels    repository.ChannelRepository
	members     repository.MembershipRepository
	registry    *session.Registry
	authTimeout time.Duration
	queueSize   int
	logger      *zap.Logger
}

type ManagerConfig struct {
	// AuthTimeout bounds identity verification in Connect.
	AuthTimeout time.Duration
	// QueueSize is each session's outbound buffer, in frames.
	QueueSize int
}

func NewManager(
	authn auth.Authenticator,
	channels repository.ChannelRepository,
	members repository.MembershipRepository,
	cfg ManagerConfig,
	logger *zap.Logger,
) *Manager {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Manager{
		authn:       authn,
		channels:    channels,
		members:     members,
		registry:    session.NewRegistry(),
		authTimeout: cfg.AuthTimeout,
		queueSize:   cfg.QueueSize,
		logger:      logger,
	}
}

// Connect verifies the token and registers a new session. It fails closed:
// an invalid token, an unknown user, a lookup error or a verification that
// outlives AuthTimeout all return ErrUnauthenticated.
func (m *Manager) Connect(ctx context.Context, token string) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()

	type result struct {
		id  auth.Identity
		err error
	}
	// Run verification apart from the deadline so an authenticator that
	// ignores ctx still cannot hold the connection open.
	done := make(chan result, 1)
	go func() {
		id, err := m.authn.Authenticate(ctx, token)
		done <- result{id, err}
	}()

	var id auth.Identity
	select {
	case r := <-done:
		if r.err != nil {
			reason := "error"
			if errors.Is(r.err, auth.ErrInvalidIdentity) {
				reason = "invalid_identity"
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			observ.ConnectRejected.WithLabelValues(reason).Inc()
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, r.err)
		}
		id = r.id
	case <-ctx.Done():
		observ.ConnectRejected.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("%w: identity verification timed out", ErrUnauthenticated)
	}

	s := session.New(id.UserID, id.DisplayName, m.queueSize)
	m.registry.Add(s)
	observ.SessionsActive.Inc()

	m.logger.Info("session connected",
		zap.String("session_id", s.ID.String()),
		zap.String("user_id", s.UserID.String()),
	)
	return s, nil
}

// Join subscribes the session to a channel. The global channel is open to
// every session; rooms and private channels need a membership row at call
// time. Join itself broadcasts nothing.
func (m *Manager) Join(ctx context.Context, s *session.Session, channelID uuid.UUID) error {
	ch, err := m.channels.GetByID(ctx, channelID)
	if err != nil {
		return serverError("load channel", err)
	}
	if ch == nil || !ch.IsActive {
		return ErrChannelNotFound
	}

	if ch.Kind.RequiresMembership() {
		member, err := m.members.IsMember(ctx, channelID, s.UserID)
		if err != nil {
			return serverError("check membership", err)
		}
		if !member {
			return ErrNotAMember
		}
	}

	if err := m.registry.Subscribe(s.ID, channelID); err != nil {
		return ErrSessionClosed
	}

	// Why check membership twice?
	//
	// LeaveRoom removes the row and then calls Evict. If that happens
	// between the first check and Subscribe, Evict finds nothing to remove
	// and the session would stay subscribed without a membership. Checking
	// again after Subscribe closes the gap: either we see the removal here,
	// or Evict runs after our Subscribe and undoes it.
	if ch.Kind.RequiresMembership() {
		member, err := m.members.IsMember(ctx, channelID, s.UserID)
		if err != nil {
			m.registry.Unsubscribe(s.ID, channelID)
			return serverError("check membership", err)
		}
		if !member {
			m.registry.Unsubscribe(s.ID, channelID)
			return ErrNotAMember
		}
	}

	m.logger.Debug("session joined channel",
		zap.String("session_id", s.ID.String()),
		zap.String("channel_id", channelID.String()),
	)
	return nil
}

// Leave is idempotent: leaving a channel that is not subscribed is a no-op.
func (m *Manager) Leave(s *session.Session, channelID uuid.UUID) {
	if m.registry.Unsubscribe(s.ID, channelID) {
		m.logger.Debug("session left channel",
			zap.String("session_id", s.ID.String()),
			zap.String("channel_id", channelID.String()),
		)
	}
}

// Evict unsubscribes every session of a user from a channel, used when the
// user's membership is removed.
func (m *Manager) Evict(userID, channelID uuid.UUID) {
	for _, s := range m.registry.SessionsOf(userID) {
		m.registry.Unsubscribe(s.ID, channelID)
	}
}

// Disconnect removes the session and all its subscriptions. Safe to call
// more than once; there is no persistence side effect.
func (m *Manager) Disconnect(s *session.Session) {
	s.Close()
	channels, ok := m.registry.Remove(s.ID)
	if !ok {
		return
	}
	observ.SessionsActive.Dec()

	m.logger.Info("session disconnected",
		zap.String("session_id", s.ID.String()),
		zap.String("user_id", s.UserID.String()),
		zap.Int("subscriptions", len(channels)),
		zap.Duration("connected_for", time.Since(s.ConnectedAt)),
	)
}

// DisconnectAll closes every session, used on shutdown.
func (m *Manager) DisconnectAll() {
	for _, s := range m.registry.All() {
		m.Disconnect(s)
	}
}

func (m *Manager) IsSubscribed(s *session.Session, channelID uuid.UUID) bool {
	return m.registry.IsSubscribed(s.ID, channelID)
}

// Broadcast queues payload on every session subscribed to the channel and
// returns how many accepted it. A session whose queue is full is too slow
// to keep up and is disconnected rather than allowed to stall the others.
func (m *Manager) Broadcast(channelID uuid.UUID, payload []byte) int {
	delivered := 0
	for _, s := range m.registry.Subscribers(channelID) {
		if m.deliver(s, payload) {
			delivered++
		}
	}
	observ.BroadcastFanout.Observe(float64(delivered))
	return delivered
}

// Notify queues payload for one session only.
func (m *Manager) Notify(s *session.Session, payload []byte) bool {
	return m.deliver(s, payload)
}

func (m *Manager) deliver(s *session.Session, payload []byte) bool {
	if s.Enqueue(payload) {
		return true
	}
	if s.Closed() {
		return false
	}
	observ.SlowConsumersDropped.Inc()
	m.logger.Warn("send queue full, disconnecting slow session",
		zap.String("session_id", s.ID.String()),
		zap.String("user_id", s.UserID.String()),
	)
	m.Disconnect(s)
	return false
}

func (m *Manager) SessionCount() int {
	return m.registry.Count()
}

// Sessions returns the live sessions of a user.
func (m *Manager) Sessions(userID uuid.UUID) []*session.Session {
	return m.registry.SessionsOf(userID)
}
