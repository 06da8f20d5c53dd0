// Package session tracks live connections and which channels each one is
// subscribed to. The Registry is shared by every connection goroutine.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var ErrUnknownSession = errors.New("session not registered")

type entry struct {
	session  *Session
	channels map[uuid.UUID]struct{}
}

// Registry maps sessions to their subscriptions and channels to their
// subscribers. Both directions live under one lock, so a reader never sees
// a session in a channel group that its own subscription set lacks.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
	groups   map[uuid.UUID]map[uuid.UUID]*Session
	byUser   map[uuid.UUID]map[uuid.UUID]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*entry),
		groups:   make(map[uuid.UUID]map[uuid.UUID]*Session),
		byUser:   make(map[uuid.UUID]map[uuid.UUID]*Session),
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return
	}
	r.sessions[s.ID] = &entry{session: s, channels: make(map[uuid.UUID]struct{})}
	if r.byUser[s.UserID] == nil {
		r.byUser[s.UserID] = make(map[uuid.UUID]*Session)
	}
	r.byUser[s.UserID][s.ID] = s
}

// Remove drops the session from every subscription group and returns the
// channels it was subscribed to. ok is false if it was not registered.
func (r *Registry) Remove(sessionID uuid.UUID) (channels []uuid.UUID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	for channelID := range e.channels {
		r.dropFromGroupLocked(channelID, sessionID)
	}
	delete(r.sessions, sessionID)

	if userSessions := r.byUser[e.session.UserID]; userSessions != nil {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(r.byUser, e.session.UserID)
		}
	}
	return lo.Keys(e.channels), true
}

// Subscribe is idempotent. It fails only if the session is gone, which
// happens when a disconnect races with a join.
func (r *Registry) Subscribe(sessionID, channelID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	e.channels[channelID] = struct{}{}
	if r.groups[channelID] == nil {
		r.groups[channelID] = make(map[uuid.UUID]*Session)
	}
	r.groups[channelID][sessionID] = e.session
	return nil
}

// Unsubscribe reports whether a subscription was removed.
func (r *Registry) Unsubscribe(sessionID, channelID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, subscribed := e.channels[channelID]; !subscribed {
		return false
	}
	delete(e.channels, channelID)
	r.dropFromGroupLocked(channelID, sessionID)
	return true
}

func (r *Registry) dropFromGroupLocked(channelID, sessionID uuid.UUID) {
	group := r.groups[channelID]
	if group == nil {
		return
	}
	delete(group, sessionID)
	if len(group) == 0 {
		delete(r.groups, channelID)
	}
}

func (r *Registry) IsSubscribed(sessionID, channelID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	_, subscribed := e.channels[channelID]
	return subscribed
}

// Subscribers returns a snapshot of the sessions subscribed to a channel.
func (r *Registry) Subscribers(channelID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.groups[channelID])
}

// Channels returns a snapshot of a session's subscriptions.
func (r *Registry) Channels(sessionID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	return lo.Keys(e.channels)
}

// SessionsOf returns every live session of a user, one per device.
func (r *Registry) SessionsOf(userID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.byUser[userID])
}

func (r *Registry) Get(sessionID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
