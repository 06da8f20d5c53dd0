package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session binds one live connection to an authenticated user. It is never
// persisted: a reconnect gets a new Session and must re-join its channels.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	DisplayName string
	ConnectedAt time.Time

	// send is the connection's outbound queue. It is never closed, so a
	// late Enqueue racing with Close cannot panic; writers watch done instead.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func New(userID uuid.UUID, displayName string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		ID:          uuid.New(),
		UserID:      userID,
		DisplayName: displayName,
		ConnectedAt: time.Now().UTC(),
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
}

// Enqueue never blocks. It returns false when the session is closed or its
// queue is full; the caller decides whether a full queue means eviction.
func (s *Session) Enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Outbound is drained by the connection's write loop.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
