package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SubscribeAndRemove(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	s := New(uuid.New(), "alice", 4)
	channel := uuid.New()

	req.ErrorIs(r.Subscribe(s.ID, channel), ErrUnknownSession)

	r.Add(s)
	req.NoError(r.Subscribe(s.ID, channel))
	req.NoError(r.Subscribe(s.ID, channel))
	req.True(r.IsSubscribed(s.ID, channel))
	req.Len(r.Subscribers(channel), 1)

	channels, ok := r.Remove(s.ID)
	req.True(ok)
	req.Equal([]uuid.UUID{channel}, channels)
	req.False(r.IsSubscribed(s.ID, channel))
	req.Empty(r.Subscribers(channel))
	req.Empty(r.SessionsOf(s.UserID))
	req.Zero(r.Count())

	_, ok = r.Remove(s.ID)
	req.False(ok)
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	s := New(uuid.New(), "bob", 4)
	channel := uuid.New()
	r.Add(s)

	req.False(r.Unsubscribe(s.ID, channel))
	req.NoError(r.Subscribe(s.ID, channel))
	req.True(r.Unsubscribe(s.ID, channel))
	req.False(r.Unsubscribe(s.ID, channel))
	req.Empty(r.Channels(s.ID))
}

func TestRegistry_MultipleSessionsPerUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	user := uuid.New()
	phone := New(user, "carol", 4)
	laptop := New(user, "carol", 4)
	r.Add(phone)
	r.Add(laptop)

	channel := uuid.New()
	req.NoError(r.Subscribe(phone.ID, channel))
	req.NoError(r.Subscribe(laptop.ID, channel))

	req.Len(r.SessionsOf(user), 2)
	req.ElementsMatch([]*Session{phone, laptop}, r.Subscribers(channel))

	r.Remove(phone.ID)
	req.Equal([]*Session{laptop}, r.Subscribers(channel))
	req.Equal([]*Session{laptop}, r.SessionsOf(user))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	channel := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := New(uuid.New(), "user", 1)
			r.Add(s)
			for j := 0; j < 50; j++ {
				_ = r.Subscribe(s.ID, channel)
				_ = r.Subscribers(channel)
				r.Unsubscribe(s.ID, channel)
			}
			_ = r.Subscribe(s.ID, channel)
			r.Remove(s.ID)
		}()
	}
	wg.Wait()

	require.Empty(t, r.Subscribers(channel))
	require.Zero(t, r.Count())
}
