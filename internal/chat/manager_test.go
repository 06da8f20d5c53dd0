package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/auth"
	"github.com/lalith-99/panelchat/internal/repository"
	"github.com/lalith-99/panelchat/internal/repository/memory"
)

type stalledAuth struct{ release chan struct{} }

// Authenticate ignores ctx on purpose, like a misbehaving identity backend.
func (a stalledAuth) Authenticate(context.Context, string) (auth.Identity, error) {
	<-a.release
	return auth.Identity{UserID: uuid.New(), DisplayName: "late"}, nil
}

func TestManager_ConnectRejectsUnknownToken(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	s, err := f.manager.Connect(context.Background(), "not-a-token")
	req.ErrorIs(err, ErrUnauthenticated)
	req.ErrorIs(err, auth.ErrInvalidIdentity)
	req.Nil(s)
	req.Zero(f.manager.SessionCount())
}

func TestManager_ConnectTimesOut(t *testing.T) {
	req := require.New(t)
	db := memory.New()
	release := make(chan struct{})
	defer close(release)

	m := NewManager(stalledAuth{release: release}, db.Channels(), db.Memberships(), ManagerConfig{
		AuthTimeout: 50 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	s, err := m.Connect(context.Background(), "anything")
	req.ErrorIs(err, ErrUnauthenticated)
	req.Nil(s)
	req.Less(time.Since(start), time.Second)
	req.Zero(m.SessionCount())
}

func TestManager_ConnectWithJWT(t *testing.T) {
	req := require.New(t)
	db := memory.New()
	user := db.PutUser(uuid.New(), "alice")

	m := NewManager(auth.NewJWTAuthenticator("secret", db.Users()), db.Channels(), db.Memberships(), ManagerConfig{}, zap.NewNop())

	token, err := auth.GenerateToken(user.ID, user.DisplayName, "secret", time.Minute)
	req.NoError(err)

	s, err := m.Connect(context.Background(), token)
	req.NoError(err)
	req.Equal(user.ID, s.UserID)
	req.Equal("alice", s.DisplayName)
	req.Equal(1, m.SessionCount())

	// A valid signature for a user that no longer exists is still refused.
	db.DeleteUser(user.ID)
	_, err = m.Connect(context.Background(), token)
	req.ErrorIs(err, ErrUnauthenticated)
}

func TestManager_Join(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lobby := f.room(t, "lobby")
	closed := f.room(t, "closed")
	f.db.SetChannelActive(closed.ID, false)

	alice := f.connect(t, "alice")

	tests := []struct {
		name      string
		channelID uuid.UUID
		want      error
	}{
		{"global needs no membership", f.global.ID, nil},
		{"room without membership", lobby.ID, ErrNotAMember},
		{"inactive channel", closed.ID, ErrChannelNotFound},
		{"unknown channel", uuid.New(), ErrChannelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.manager.Join(ctx, alice, tt.channelID)
			if tt.want == nil {
				require.NoError(t, err)
				require.True(t, f.manager.IsSubscribed(alice, tt.channelID))
				return
			}
			require.ErrorIs(t, err, tt.want)
			require.False(t, f.manager.IsSubscribed(alice, tt.channelID))
		})
	}

	// After joining through the directory the same call succeeds.
	req := require.New(t)
	_, err := f.directory.JoinRoom(ctx, alice.UserID, lobby.ID)
	req.NoError(err)
	req.NoError(f.manager.Join(ctx, alice, lobby.ID))
	req.True(f.manager.IsSubscribed(alice, lobby.ID))
}

// pausingMembers holds the first IsMember call after it has read the row,
// until release is closed.
type pausingMembers struct {
	repository.MembershipRepository
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingMembers) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	ok, err := p.MembershipRepository.IsMember(ctx, channelID, userID)
	p.once.Do(func() {
		close(p.paused)
		<-p.release
	})
	return ok, err
}

// Scenario: LeaveRoom lands after Join has seen the membership but before
// it subscribed. The session must not end up subscribed.
func TestManager_JoinRacingLeaveRoom(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)
	room := f.room(t, "random")

	members := &pausingMembers{
		MembershipRepository: f.db.Memberships(),
		paused:               make(chan struct{}),
		release:              make(chan struct{}),
	}
	m := NewManager(f.authn, f.db.Channels(), members, ManagerConfig{}, zap.NewNop())
	directory := NewDirectory(f.db.Channels(), f.db.Memberships(), f.db.Messages(), m, zap.NewNop())

	userID := uuid.New()
	f.db.PutUser(userID, "alice")
	f.authn.add("alice-token", auth.Identity{UserID: userID, DisplayName: "alice"})
	alice, err := m.Connect(ctx, "alice-token")
	req.NoError(err)
	defer m.Disconnect(alice)

	_, err = directory.JoinRoom(ctx, userID, room.ID)
	req.NoError(err)

	joined := make(chan error, 1)
	go func() { joined <- m.Join(ctx, alice, room.ID) }()

	<-members.paused
	req.NoError(directory.LeaveRoom(ctx, userID, room.ID))
	close(members.release)

	req.ErrorIs(<-joined, ErrNotAMember)
	req.False(m.IsSubscribed(alice, room.ID))
	req.Zero(m.Broadcast(room.ID, []byte(`{}`)))
}

func TestManager_JoinAfterDisconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.connect(t, "alice")

	f.manager.Disconnect(alice)
	req.ErrorIs(f.manager.Join(context.Background(), alice, f.global.ID), ErrSessionClosed)
}

func TestManager_LeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.connect(t, "alice")

	req.NoError(f.manager.Join(context.Background(), alice, f.global.ID))
	f.manager.Leave(alice, f.global.ID)
	f.manager.Leave(alice, f.global.ID)
	f.manager.Leave(alice, uuid.New())
	req.False(f.manager.IsSubscribed(alice, f.global.ID))
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.connect(t, "alice")
	req.NoError(f.manager.Join(context.Background(), alice, f.global.ID))

	f.manager.Disconnect(alice)
	f.manager.Disconnect(alice)

	req.True(alice.Closed())
	req.Zero(f.manager.SessionCount())
	req.False(f.manager.IsSubscribed(alice, f.global.ID))
	req.Zero(f.manager.Broadcast(f.global.ID, []byte(`{}`)))
}

func TestManager_MultipleDevices(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixture(t)

	userID := uuid.New()
	phone := f.connectAs(t, userID, "alice")
	laptop := f.connectAs(t, userID, "alice")
	req.Len(f.manager.Sessions(userID), 2)

	req.NoError(f.manager.Join(ctx, phone, f.global.ID))
	req.NoError(f.manager.Join(ctx, laptop, f.global.ID))
	req.Equal(2, f.manager.Broadcast(f.global.ID, []byte(`{}`)))

	// Each device keeps its own subscriptions.
	f.manager.Leave(phone, f.global.ID)
	req.True(f.manager.IsSubscribed(laptop, f.global.ID))
	req.Equal(1, f.manager.Broadcast(f.global.ID, []byte(`{}`)))
}

func TestManager_SlowConsumerIsDisconnected(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	f := newFixtureWithQueue(t, 1)

	slow := f.connect(t, "slow")
	fast := f.connect(t, "fast")
	req.NoError(f.manager.Join(ctx, slow, f.global.ID))
	req.NoError(f.manager.Join(ctx, fast, f.global.ID))

	req.Equal(2, f.manager.Broadcast(f.global.ID, []byte(`{"type":"message"}`)))
	drain(t, fast)

	// slow never drained its single slot.
	req.Equal(1, f.manager.Broadcast(f.global.ID, []byte(`{"type":"message"}`)))
	req.True(slow.Closed())
	req.False(f.manager.IsSubscribed(slow, f.global.ID))
	req.Equal(1, f.manager.SessionCount())
}

func TestManager_DisconnectAll(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.connect(t, "a")
	b := f.connect(t, "b")

	f.manager.DisconnectAll()
	req.True(a.Closed())
	req.True(b.Closed())
	req.Zero(f.manager.SessionCount())
}
