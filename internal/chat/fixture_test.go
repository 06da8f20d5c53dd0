package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/auth"
	"github.com/lalith-99/panelchat/internal/models"
	"github.com/lalith-99/panelchat/internal/moderation"
	"github.com/lalith-99/panelchat/internal/protocol"
	"github.com/lalith-99/panelchat/internal/repository/memory"
	"github.com/lalith-99/panelchat/internal/session"
)

// tokenAuth accepts tokens registered with add; everything else is rejected.
type tokenAuth struct {
	mu     sync.Mutex
	tokens map[string]auth.Identity
}

func (a *tokenAuth) add(token string, id auth.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = id
}

func (a *tokenAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.tokens[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidIdentity
	}
	return id, nil
}

type fixture struct {
	db        *memory.DB
	authn     *tokenAuth
	manager   *Manager
	pipeline  *Pipeline
	directory *Directory
	router    *Router
	global    *models.Channel
}

func newFixture(t *testing.T, bannedWords ...string) *fixture {
	t.Helper()
	return newFixtureWithQueue(t, 64, bannedWords...)
}

func newFixtureWithQueue(t *testing.T, queueSize int, bannedWords ...string) *fixture {
	t.Helper()
	req := require.New(t)

	db := memory.New()
	filter, err := moderation.NewFilter(bannedWords)
	req.NoError(err)

	logger := zap.NewNop()
	authn := &tokenAuth{tokens: make(map[string]auth.Identity)}
	manager := NewManager(authn, db.Channels(), db.Memberships(), ManagerConfig{
		AuthTimeout: time.Second,
		QueueSize:   queueSize,
	}, logger)
	pipeline := NewPipeline(manager, db.Channels(), db.Memberships(), db.Messages(), filter, nil, logger)
	directory := NewDirectory(db.Channels(), db.Memberships(), db.Messages(), manager, logger)

	global, err := directory.EnsureDefaults(context.Background(), "general", nil)
	req.NoError(err)

	return &fixture{
		db:        db,
		authn:     authn,
		manager:   manager,
		pipeline:  pipeline,
		directory: directory,
		router:    NewRouter(manager, pipeline, logger),
		global:    global,
	}
}

// connect creates a user and opens one session for them.
func (f *fixture) connect(t *testing.T, name string) *session.Session {
	t.Helper()
	return f.connectAs(t, uuid.New(), name)
}

// connectAs opens another session (device) for an existing or new user.
func (f *fixture) connectAs(t *testing.T, userID uuid.UUID, name string) *session.Session {
	t.Helper()
	f.db.PutUser(userID, name)
	token := uuid.NewString()
	f.authn.add(token, auth.Identity{UserID: userID, DisplayName: name})

	s, err := f.manager.Connect(context.Background(), token)
	require.NoError(t, err)
	t.Cleanup(func() { f.manager.Disconnect(s) })
	return s
}

func (f *fixture) room(t *testing.T, name string) *models.Channel {
	t.Helper()
	ch, err := f.db.Channels().EnsureRoom(context.Background(), name)
	require.NoError(t, err)
	return ch
}

// drain returns every frame queued for the session without blocking.
func drain(t *testing.T, s *session.Session) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case frame := <-s.Outbound():
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func ofType(envs []protocol.Envelope, t protocol.EventType) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range envs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func decodeMessage(t *testing.T, env protocol.Envelope) models.MessageView {
	t.Helper()
	var view models.MessageView
	require.NoError(t, json.Unmarshal(env.Payload, &view))
	return view
}

func frame(t *testing.T, typ protocol.EventType, ref string, payload any) []byte {
	t.Helper()
	data, err := protocol.Encode(typ, ref, payload)
	require.NoError(t, err)
	return data
}
