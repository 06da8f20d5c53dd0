// Package memory is an in-process storage driver. It backs STORAGE_DRIVER=memory
// for local development and serves as the store in service tests. It mirrors the
// Postgres driver's semantics, including the single-global-channel rule and
// write-time reply resolution.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelchat/internal/models"
)

var (
	ErrGlobalExists = errors.New("global channel already exists")
	ErrRoomExists   = errors.New("room name already taken")
	ErrInvalidKind  = errors.New("invalid channel kind")
)

type memberKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

// DB holds every table behind one lock so cross-table reads
// (channels joined with memberships) see a consistent snapshot.
type DB struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]models.User
	channels map[uuid.UUID]models.Channel
	members  map[memberKey]models.ChannelMember
	messages map[int64]models.Message
	nextID   int64
	now      func() time.Time

	// failWrites, when set, makes message writes fail. Tests use it to
	// exercise the persistence-failure path.
	failWrites error
}

func New() *DB {
	return &DB{
		users:    make(map[uuid.UUID]models.User),
		channels: make(map[uuid.UUID]models.Channel),
		members:  make(map[memberKey]models.ChannelMember),
		messages: make(map[int64]models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (db *DB) Channels() *ChannelStore       { return &ChannelStore{db: db} }
func (db *DB) Memberships() *MembershipStore { return &MembershipStore{db: db} }
func (db *DB) Messages() *MessageStore       { return &MessageStore{db: db} }
func (db *DB) Users() *UserStore             { return &UserStore{db: db} }

// PutUser upserts a user. The chat core never creates users; this stands in
// for the identity service.
func (db *DB) PutUser(id uuid.UUID, displayName string) models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := models.User{ID: id, DisplayName: displayName, CreatedAt: db.now()}
	db.users[id] = u
	return u
}

// DeleteUser removes a user and nulls out sender_id on their messages,
// matching ON DELETE SET NULL.
func (db *DB) DeleteUser(id uuid.UUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.users, id)
	for k := range db.members {
		if k.userID == id {
			delete(db.members, k)
		}
	}
	for msgID, m := range db.messages {
		if m.SenderID != nil && *m.SenderID == id {
			m.SenderID = nil
			db.messages[msgID] = m
		}
	}
}

// DeleteMessage hard-deletes a message, leaving replies pointing at it.
func (db *DB) DeleteMessage(id int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.messages, id)
}

// SetChannelActive flips a channel's active flag.
func (db *DB) SetChannelActive(id uuid.UUID, active bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if ch, ok := db.channels[id]; ok {
		ch.IsActive = active
		db.channels[id] = ch
	}
}

// FailWrites makes subsequent message writes return err; nil restores them.
func (db *DB) FailWrites(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failWrites = err
}

// CountMessages returns how many messages are stored for a channel.
func (db *DB) CountMessages(channelID uuid.UUID) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for _, m := range db.messages {
		if m.ChannelID == channelID {
			n++
		}
	}
	return n
}

// CountMembers returns how many membership rows exist for (channel, user).
func (db *DB) CountMembers(channelID, userID uuid.UUID) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if _, ok := db.members[memberKey{channelID, userID}]; ok {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------
// Channels
// ---------------------------------------------------------------

type ChannelStore struct{ db *DB }

func (s *ChannelStore) Create(_ context.Context, kind models.ChannelKind, name string) (*models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.createLocked(kind, name)
}

func (db *DB) createLocked(kind models.ChannelKind, name string) (*models.Channel, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	for _, ch := range db.channels {
		if kind == models.ChannelKindGlobal && ch.Kind == models.ChannelKindGlobal {
			return nil, ErrGlobalExists
		}
		if kind == models.ChannelKindRoom && ch.Kind == models.ChannelKindRoom && ch.Name == name {
			return nil, ErrRoomExists
		}
	}
	ch := models.Channel{
		ID:        uuid.New(),
		Kind:      kind,
		Name:      name,
		IsActive:  true,
		CreatedAt: db.now(),
	}
	db.channels[ch.ID] = ch
	return &ch, nil
}

func (s *ChannelStore) EnsureGlobal(_ context.Context, name string) (*models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, ch := range s.db.channels {
		if ch.Kind == models.ChannelKindGlobal {
			return &ch, nil
		}
	}
	return s.db.createLocked(models.ChannelKindGlobal, name)
}

func (s *ChannelStore) EnsureRoom(_ context.Context, name string) (*models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, ch := range s.db.channels {
		if ch.Kind == models.ChannelKindRoom && ch.Name == name {
			return &ch, nil
		}
	}
	return s.db.createLocked(models.ChannelKindRoom, name)
}

func (s *ChannelStore) GetByID(_ context.Context, channelID uuid.UUID) (*models.Channel, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	ch, ok := s.db.channels[channelID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *ChannelStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Channel, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	channels := make([]models.Channel, 0)
	for _, ch := range s.db.channels {
		if !ch.IsActive {
			continue
		}
		_, member := s.db.members[memberKey{ch.ID, userID}]
		if ch.Kind == models.ChannelKindGlobal || member {
			channels = append(channels, ch)
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		gi, gj := channels[i].Kind == models.ChannelKindGlobal, channels[j].Kind == models.ChannelKindGlobal
		if gi != gj {
			return gi
		}
		return channels[i].Name < channels[j].Name
	})
	return channels, nil
}

func (s *ChannelStore) ListRooms(_ context.Context, userID uuid.UUID) ([]models.RoomListing, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	rooms := make([]models.RoomListing, 0)
	for _, ch := range s.db.channels {
		if ch.Kind != models.ChannelKindRoom || !ch.IsActive {
			continue
		}
		_, joined := s.db.members[memberKey{ch.ID, userID}]
		rooms = append(rooms, models.RoomListing{Channel: ch, Joined: joined})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

// ---------------------------------------------------------------
// Memberships
// ---------------------------------------------------------------

type MembershipStore struct{ db *DB }

func (s *MembershipStore) AddMember(_ context.Context, channelID uuid.UUID, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := memberKey{channelID, userID}
	if _, ok := s.db.members[key]; ok {
		return false, nil
	}
	s.db.members[key] = models.ChannelMember{ChannelID: channelID, UserID: userID, JoinedAt: s.db.now()}
	return true, nil
}

func (s *MembershipStore) RemoveMember(_ context.Context, channelID uuid.UUID, userID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.members, memberKey{channelID, userID})
	return nil
}

func (s *MembershipStore) ListMembers(_ context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	members := make([]models.ChannelMember, 0)
	for k, m := range s.db.members {
		if k.channelID == channelID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

func (s *MembershipStore) IsMember(_ context.Context, channelID uuid.UUID, userID uuid.UUID) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	_, ok := s.db.members[memberKey{channelID, userID}]
	return ok, nil
}

// ---------------------------------------------------------------
// Messages
// ---------------------------------------------------------------

type MessageStore struct{ db *DB }

func (s *MessageStore) Create(_ context.Context, channelID uuid.UUID, senderID uuid.UUID, content string, replyToID *int64) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.db.failWrites != nil {
		return nil, s.db.failWrites
	}

	var reply *int64
	if replyToID != nil {
		if target, ok := s.db.messages[*replyToID]; ok && target.ChannelID == channelID {
			id := *replyToID
			reply = &id
		}
	}

	s.db.nextID++
	sender := senderID
	msg := models.Message{
		ID:        s.db.nextID,
		ChannelID: channelID,
		SenderID:  &sender,
		Content:   content,
		ReplyToID: reply,
		CreatedAt: s.db.now(),
	}
	s.db.messages[msg.ID] = msg
	return &msg, nil
}

func (s *MessageStore) GetByID(_ context.Context, messageID int64) (*models.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	msg, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s *MessageStore) ListByChannel(_ context.Context, channelID uuid.UUID, before int64, limit int) ([]models.MessageView, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.viewsLocked(func(m models.Message) bool {
		return m.ChannelID == channelID && (before <= 0 || m.ID < before)
	}, limit), nil
}

func (s *MessageStore) SetPinned(_ context.Context, messageID int64, pinned bool) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failWrites != nil {
		return nil, s.db.failWrites
	}
	msg, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	msg.IsPinned = pinned
	s.db.messages[messageID] = msg
	return &msg, nil
}

func (s *MessageStore) ListPinned(_ context.Context, channelID uuid.UUID) ([]models.MessageView, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.viewsLocked(func(m models.Message) bool {
		return m.ChannelID == channelID && m.IsPinned
	}, 0), nil
}

// viewsLocked returns matching messages newest first; limit <= 0 means all.
func (db *DB) viewsLocked(match func(models.Message) bool, limit int) []models.MessageView {
	ids := make([]int64, 0)
	for id, m := range db.messages {
		if match(m) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	views := make([]models.MessageView, 0, len(ids))
	for _, id := range ids {
		m := db.messages[id]
		v := models.MessageView{Message: m, SenderName: db.displayNameLocked(m.SenderID)}
		if m.ReplyToID != nil {
			v.ReplyTo = &models.ReplyPreview{ID: *m.ReplyToID, Removed: true}
			if target, ok := db.messages[*m.ReplyToID]; ok {
				v.ReplyTo.Removed = false
				v.ReplyTo.Content = target.Content
				v.ReplyTo.SenderName = db.displayNameLocked(target.SenderID)
			}
		}
		views = append(views, v)
	}
	return views
}

func (db *DB) displayNameLocked(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return db.users[*id].DisplayName
}

// ---------------------------------------------------------------
// Users
// ---------------------------------------------------------------

type UserStore struct{ db *DB }

func (s *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
