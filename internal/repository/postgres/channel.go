package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelchat/internal/models"
)

const channelColumns = `c.id, c.kind, c.name, c.is_active, c.created_at`

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func scanChannel(row pgx.Row, extra ...any) (*models.Channel, error) {
	var (
		ch   models.Channel
		kind string
	)
	dest := append([]any{&ch.ID, &kind, &ch.Name, &ch.IsActive, &ch.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	ch.Kind = models.ChannelKind(kind)
	return &ch, nil
}

func (s *ChannelStore) Create(ctx context.Context, kind models.ChannelKind, name string) (*models.Channel, error) {
	query := `
		INSERT INTO channels AS c (kind, name)
		VALUES ($1, $2)
		RETURNING ` + channelColumns

	ch, err := scanChannel(s.pool.QueryRow(ctx, query, string(kind), name))
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) EnsureGlobal(ctx context.Context, name string) (*models.Channel, error) {
	// The partial unique index on kind='global' turns a concurrent second
	// insert into a no-op, so every caller ends up reading the same row.
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO channels (kind, name)
		VALUES ('global', $1)
		ON CONFLICT DO NOTHING`, name); err != nil {
		return nil, fmt.Errorf("insert global channel: %w", err)
	}

	ch, err := scanChannel(s.pool.QueryRow(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.kind = 'global'`))
	if err != nil {
		return nil, fmt.Errorf("get global channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) EnsureRoom(ctx context.Context, name string) (*models.Channel, error) {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO channels (kind, name)
		VALUES ('room', $1)
		ON CONFLICT DO NOTHING`, name); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	ch, err := scanChannel(s.pool.QueryRow(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.kind = 'room' AND c.name = $1`, name))
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels c
		WHERE c.id = $1`

	ch, err := scanChannel(s.pool.QueryRow(ctx, query, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error) {
	// Anonymous viewers pass uuid.Nil, which never has a membership row,
	// so they only get the global channel.
	query := `
		SELECT ` + channelColumns + `
		FROM channels c
		WHERE c.is_active
		  AND (c.kind = 'global' OR EXISTS (
				SELECT 1 FROM channel_members m
				WHERE m.channel_id = c.id AND m.user_id = $1
		  ))
		ORDER BY (c.kind = 'global') DESC, c.name`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}

func (s *ChannelStore) ListRooms(ctx context.Context, userID uuid.UUID) ([]models.RoomListing, error) {
	query := `
		SELECT ` + channelColumns + `,
			EXISTS (
				SELECT 1 FROM channel_members m
				WHERE m.channel_id = c.id AND m.user_id = $1
			) AS joined
		FROM channels c
		WHERE c.kind = 'room' AND c.is_active
		ORDER BY c.name`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]models.RoomListing, 0)
	for rows.Next() {
		var joined bool
		ch, err := scanChannel(rows, &joined)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, models.RoomListing{Channel: *ch, Joined: joined})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, nil
}
