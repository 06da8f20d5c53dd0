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

const messageColumns = `id, channel_id, sender_id, content, reply_to_id, is_pinned, created_at`

// viewSelect joins the sender and the reply target (plus its sender) so a
// page of history renders without follow-up queries.
const viewSelect = `
	SELECT m.id, m.channel_id, m.sender_id, m.content, m.reply_to_id, m.is_pinned, m.created_at,
		COALESCE(u.display_name, ''),
		r.id, COALESCE(ru.display_name, ''), COALESCE(r.content, '')
	FROM messages m
	LEFT JOIN users u ON u.id = m.sender_id
	LEFT JOIN messages r ON r.id = m.reply_to_id
	LEFT JOIN users ru ON ru.id = r.sender_id`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.SenderID,
		&msg.Content,
		&msg.ReplyToID,
		&msg.IsPinned,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, channelID uuid.UUID, senderID uuid.UUID, content string, replyToID *int64) (*models.Message, error) {
	// The reply target is resolved inside the INSERT: a missing id or one
	// from another channel yields NULL, in the same statement that writes
	// the row.
	//
	// Why not GetByID first and pass the checked id in?
	//   - Two round trips instead of one on every reply.
	//   - The target could be deleted between the read and the INSERT,
	//     and the foreign key would then fail the whole send.
	query := `
		INSERT INTO messages (channel_id, sender_id, content, reply_to_id, created_at)
		VALUES ($1, $2, $3, (
			SELECT r.id FROM messages r
			WHERE r.id = $4 AND r.channel_id = $1
		), now())
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, channelID, senderID, content, replyToID))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int) ([]models.MessageView, error) {
	// before=0 → newest page. before=42 → messages older than id 42.
	var query string
	var args []any

	if before > 0 {
		query = viewSelect + `
			WHERE m.channel_id = $1 AND m.id < $2
			ORDER BY m.id DESC
			LIMIT $3`
		args = []any{channelID, before, limit}
	} else {
		query = viewSelect + `
			WHERE m.channel_id = $1
			ORDER BY m.id DESC
			LIMIT $2`
		args = []any{channelID, limit}
	}

	return s.queryViews(ctx, query, args...)
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error) {
	query := `
		UPDATE messages
		SET is_pinned = $2
		WHERE id = $1
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, pinned))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set pinned: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListPinned(ctx context.Context, channelID uuid.UUID) ([]models.MessageView, error) {
	query := viewSelect + `
		WHERE m.channel_id = $1 AND m.is_pinned
		ORDER BY m.id DESC`

	return s.queryViews(ctx, query, channelID)
}

func (s *MessageStore) queryViews(ctx context.Context, query string, args ...any) ([]models.MessageView, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	views := make([]models.MessageView, 0)
	for rows.Next() {
		var (
			v            models.MessageView
			replyID      *int64
			replySender  string
			replyContent string
		)
		if err := rows.Scan(
			&v.ID,
			&v.ChannelID,
			&v.SenderID,
			&v.Content,
			&v.ReplyToID,
			&v.IsPinned,
			&v.CreatedAt,
			&v.SenderName,
			&replyID,
			&replySender,
			&replyContent,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if v.ReplyToID != nil {
			v.ReplyTo = &models.ReplyPreview{ID: *v.ReplyToID, Removed: replyID == nil}
			if replyID != nil {
				v.ReplyTo.SenderName = replySender
				v.ReplyTo.Content = replyContent
			}
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return views, nil
}
