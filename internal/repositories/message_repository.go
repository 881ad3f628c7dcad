package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-server/internal/models"
)

// MessageRepository is the channel history store.
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListRecent(ctx context.Context, channel string, limit int) ([]models.MessageWithAuthor, error)
	UpdateContent(ctx context.Context, messageID int64, content string) error
	UpdateReactions(ctx context.Context, messageID int64, reactions models.Reactions) error
	UpdateReadBy(ctx context.Context, messageID int64, readers models.UsernameList) error
	SetPinned(ctx context.Context, messageID int64, channel, by string, pinned bool) (bool, error)
	MarkViewed(ctx context.Context, messageID int64, at time.Time) (bool, error)
	DeleteMessage(ctx context.Context, messageID int64) error
	Search(ctx context.Context, channel, query string, limit int) ([]models.Message, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `m.id, m.username, m.content, m.channel, m.created_at, m.is_edited, m.reactions, m.reply_to,
        m.read_by, m.mentions, m.links, m.forwarded_from, m.pinned, m.timer, m.viewed_at`

// InsertMessage stores a message and returns it with its id and timestamp.
func (r *MessageRepo) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages
        (username, content, channel, reactions, reply_to, read_by, mentions, links, forwarded_from, timer)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at`,
		msg.Username, msg.Content, msg.Channel, msg.Reactions, msg.ReplyTo, msg.ReadBy.Clone(),
		msg.Mentions.Clone(), msg.Links.Clone(), msg.ForwardedFrom, msg.Timer).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages m WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListRecent returns the newest messages of a channel, newest first, joined
// with the author's profile.
func (r *MessageRepo) ListRecent(ctx context.Context, channel string, limit int) ([]models.MessageWithAuthor, error) {
	query := `SELECT ` + messageColumns + `,
        COALESCE(u.avatar_url, '') AS avatar_url, COALESCE(u.bio, '') AS bio, COALESCE(u.is_admin, FALSE) AS is_admin
        FROM messages m
        LEFT JOIN users u ON u.username = m.username
        WHERE m.channel=$1
        ORDER BY m.id DESC
        LIMIT $2`
	var rows []models.MessageWithAuthor
	if err := r.db.SelectContext(ctx, &rows, query, channel, limit); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return rows, nil
}

// UpdateContent overwrites the content and sets the edited flag.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int64, content string) error {
	return r.execOne(ctx, `UPDATE messages SET content=$1, is_edited=TRUE WHERE id=$2`, content, messageID)
}

// UpdateReactions replaces the reaction map.
func (r *MessageRepo) UpdateReactions(ctx context.Context, messageID int64, reactions models.Reactions) error {
	return r.execOne(ctx, `UPDATE messages SET reactions=$1 WHERE id=$2`, reactions, messageID)
}

// UpdateReadBy replaces the read-by list.
func (r *MessageRepo) UpdateReadBy(ctx context.Context, messageID int64, readers models.UsernameList) error {
	return r.execOne(ctx, `UPDATE messages SET read_by=$1 WHERE id=$2`, readers, messageID)
}

// SetPinned inserts or removes the pin record and flag. It reports whether
// the state changed.
func (r *MessageRepo) SetPinned(ctx context.Context, messageID int64, channel, by string, pinned bool) (changed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var res sql.Result
	if pinned {
		res, err = tx.ExecContext(ctx, `INSERT INTO pins (message_id, channel, pinned_by) VALUES ($1, $2, $3)
            ON CONFLICT (message_id) DO NOTHING`, messageID, channel, by)
	} else {
		res, err = tx.ExecContext(ctx, `DELETE FROM pins WHERE message_id=$1`, messageID)
	}
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count == 0 {
		err = tx.Rollback()
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE messages SET pinned=$1 WHERE id=$2`, pinned, messageID); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkViewed sets viewed_at only when it is still unset.
func (r *MessageRepo) MarkViewed(ctx context.Context, messageID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET viewed_at=$1 WHERE id=$2 AND viewed_at IS NULL`, at, messageID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// DeleteMessage removes a message; pins cascade.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int64) error {
	return r.execOne(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
}

// Search returns messages of channel whose content contains query, newest first.
func (r *MessageRepo) Search(ctx context.Context, channel, query string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages m
        WHERE m.channel=$1 AND m.content ILIKE '%' || $2 || '%'
        ORDER BY m.id DESC
        LIMIT $3`, channel, query, limit)
	return msgs, err
}

// ListExpired returns viewed self-destruct messages whose timer has elapsed.
func (r *MessageRepo) ListExpired(ctx context.Context, now time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages m
        WHERE m.timer > 0 AND m.viewed_at IS NOT NULL
        AND m.viewed_at + make_interval(secs => m.timer) <= $1
        ORDER BY m.id ASC`, now)
	return msgs, err
}

func (r *MessageRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
