package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

// ErrStoreUnavailable wraps any underlying persistence failure so callers
// can map it to a single wire code.
var ErrStoreUnavailable = errors.New("message store unavailable")

// MessageRepository is the append-only adapter over the durable message log.
type MessageRepository interface {
	// Append persists a new message atomically and returns the stored
	// record with its authoritative id and timestamp.
	Append(ctx context.Context, groupID int, senderUID int, text string) (models.Message, error)
	// FetchBacklog returns up to limit most recent messages for the group,
	// ordered oldest to newest. It has no side effects.
	FetchBacklog(ctx context.Context, groupID int, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append inserts the message and reads back the assigned id and timestamp
// in one statement, so a row either exists completely or not at all.
func (r *MessageRepo) Append(ctx context.Context, groupID int, senderUID int, text string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO group_messages (group_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, group_id, sender_id, content, created_at`,
		groupID, senderUID, text).
		Scan(&msg.ID, &msg.GroupID, &msg.SenderUID, &msg.Text, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// FetchBacklog selects the newest limit rows and re-sorts them ascending so
// clients can render top to bottom directly.
func (r *MessageRepo) FetchBacklog(ctx context.Context, groupID int, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, group_id, sender_id, content, created_at FROM (
            SELECT id, group_id, sender_id, content, created_at
            FROM group_messages WHERE group_id=$1
            ORDER BY id DESC LIMIT $2
         ) recent ORDER BY id ASC`,
		groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}
