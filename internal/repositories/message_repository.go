package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"campus-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the message store gateway used by the chat core.
type MessageRepository interface {
	CreateMessage(ctx context.Context, ownerID int, roomID int, body string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	GetMessageMinimal(ctx context.Context, messageID int) (models.MessageMinimal, error)
	DeleteMessage(ctx context.Context, messageID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and records the owner as a room participant in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, ownerID int, roomID int, body string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (owner_id, room_id, body) VALUES ($1, $2, $3) RETURNING id, owner_id, room_id, body, created_at`, ownerID, roomID, body).
		Scan(&msg.ID, &msg.OwnerID, &msg.RoomID, &msg.Body, &msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, ownerID); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, owner_id, room_id, body, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessageMinimal returns the broadcast shape of a message with its owner and room.
func (r *MessageRepo) GetMessageMinimal(ctx context.Context, messageID int) (models.MessageMinimal, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, messageSelect+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageMinimal{}, ErrMessageNotFound
	}
	if err != nil {
		return models.MessageMinimal{}, err
	}
	return row.minimal(), nil
}

// DeleteMessage removes a message permanently.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
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
