package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"campus-chat/internal/models"
)

const messageSelect = `SELECT m.id, m.body, m.created_at, m.owner_id, u.first_name AS owner_first_name, u.avatar AS owner_avatar, m.room_id, r.room_name
        FROM messages m
        INNER JOIN users u ON u.id = m.owner_id
        INNER JOIN rooms r ON r.id = m.room_id`

const roomSelect = `SELECT r.id, r.room_name, r.room_description, r.created_at, r.owner_id, u.first_name AS owner_first_name, u.avatar AS owner_avatar, t.topic_name,
        (SELECT COUNT(*) FROM room_participants rp INNER JOIN users pu ON pu.id = rp.user_id WHERE rp.room_id = r.id AND pu.is_active) AS participants_count
        FROM rooms r
        LEFT JOIN users u ON u.id = r.owner_id
        LEFT JOIN topics t ON t.id = r.topic_id`

type messageRow struct {
	ID             int            `db:"id"`
	Body           string         `db:"body"`
	CreatedAt      time.Time      `db:"created_at"`
	OwnerID        int            `db:"owner_id"`
	OwnerFirstName sql.NullString `db:"owner_first_name"`
	OwnerAvatar    sql.NullString `db:"owner_avatar"`
	RoomID         int            `db:"room_id"`
	RoomName       string         `db:"room_name"`
}

func (m messageRow) owner() *models.UserMinimal {
	return &models.UserMinimal{ID: m.OwnerID, FirstName: nullString(m.OwnerFirstName), Avatar: nullString(m.OwnerAvatar)}
}

func (m messageRow) minimal() models.MessageMinimal {
	return models.MessageMinimal{
		ID:        m.ID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		Owner:     m.owner(),
		Room:      &models.RoomRef{ID: m.RoomID, RoomName: m.RoomName},
	}
}

func (m messageRow) profile() models.MessageProfile {
	return models.MessageProfile{ID: m.ID, Body: m.Body, CreatedAt: m.CreatedAt, Owner: m.owner()}
}

type roomRow struct {
	ID                int            `db:"id"`
	RoomName          string         `db:"room_name"`
	RoomDescription   string         `db:"room_description"`
	CreatedAt         time.Time      `db:"created_at"`
	OwnerID           sql.NullInt64  `db:"owner_id"`
	OwnerFirstName    sql.NullString `db:"owner_first_name"`
	OwnerAvatar       sql.NullString `db:"owner_avatar"`
	TopicName         sql.NullString `db:"topic_name"`
	ParticipantsCount int            `db:"participants_count"`
}

func (r roomRow) owner() *models.UserMinimal {
	if !r.OwnerID.Valid {
		return nil
	}
	return &models.UserMinimal{ID: int(r.OwnerID.Int64), FirstName: nullString(r.OwnerFirstName), Avatar: nullString(r.OwnerAvatar)}
}

func (r roomRow) topic() *models.TopicName {
	if !r.TopicName.Valid {
		return nil
	}
	return &models.TopicName{TopicName: r.TopicName.String}
}

func (r roomRow) minimal() models.RoomMinimal {
	return models.RoomMinimal{
		ID:                r.ID,
		RoomName:          r.RoomName,
		Owner:             r.owner(),
		CreatedAt:         r.CreatedAt,
		ParticipantsCount: r.ParticipantsCount,
		TopicDetails:      r.topic(),
	}
}

func (r roomRow) profile() models.RoomProfile {
	return models.RoomProfile{
		ID:              r.ID,
		RoomName:        r.RoomName,
		RoomDescription: r.RoomDescription,
		Owner:           r.owner(),
		CreatedAt:       r.CreatedAt,
		TopicDetails:    r.topic(),
	}
}

// ViewRepo answers the read-side queries of the view builders.
type ViewRepo struct {
	db *sqlx.DB
}

// NewViewRepo constructs a ViewRepo.
func NewViewRepo(db *sqlx.DB) *ViewRepo {
	return &ViewRepo{db: db}
}

// RoomProfile loads the room header of a room detail view.
func (r *ViewRepo) RoomProfile(ctx context.Context, roomID int) (models.RoomProfile, error) {
	var row roomRow
	err := r.db.GetContext(ctx, &row, roomSelect+` WHERE r.id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoomProfile{}, ErrRoomNotFound
	}
	if err != nil {
		return models.RoomProfile{}, err
	}
	return row.profile(), nil
}

// RoomMessages returns every message of a room, oldest first.
func (r *ViewRepo) RoomMessages(ctx context.Context, roomID int) ([]models.MessageProfile, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, messageSelect+` WHERE m.room_id=$1 ORDER BY m.created_at ASC, m.id ASC`, roomID); err != nil {
		return nil, err
	}
	out := make([]models.MessageProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.profile())
	}
	return out, nil
}

// RoomParticipants returns the users that joined a room.
func (r *ViewRepo) RoomParticipants(ctx context.Context, roomID int) ([]models.UserMinimal, error) {
	users := []models.UserMinimal{}
	err := r.db.SelectContext(ctx, &users, `SELECT u.id, u.avatar, u.first_name
        FROM room_participants rp
        INNER JOIN users u ON u.id = rp.user_id
        WHERE rp.room_id=$1
        ORDER BY u.id ASC`, roomID)
	return users, err
}

// SearchRooms matches q against topic name, room name and description.
func (r *ViewRepo) SearchRooms(ctx context.Context, q string, limit int) ([]models.RoomMinimal, error) {
	var rows []roomRow
	err := r.db.SelectContext(ctx, &rows, roomSelect+`
        WHERE t.topic_name ILIKE $1 OR r.room_name ILIKE $1 OR r.room_description ILIKE $1
        ORDER BY r.created_at DESC
        LIMIT $2`, likePattern(q), limit)
	if err != nil {
		return nil, err
	}
	return roomsMinimal(rows), nil
}

// TopicMessages returns recent messages posted in rooms whose topic matches q.
func (r *ViewRepo) TopicMessages(ctx context.Context, q string, limit int) ([]models.MessageMinimal, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, messageSelect+`
        INNER JOIN topics t ON t.id = r.topic_id
        WHERE t.topic_name ILIKE $1
        ORDER BY m.created_at DESC
        LIMIT $2`, likePattern(q), limit)
	if err != nil {
		return nil, err
	}
	return messagesMinimal(rows), nil
}

// TopicsByRoomCount returns every topic ordered by how many rooms use it.
func (r *ViewRepo) TopicsByRoomCount(ctx context.Context) ([]models.Topic, error) {
	topics := []models.Topic{}
	err := r.db.SelectContext(ctx, &topics, `SELECT t.id, t.topic_name, COUNT(r.id) AS room_count
        FROM topics t
        LEFT JOIN rooms r ON r.topic_id = t.id
        GROUP BY t.id, t.topic_name
        ORDER BY room_count DESC, t.topic_name ASC`)
	return topics, err
}

// UserMinimal loads the profile header of a user.
func (r *ViewRepo) UserMinimal(ctx context.Context, userID int) (models.UserMinimal, error) {
	var user models.UserMinimal
	err := r.db.GetContext(ctx, &user, `SELECT id, avatar, first_name FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserMinimal{}, ErrUserNotFound
	}
	return user, err
}

// RoomsOwnedBy returns the newest rooms owned by a user.
func (r *ViewRepo) RoomsOwnedBy(ctx context.Context, userID int, limit int) ([]models.RoomMinimal, error) {
	var rows []roomRow
	if err := r.db.SelectContext(ctx, &rows, roomSelect+` WHERE r.owner_id=$1 ORDER BY r.created_at DESC LIMIT $2`, userID, limit); err != nil {
		return nil, err
	}
	return roomsMinimal(rows), nil
}

// MessagesBy returns the newest messages written by a user.
func (r *ViewRepo) MessagesBy(ctx context.Context, userID int, limit int) ([]models.MessageMinimal, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, messageSelect+` WHERE m.owner_id=$1 ORDER BY m.created_at DESC LIMIT $2`, userID, limit); err != nil {
		return nil, err
	}
	return messagesMinimal(rows), nil
}

func roomsMinimal(rows []roomRow) []models.RoomMinimal {
	out := make([]models.RoomMinimal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.minimal())
	}
	return out
}

func messagesMinimal(rows []messageRow) []models.MessageMinimal {
	out := make([]models.MessageMinimal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.minimal())
	}
	return out
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive "contains" pattern for ILIKE.
func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}
