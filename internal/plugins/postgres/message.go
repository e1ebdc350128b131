package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"whisper/internal/core/domain"
)

type PrivateMessageRepo struct {
	db *sql.DB
}

func NewPrivateMessageRepo(db *sql.DB) *PrivateMessageRepo {
	return &PrivateMessageRepo{db: db}
}

const selectPrivateMessage = `
	SELECT m.id, m.sender_id, m.receiver_id, s.username, r.username,
	       m.content, m.message_type, m.is_read, m.read_at, m.reply_to_id,
	       m.file_url, m.public_id, m.resource_type, m.voice_duration, m.file_size,
	       m.created_at, m.updated_at
	FROM private_messages m
	JOIN users s ON s.id = m.sender_id
	JOIN users r ON r.id = m.receiver_id
	WHERE m.id = $1`

func (r *PrivateMessageRepo) CreateMessage(ctx context.Context, in domain.NewPrivateMessage) (*domain.PrivateMessage, error) {
	exec := GetExecutor(ctx, r.db)
	var id int64
	err := exec.QueryRowContext(ctx, `
		INSERT INTO private_messages (
			sender_id, receiver_id, content, message_type, reply_to_id,
			file_url, public_id, resource_type, voice_duration, file_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		in.SenderID,
		in.ReceiverID,
		in.Content,
		string(in.Type),
		nullInt(in.ReplyToID),
		nullString(in.Media.FileURL),
		nullString(in.Media.PublicID),
		nullString(in.Media.ResourceType),
		nullFloat(in.Media.VoiceDuration),
		nullInt(in.Media.FileSize),
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage loads a message with its reply target expanded one level.
func (r *PrivateMessageRepo) GetMessage(ctx context.Context, id int64) (*domain.PrivateMessage, error) {
	msg, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.ReplyToID != nil {
		reply, err := r.load(ctx, *msg.ReplyToID)
		switch {
		case err == nil:
			msg.ReplyTo = reply
		case !errors.Is(err, domain.ErrMessageNotFound):
			return nil, err
		}
	}
	return msg, nil
}

func (r *PrivateMessageRepo) ValidateReplyTarget(ctx context.Context, replyToID, a, b int64) (*domain.PrivateMessage, error) {
	msg, err := r.load(ctx, replyToID)
	if err != nil {
		return nil, err
	}
	if !msg.InConversation(a, b) {
		return nil, domain.ErrWrongConversation
	}
	return msg, nil
}

func (r *PrivateMessageRepo) MarkRead(ctx context.Context, id, readerID int64) (time.Time, bool, error) {
	exec := GetExecutor(ctx, r.db)
	var readAt time.Time
	err := exec.QueryRowContext(ctx, `
		UPDATE private_messages
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND receiver_id = $2
		RETURNING read_at
	`, id, readerID).Scan(&readAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return readAt, true, nil
}

func (r *PrivateMessageRepo) UpdateContent(ctx context.Context, id int64, content string) (time.Time, error) {
	exec := GetExecutor(ctx, r.db)
	var updatedAt time.Time
	err := exec.QueryRowContext(ctx, `
		UPDATE private_messages SET content = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, content).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, domain.ErrMessageNotFound
		}
		return time.Time{}, err
	}
	return updatedAt, nil
}

// DeleteMessage removes a message sent by requesterID and returns it as it
// was before deletion.
func (r *PrivateMessageRepo) DeleteMessage(ctx context.Context, id, requesterID int64) (*domain.PrivateMessage, error) {
	msg, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, domain.ErrNotMessageOwner
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `DELETE FROM private_messages WHERE id = $1 AND sender_id = $2`, id, requesterID)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, domain.ErrMessageNotFound
	}
	return msg, nil
}

func (r *PrivateMessageRepo) load(ctx context.Context, id int64) (*domain.PrivateMessage, error) {
	exec := GetExecutor(ctx, r.db)
	var (
		m       domain.PrivateMessage
		kind    string
		readAt  sql.NullTime
		replyTo sql.NullInt64
		media   mediaColumns
	)
	err := exec.QueryRowContext(ctx, selectPrivateMessage, id).Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.SenderUsername,
		&m.ReceiverUsername,
		&m.Content,
		&kind,
		&m.IsRead,
		&readAt,
		&replyTo,
		&media.fileURL,
		&media.publicID,
		&media.resourceType,
		&media.voiceDuration,
		&media.fileSize,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	m.Type = domain.MessageType(kind)
	m.ReadAt = timePtr(readAt)
	m.ReplyToID = intPtr(replyTo)
	m.Media = media.meta()
	return &m, nil
}

// mediaColumns scans the nullable media columns shared by both message
// tables.
type mediaColumns struct {
	fileURL       sql.NullString
	publicID      sql.NullString
	resourceType  sql.NullString
	voiceDuration sql.NullFloat64
	fileSize      sql.NullInt64
}

func (c mediaColumns) meta() domain.MediaMeta {
	meta := domain.MediaMeta{
		FileURL:      c.fileURL.String,
		PublicID:     c.publicID.String,
		ResourceType: c.resourceType.String,
		FileSize:     intPtr(c.fileSize),
	}
	if c.voiceDuration.Valid {
		d := c.voiceDuration.Float64
		meta.VoiceDuration = &d
	}
	return meta
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
