package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"whisper/internal/core/domain"
)

type GroupMessageRepo struct {
	db *sql.DB
}

func NewGroupMessageRepo(db *sql.DB) *GroupMessageRepo {
	return &GroupMessageRepo{db: db}
}

const selectGroupMessage = `
	SELECT m.id, m.group_id,
	       s.id, s.username, s.avatar_url,
	       f.id, f.username, f.avatar_url, m.forwarded_at,
	       m.parent_message_id, m.reply_to_id,
	       m.content, m.message_type,
	       m.file_url, m.public_id, m.resource_type, m.voice_duration, m.file_size,
	       m.created_at, m.updated_at
	FROM group_messages m
	JOIN users s ON s.id = m.sender_id
	LEFT JOIN users f ON f.id = m.forwarded_by_id
	WHERE m.id = $1`

func (r *GroupMessageRepo) CreateMessage(ctx context.Context, in domain.NewGroupMessage) (*domain.GroupMessage, error) {
	exec := GetExecutor(ctx, r.db)
	var id int64
	err := exec.QueryRowContext(ctx, `
		INSERT INTO group_messages (
			group_id, sender_id, forwarded_by_id, forwarded_at, parent_message_id, reply_to_id,
			content, message_type, file_url, public_id, resource_type, voice_duration, file_size
		) VALUES (
			$1, $2, $3, CASE WHEN $3::BIGINT IS NULL THEN NULL ELSE now() END, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id
	`,
		in.GroupID,
		in.SenderID,
		nullInt(in.ForwardedByID),
		nullInt(in.ParentMessageID),
		nullInt(in.ReplyToID),
		in.Content,
		string(in.Type),
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

// GetMessage loads a message with its parent and reply target expanded one
// level.
func (r *GroupMessageRepo) GetMessage(ctx context.Context, id int64) (*domain.GroupMessage, error) {
	msg, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.ParentMessageID != nil {
		if msg.Parent, err = r.related(ctx, *msg.ParentMessageID); err != nil {
			return nil, err
		}
	}
	if msg.ReplyToID != nil {
		if msg.ReplyTo, err = r.related(ctx, *msg.ReplyToID); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (r *GroupMessageRepo) ValidateReplyTarget(ctx context.Context, replyToID, groupID int64) (*domain.GroupMessage, error) {
	msg, err := r.load(ctx, replyToID)
	if err != nil {
		return nil, err
	}
	if msg.GroupID != groupID {
		return nil, domain.ErrWrongConversation
	}
	return msg, nil
}

func (r *GroupMessageRepo) RecordSeen(ctx context.Context, id, userID int64) (bool, time.Time, error) {
	exec := GetExecutor(ctx, r.db)
	var seenAt time.Time
	err := exec.QueryRowContext(ctx, `
		INSERT INTO group_message_seen (message_id, user_id) VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING seen_at
	`, id, userID).Scan(&seenAt)
	if err == nil {
		return false, seenAt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, err
	}
	err = exec.QueryRowContext(ctx, `
		SELECT seen_at FROM group_message_seen WHERE message_id = $1 AND user_id = $2
	`, id, userID).Scan(&seenAt)
	if err != nil {
		return false, time.Time{}, err
	}
	return true, seenAt, nil
}

func (r *GroupMessageRepo) UpdateContent(ctx context.Context, id int64, content string) (time.Time, error) {
	exec := GetExecutor(ctx, r.db)
	var updatedAt time.Time
	err := exec.QueryRowContext(ctx, `
		UPDATE group_messages SET content = $2, updated_at = now()
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

func (r *GroupMessageRepo) UpdateMedia(ctx context.Context, id int64, media domain.MediaMeta, kind domain.MessageType) (*domain.GroupMessage, error) {
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE group_messages
		SET message_type = $2, file_url = $3, public_id = $4, resource_type = $5,
		    voice_duration = $6, file_size = $7, updated_at = now()
		WHERE id = $1
	`,
		id,
		string(kind),
		nullString(media.FileURL),
		nullString(media.PublicID),
		nullString(media.ResourceType),
		nullFloat(media.VoiceDuration),
		nullInt(media.FileSize),
	)
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
	return r.GetMessage(ctx, id)
}

// DeleteMessage removes a message owned by requesterID, the forwarder for
// forwarded copies.
func (r *GroupMessageRepo) DeleteMessage(ctx context.Context, id, requesterID int64) (*domain.GroupMessage, error) {
	msg, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.OwnerID() != requesterID {
		return nil, domain.ErrNotMessageOwner
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `DELETE FROM group_messages WHERE id = $1`, id)
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

func (r *GroupMessageRepo) MediaReferences(ctx context.Context, publicID string) (int, error) {
	exec := GetExecutor(ctx, r.db)
	var n int
	err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_messages WHERE public_id = $1`, publicID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// related loads a parent or reply target. A target deleted in the meantime
// is simply left out.
func (r *GroupMessageRepo) related(ctx context.Context, id int64) (*domain.GroupMessage, error) {
	msg, err := r.load(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil, nil
	}
	return msg, err
}

func (r *GroupMessageRepo) load(ctx context.Context, id int64) (*domain.GroupMessage, error) {
	exec := GetExecutor(ctx, r.db)
	var (
		m            domain.GroupMessage
		senderAvatar sql.NullString
		fwdID        sql.NullInt64
		fwdName      sql.NullString
		fwdAvatar    sql.NullString
		fwdAt        sql.NullTime
		parentID     sql.NullInt64
		replyTo      sql.NullInt64
		kind         string
		media        mediaColumns
		updatedAt    sql.NullTime
	)
	err := exec.QueryRowContext(ctx, selectGroupMessage, id).Scan(
		&m.ID,
		&m.GroupID,
		&m.Sender.ID,
		&m.Sender.Username,
		&senderAvatar,
		&fwdID,
		&fwdName,
		&fwdAvatar,
		&fwdAt,
		&parentID,
		&replyTo,
		&m.Content,
		&kind,
		&media.fileURL,
		&media.publicID,
		&media.resourceType,
		&media.voiceDuration,
		&media.fileSize,
		&m.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	m.Sender.AvatarURL = senderAvatar.String
	if fwdID.Valid {
		m.ForwardedBy = &domain.User{ID: fwdID.Int64, Username: fwdName.String, AvatarURL: fwdAvatar.String}
		m.ForwardedAt = timePtr(fwdAt)
	}
	m.ParentMessageID = intPtr(parentID)
	m.ReplyToID = intPtr(replyTo)
	m.Type = domain.MessageType(kind)
	m.Media = media.meta()
	m.UpdatedAt = timePtr(updatedAt)
	return &m, nil
}
