package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

var (
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}
	voiceExtensions = map[string]bool{".webm": true, ".ogg": true, ".mp3": true, ".m4a": true, ".wav": true}
)

// ClassifyUpload derives the message type and media store resource type
// from a filename.
func ClassifyUpload(filename string) (domain.MessageType, string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == "" || ext == ".":
		return "", "", "", domain.Reject(domain.CodeUnsupported, domain.ErrUnsupportedMedia)
	case imageExtensions[ext]:
		return domain.MessageImage, "image", ext, nil
	case voiceExtensions[ext]:
		// audio lives under the video resource type
		return domain.MessageVoice, "video", ext, nil
	default:
		return domain.MessageFile, "raw", ext, nil
	}
}

// UploadRequest is one multipart upload after transport decoding.
type UploadRequest struct {
	User          domain.User
	Filename      string
	Data          []byte
	TempID        string
	Caption       string
	ReplyToID     *int64
	VoiceDuration *float64
}

// UploadService persists out-of-band uploads and announces them on the
// owning channel with a file_upload or file_update event.
type UploadService struct {
	log      *slog.Logger
	hub      contracts.Registry
	tx       domain.Transactor
	media    contracts.MediaStore
	friends  domain.FriendshipRepository
	members  domain.GroupMembershipRepository
	private  domain.PrivateMessageRepository
	group    domain.GroupMessageRepository
	maxBytes int64
}

func NewUploadService(
	log *slog.Logger,
	hub contracts.Registry,
	tx domain.Transactor,
	media contracts.MediaStore,
	friends domain.FriendshipRepository,
	members domain.GroupMembershipRepository,
	private domain.PrivateMessageRepository,
	group domain.GroupMessageRepository,
	maxBytes int64,
) *UploadService {
	return &UploadService{
		log:      log,
		hub:      hub,
		tx:       tx,
		media:    media,
		friends:  friends,
		members:  members,
		private:  private,
		group:    group,
		maxBytes: maxBytes,
	}
}

func (u *UploadService) UploadGroupFile(ctx context.Context, groupID int64, req UploadRequest) (*domain.GroupMessage, error) {
	ctx, span := tracer.Start(ctx, "UploadService.UploadGroupFile")
	defer span.End()

	ok, err := u.members.IsGroupMember(ctx, groupID, req.User.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Reject(domain.CodeForbidden, domain.ErrNotGroupMember)
	}
	kind, ref, err := u.store(ctx, fmt.Sprintf("groups/%d/messages", groupID), req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var msg *domain.GroupMessage
	err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
		if req.ReplyToID != nil {
			if _, err := u.group.ValidateReplyTarget(txCtx, *req.ReplyToID, groupID); err != nil {
				return replyRejection(err)
			}
		}
		var err error
		msg, err = u.group.CreateMessage(txCtx, domain.NewGroupMessage{
			GroupID:   groupID,
			SenderID:  req.User.ID,
			ReplyToID: req.ReplyToID,
			Content:   strings.TrimSpace(req.Caption),
			Type:      kind,
			Media:     mediaMeta(ref, req),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		u.discard(ctx, ref)
		return nil, err
	}

	u.hub.Broadcast(ctx, domain.GroupChannel(groupID), domain.FileEvent{
		Type:      domain.EventFileUpload,
		MessageID: msg.ID,
		FileURL:   msg.Media.FileURL,
		TempID:    req.TempID,
		Message:   domain.NewGroupMessageEvent(msg, req.TempID),
	})
	u.log.InfoContext(ctx, "upload - upload group file - create message success",
		logging.Group(groupID), logging.User(req.User.ID), logging.Message(msg.ID))
	return msg, nil
}

// ReplaceGroupFile swaps the attachment of an existing message. Only the
// message owner may do this.
func (u *UploadService) ReplaceGroupFile(ctx context.Context, messageID int64, req UploadRequest) (*domain.GroupMessage, error) {
	ctx, span := tracer.Start(ctx, "UploadService.ReplaceGroupFile")
	defer span.End()

	current, err := u.group.GetMessage(ctx, messageID)
	if err != nil {
		return nil, notFound(err)
	}
	if current.OwnerID() != req.User.ID {
		return nil, domain.Reject(domain.CodeForbidden, domain.ErrNotMessageOwner)
	}
	kind, ref, err := u.store(ctx, fmt.Sprintf("groups/%d/messages", current.GroupID), req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var (
		msg      *domain.GroupMessage
		orphaned bool
	)
	err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if msg, err = u.group.UpdateMedia(txCtx, messageID, mediaMeta(ref, req), kind); err != nil {
			return ownership(err)
		}
		orphaned, err = unreferenced(txCtx, u.group, current.Media)
		return err
	})
	if err != nil {
		span.RecordError(err)
		u.discard(ctx, ref)
		return nil, err
	}
	if orphaned {
		dropMedia(ctx, u.log, u.media, current.Media)
	}

	u.hub.Broadcast(ctx, domain.GroupChannel(msg.GroupID), domain.FileEvent{
		Type:      domain.EventFileUpdate,
		MessageID: msg.ID,
		FileURL:   msg.Media.FileURL,
		TempID:    req.TempID,
		Message:   domain.NewGroupMessageEvent(msg, req.TempID),
	})
	u.log.InfoContext(ctx, "upload - replace group file - update media success",
		logging.Group(msg.GroupID), logging.User(req.User.ID), logging.Message(msg.ID))
	return msg, nil
}

func (u *UploadService) UploadPrivateFile(ctx context.Context, friendID int64, req UploadRequest) (*domain.PrivateMessage, error) {
	ctx, span := tracer.Start(ctx, "UploadService.UploadPrivateFile")
	defer span.End()

	if friendID <= 0 || friendID == req.User.ID {
		return nil, domain.Reject(domain.CodeForbidden, domain.ErrNotFriends)
	}
	ok, err := u.friends.AreFriends(ctx, req.User.ID, friendID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Reject(domain.CodeForbidden, domain.ErrNotFriends)
	}
	channel := domain.PrivateChannel(req.User.ID, friendID)
	kind, ref, err := u.store(ctx, "private/"+strings.TrimPrefix(string(channel), "private_"), req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var msg *domain.PrivateMessage
	err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
		if req.ReplyToID != nil {
			if _, err := u.private.ValidateReplyTarget(txCtx, *req.ReplyToID, req.User.ID, friendID); err != nil {
				return replyRejection(err)
			}
		}
		var err error
		msg, err = u.private.CreateMessage(txCtx, domain.NewPrivateMessage{
			SenderID:   req.User.ID,
			ReceiverID: friendID,
			Content:    strings.TrimSpace(req.Caption),
			Type:       kind,
			ReplyToID:  req.ReplyToID,
			Media:      mediaMeta(ref, req),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		u.discard(ctx, ref)
		return nil, err
	}

	u.hub.Broadcast(ctx, channel, domain.FileEvent{
		Type:      domain.EventFileUpload,
		MessageID: msg.ID,
		FileURL:   msg.Media.FileURL,
		TempID:    req.TempID,
		Message:   domain.NewPrivateMessageEvent(msg, req.TempID),
	})
	u.log.InfoContext(ctx, "upload - upload private file - create message success",
		logging.Channel(channel), logging.User(req.User.ID), logging.Message(msg.ID))
	return msg, nil
}

// store validates the payload and hands it to the media store.
func (u *UploadService) store(ctx context.Context, folder string, req UploadRequest) (domain.MessageType, *domain.MediaRef, error) {
	if len(req.Data) == 0 {
		return "", nil, domain.Rejectf(domain.CodeEmptyContent, "uploaded file is empty")
	}
	if u.maxBytes > 0 && int64(len(req.Data)) > u.maxBytes {
		return "", nil, domain.Reject(domain.CodeUnsupported, fmt.Errorf("%w: max %d bytes", domain.ErrMediaTooLarge, u.maxBytes))
	}
	kind, resource, ext, err := ClassifyUpload(req.Filename)
	if err != nil {
		return "", nil, err
	}
	publicID := uuid.NewString()
	if resource == "raw" {
		// raw assets keep their extension in the public id
		publicID += ext
	}
	ref, err := u.media.Upload(ctx, domain.MediaUpload{
		Data:         req.Data,
		Filename:     req.Filename,
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: resource,
	})
	if err != nil {
		u.log.ErrorContext(ctx, "upload - store - media upload failed", slog.String("folder", folder), logging.Err(err))
		return "", nil, fmt.Errorf("media upload: %w", err)
	}
	return kind, ref, nil
}

// discard removes an uploaded object whose message could not be persisted.
func (u *UploadService) discard(ctx context.Context, ref *domain.MediaRef) {
	if err := u.media.Delete(ctx, ref.PublicID, ref.ResourceType); err != nil {
		u.log.WarnContext(ctx, "upload - discard - media delete failed", slog.String("public_id", ref.PublicID), logging.Err(err))
	}
}

func mediaMeta(ref *domain.MediaRef, req UploadRequest) domain.MediaMeta {
	size := ref.Bytes
	if size == 0 {
		size = int64(len(req.Data))
	}
	return domain.MediaMeta{
		FileURL:       ref.URL,
		PublicID:      ref.PublicID,
		ResourceType:  ref.ResourceType,
		VoiceDuration: req.VoiceDuration,
		FileSize:      &size,
	}
}
