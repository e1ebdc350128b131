package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

// PrivateChatService runs the private chat protocol on a private_{a}_{b}
// channel.
type PrivateChatService struct {
	chatBase
	friends  domain.FriendshipRepository
	messages domain.PrivateMessageRepository
	media    contracts.MediaStore
}

func NewPrivateChatService(
	log *slog.Logger,
	hub contracts.Registry,
	tx domain.Transactor,
	friends domain.FriendshipRepository,
	messages domain.PrivateMessageRepository,
	media contracts.MediaStore,
) *PrivateChatService {
	return &PrivateChatService{
		chatBase: chatBase{log: log, hub: hub, tx: tx, name: "PrivateChatService"},
		friends:  friends,
		messages: messages,
		media:    media,
	}
}

// Join authorises user for the conversation with friendID.
func (p *PrivateChatService) Join(ctx context.Context, user domain.User, friendID int64) (domain.ChannelID, error) {
	if friendID <= 0 || friendID == user.ID {
		return "", domain.Reject(domain.CodeForbidden, domain.ErrNotFriends)
	}
	ok, err := p.friends.AreFriends(ctx, user.ID, friendID)
	if err != nil {
		p.log.ErrorContext(ctx, "private - join - are friends failed", logging.User(user.ID), logging.Err(err))
		return "", err
	}
	if !ok {
		return "", domain.Reject(domain.CodeForbidden, domain.ErrNotFriends)
	}
	return domain.PrivateChannel(user.ID, friendID), nil
}

func (p *PrivateChatService) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	p.handle(ctx, s, raw, p.dispatch)
}

func (p *PrivateChatService) dispatch(ctx context.Context, s *Session, frame domain.Frame) error {
	switch f := frame.(type) {
	case *domain.MessageFrame:
		return p.sendMessage(ctx, s, f)
	case *domain.ReadFrame:
		return p.markRead(ctx, s, f)
	case *domain.TypingFrame:
		p.hub.Broadcast(ctx, s.Channel, domain.NewTyping(s.User, f.IsTyping), s.Client)
		return nil
	case *domain.DeleteFrame:
		return p.deleteMessage(ctx, s, f)
	case *domain.EditFrame:
		return p.editMessage(ctx, s, f)
	case *domain.PongFrame:
		return nil
	case *domain.UnknownFrame:
		return domain.Rejectf(domain.CodeUnknownType, "unknown frame type %q", f.Type)
	default:
		return domain.Rejectf(domain.CodeUnsupported, "%s is not supported in private chats", frame.Kind())
	}
}

func (p *PrivateChatService) sendMessage(ctx context.Context, s *Session, f *domain.MessageFrame) error {
	content, err := messageContent(f)
	if err != nil {
		return err
	}
	var msg *domain.PrivateMessage
	err = p.tx.WithTx(ctx, func(txCtx context.Context) error {
		if f.ReplyToID != nil {
			if _, err := p.messages.ValidateReplyTarget(txCtx, *f.ReplyToID, s.User.ID, s.Target); err != nil {
				return replyRejection(err)
			}
		}
		var err error
		msg, err = p.messages.CreateMessage(txCtx, domain.NewPrivateMessage{
			SenderID:   s.User.ID,
			ReceiverID: s.Target,
			Content:    content,
			Type:       f.MessageType,
			ReplyToID:  f.ReplyToID,
		})
		return err
	})
	if err != nil {
		return err
	}
	p.hub.Broadcast(ctx, s.Channel, domain.NewPrivateMessageEvent(msg, f.TempID))
	p.log.InfoContext(ctx, "private - send message - create message success",
		logging.Channel(s.Channel), logging.User(s.User.ID), logging.Message(msg.ID))
	return nil
}

// conversationMessage loads id and checks it belongs to this conversation.
func (p *PrivateChatService) conversationMessage(ctx context.Context, s *Session, id int64) (*domain.PrivateMessage, error) {
	msg, err := p.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !msg.InConversation(s.User.ID, s.Target) {
		return nil, domain.Reject(domain.CodeForbidden, domain.ErrWrongConversation)
	}
	return msg, nil
}

func (p *PrivateChatService) markRead(ctx context.Context, s *Session, f *domain.ReadFrame) error {
	msg, err := p.conversationMessage(ctx, s, f.MessageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != s.User.ID {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotReceiver)
	}
	var (
		readAt time.Time
		ok     bool
	)
	err = p.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		readAt, ok, err = p.messages.MarkRead(txCtx, f.MessageID, s.User.ID)
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotReceiver)
	}
	p.hub.Broadcast(ctx, s.Channel, domain.NewReadReceipt(f.MessageID, s.User.ID, readAt))
	return nil
}

func (p *PrivateChatService) deleteMessage(ctx context.Context, s *Session, f *domain.DeleteFrame) error {
	msg, err := p.conversationMessage(ctx, s, f.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != s.User.ID {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotMessageOwner)
	}
	err = p.tx.WithTx(ctx, func(txCtx context.Context) error {
		_, err := p.messages.DeleteMessage(txCtx, f.MessageID, s.User.ID)
		return ownership(err)
	})
	if err != nil {
		return err
	}
	p.hub.Broadcast(ctx, s.Channel, domain.NewMessageDeleted(f.MessageID, s.User.ID))
	p.log.InfoContext(ctx, "private - delete message - delete message success",
		logging.Channel(s.Channel), logging.User(s.User.ID), logging.Message(f.MessageID))
	dropMedia(ctx, p.log, p.media, msg.Media)
	return nil
}

func (p *PrivateChatService) editMessage(ctx context.Context, s *Session, f *domain.EditFrame) error {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		return domain.Reject(domain.CodeEmptyContent, domain.ErrEmptyContent)
	}
	msg, err := p.conversationMessage(ctx, s, f.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != s.User.ID {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotMessageOwner)
	}
	var updatedAt time.Time
	err = p.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		updatedAt, err = p.messages.UpdateContent(txCtx, f.MessageID, content)
		return ownership(err)
	})
	if err != nil {
		return err
	}
	p.hub.Broadcast(ctx, s.Channel, domain.NewMessageUpdated(f.MessageID, content, updatedAt))
	return nil
}

// dropMedia removes a deleted message's attachment. Failures are logged
// only; the message itself is already gone.
func dropMedia(ctx context.Context, log *slog.Logger, media contracts.MediaStore, meta domain.MediaMeta) {
	if media == nil || meta.PublicID == "" {
		return
	}
	if err := media.Delete(ctx, meta.PublicID, meta.ResourceType); err != nil {
		log.WarnContext(ctx, "chat - drop media - media delete failed", slog.String("public_id", meta.PublicID), logging.Err(err))
	}
}
