package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

// GroupChatService runs the group chat protocol on a group_{id} channel.
type GroupChatService struct {
	chatBase
	members  domain.GroupMembershipRepository
	messages domain.GroupMessageRepository
	media    contracts.MediaStore
}

func NewGroupChatService(
	log *slog.Logger,
	hub contracts.Registry,
	tx domain.Transactor,
	members domain.GroupMembershipRepository,
	messages domain.GroupMessageRepository,
	media contracts.MediaStore,
) *GroupChatService {
	return &GroupChatService{
		chatBase: chatBase{log: log, hub: hub, tx: tx, name: "GroupChatService"},
		members:  members,
		messages: messages,
		media:    media,
	}
}

// Join authorises user for the channel of groupID.
func (g *GroupChatService) Join(ctx context.Context, user domain.User, groupID int64) (domain.ChannelID, error) {
	if groupID <= 0 {
		return "", domain.Reject(domain.CodeForbidden, domain.ErrNotGroupMember)
	}
	if err := g.requireMember(ctx, groupID, user.ID); err != nil {
		return "", err
	}
	return domain.GroupChannel(groupID), nil
}

func (g *GroupChatService) requireMember(ctx context.Context, groupID, userID int64) error {
	ok, err := g.members.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		g.log.ErrorContext(ctx, "group - require member - is group member failed",
			logging.Group(groupID), logging.User(userID), logging.Err(err))
		return err
	}
	if !ok {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotGroupMember)
	}
	return nil
}

func (g *GroupChatService) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	g.handle(ctx, s, raw, g.dispatch)
}

func (g *GroupChatService) dispatch(ctx context.Context, s *Session, frame domain.Frame) error {
	switch f := frame.(type) {
	case *domain.MessageFrame:
		return g.sendMessage(ctx, s, f)
	case *domain.TypingFrame:
		g.hub.Broadcast(ctx, s.Channel, domain.NewTyping(s.User, f.IsTyping), s.Client)
		return nil
	case *domain.DeleteFrame:
		return g.deleteMessage(ctx, s, f)
	case *domain.EditFrame:
		return g.editMessage(ctx, s, f)
	case *domain.SeenFrame:
		return g.markSeen(ctx, s, f)
	case *domain.ForwardFrame:
		return g.forward(ctx, s, f)
	case *domain.PongFrame:
		return nil
	case *domain.UnknownFrame:
		return domain.Rejectf(domain.CodeUnknownType, "unknown frame type %q", f.Type)
	default:
		return domain.Rejectf(domain.CodeUnsupported, "%s is not supported in group chats", frame.Kind())
	}
}

func (g *GroupChatService) sendMessage(ctx context.Context, s *Session, f *domain.MessageFrame) error {
	content, err := messageContent(f)
	if err != nil {
		return err
	}
	var msg *domain.GroupMessage
	err = g.tx.WithTx(ctx, func(txCtx context.Context) error {
		if f.ReplyToID != nil {
			if _, err := g.messages.ValidateReplyTarget(txCtx, *f.ReplyToID, s.Target); err != nil {
				return replyRejection(err)
			}
		}
		var err error
		msg, err = g.messages.CreateMessage(txCtx, domain.NewGroupMessage{
			GroupID:   s.Target,
			SenderID:  s.User.ID,
			ReplyToID: f.ReplyToID,
			Content:   content,
			Type:      f.MessageType,
		})
		return err
	})
	if err != nil {
		return err
	}
	g.hub.Broadcast(ctx, s.Channel, domain.NewGroupMessageEvent(msg, f.TempID))
	g.log.InfoContext(ctx, "group - send message - create message success",
		logging.Channel(s.Channel), logging.User(s.User.ID), logging.Message(msg.ID))
	return nil
}

// groupMessage loads id and checks it was posted to this group.
func (g *GroupChatService) groupMessage(ctx context.Context, s *Session, id int64) (*domain.GroupMessage, error) {
	msg, err := g.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if msg.GroupID != s.Target {
		return nil, domain.Reject(domain.CodeForbidden, domain.ErrWrongConversation)
	}
	return msg, nil
}

func (g *GroupChatService) deleteMessage(ctx context.Context, s *Session, f *domain.DeleteFrame) error {
	msg, err := g.groupMessage(ctx, s, f.MessageID)
	if err != nil {
		return err
	}
	if msg.OwnerID() != s.User.ID {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotMessageOwner)
	}
	var orphaned bool
	err = g.tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := g.messages.DeleteMessage(txCtx, f.MessageID, s.User.ID); err != nil {
			return ownership(err)
		}
		var err error
		orphaned, err = unreferenced(txCtx, g.messages, msg.Media)
		return err
	})
	if err != nil {
		return err
	}
	g.hub.Broadcast(ctx, s.Channel, domain.NewMessageDeleted(f.MessageID, s.User.ID))
	g.log.InfoContext(ctx, "group - delete message - delete message success",
		logging.Channel(s.Channel), logging.User(s.User.ID), logging.Message(f.MessageID))
	if orphaned {
		dropMedia(ctx, g.log, g.media, msg.Media)
	}
	return nil
}

// unreferenced reports whether meta's object is no longer attached to any
// group message, source or forwarded copy.
func unreferenced(ctx context.Context, messages domain.GroupMessageRepository, meta domain.MediaMeta) (bool, error) {
	if meta.PublicID == "" {
		return false, nil
	}
	n, err := messages.MediaReferences(ctx, meta.PublicID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (g *GroupChatService) editMessage(ctx context.Context, s *Session, f *domain.EditFrame) error {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		return domain.Reject(domain.CodeEmptyContent, domain.ErrEmptyContent)
	}
	msg, err := g.groupMessage(ctx, s, f.MessageID)
	if err != nil {
		return err
	}
	if msg.OwnerID() != s.User.ID {
		return domain.Reject(domain.CodeForbidden, domain.ErrNotMessageOwner)
	}
	var updatedAt time.Time
	err = g.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		updatedAt, err = g.messages.UpdateContent(txCtx, f.MessageID, content)
		return ownership(err)
	})
	if err != nil {
		return err
	}
	g.hub.Broadcast(ctx, s.Channel, domain.NewMessageUpdated(f.MessageID, content, updatedAt))
	return nil
}

func (g *GroupChatService) markSeen(ctx context.Context, s *Session, f *domain.SeenFrame) error {
	if _, err := g.groupMessage(ctx, s, f.MessageID); err != nil {
		return err
	}
	var (
		already bool
		seenAt  time.Time
	)
	err := g.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		already, seenAt, err = g.messages.RecordSeen(txCtx, f.MessageID, s.User.ID)
		return notFound(err)
	})
	if err != nil || already {
		return err
	}
	g.hub.Broadcast(ctx, s.Channel, domain.NewMessageSeen(f.MessageID, s.User.ID, seenAt))
	return nil
}

// forward re-posts a message of this group into each target group. Targets
// are attempted independently; the requester gets a summary and the source
// group sees nothing.
func (g *GroupChatService) forward(ctx context.Context, s *Session, f *domain.ForwardFrame) error {
	src, err := g.groupMessage(ctx, s, f.MessageID)
	if err != nil {
		return err
	}
	targets := forwardTargets(f.GroupIDs, s.Target)
	if len(targets) == 0 {
		return domain.Reject(domain.CodeInvalidFrame, domain.ErrNoForwardTargets)
	}

	ack := domain.ForwardedEvent{
		Type:        domain.EventForwarded,
		MessageID:   src.ID,
		ForwardedTo: []int64{},
		Failed:      []int64{},
	}
	for _, groupID := range targets {
		msg, err := g.forwardOne(ctx, s, src, groupID)
		if err != nil {
			ack.Failed = append(ack.Failed, groupID)
			if _, rejected := domain.AsRejection(err); rejected {
				g.log.InfoContext(ctx, "group - forward - target rejected",
					logging.Group(groupID), logging.User(s.User.ID), logging.Err(err))
			} else {
				g.log.ErrorContext(ctx, "group - forward - create message failed",
					logging.Group(groupID), logging.User(s.User.ID), logging.Err(err))
			}
			continue
		}
		g.hub.Broadcast(ctx, domain.GroupChannel(groupID), domain.NewGroupMessageEvent(msg, ""))
		ack.ForwardedTo = append(ack.ForwardedTo, groupID)
	}
	g.sendTo(ctx, s, ack)
	g.log.InfoContext(ctx, "group - forward - forward finished",
		logging.Channel(s.Channel), logging.Message(src.ID),
		slog.Int("forwarded", len(ack.ForwardedTo)), slog.Int("failed", len(ack.Failed)))
	return nil
}

func (g *GroupChatService) forwardOne(ctx context.Context, s *Session, src *domain.GroupMessage, groupID int64) (*domain.GroupMessage, error) {
	if err := g.requireMember(ctx, groupID, s.User.ID); err != nil {
		return nil, err
	}
	forwarder := s.User.ID
	parent := src.ID
	var msg *domain.GroupMessage
	err := g.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		msg, err = g.messages.CreateMessage(txCtx, domain.NewGroupMessage{
			GroupID:         groupID,
			SenderID:        src.Sender.ID,
			ForwardedByID:   &forwarder,
			ParentMessageID: &parent,
			Content:         src.Content,
			Type:            src.Type,
			Media:           src.Media,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("forward to group %d: %w", groupID, err)
	}
	return msg, nil
}

// forwardTargets drops duplicates, non-positive ids and the source group,
// keeping first-seen order.
func forwardTargets(ids []int64, self int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || id == self {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
