package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

var tracer = otel.Tracer("chat-service")

// Session is the state of one joined connection. Target is the friend id
// on private channels and the group id on group channels.
type Session struct {
	User    domain.User
	Channel domain.ChannelID
	Target  int64
	Client  contracts.Client
}

type chatBase struct {
	log  *slog.Logger
	hub  contracts.Registry
	tx   domain.Transactor
	name string
}

// handle parses raw, runs dispatch and answers any failure on the
// requesting connection only. Nothing here closes the connection.
func (b *chatBase) handle(ctx context.Context, s *Session, raw []byte, dispatch func(context.Context, *Session, domain.Frame) error) {
	ctx, span := tracer.Start(ctx, b.name+".HandleFrame", trace.WithAttributes(
		attribute.String("channel_id", string(s.Channel)),
		attribute.Int64("user_id", s.User.ID),
		attribute.Int("payload_size", len(raw)),
	))
	defer span.End()

	frame, err := domain.ParseFrame(raw)
	if err == nil {
		span.SetAttributes(attribute.String("frame", frame.Kind()))
		err = dispatch(ctx, s, frame)
	}
	if err == nil {
		return
	}
	span.RecordError(err)
	if rej, ok := domain.AsRejection(err); ok {
		b.log.InfoContext(ctx, "chat - handle frame - frame rejected",
			logging.Channel(s.Channel), logging.User(s.User.ID), slog.String("code", rej.Code), logging.Err(err))
		b.sendError(ctx, s, rej.Code, rej.Reason)
		return
	}
	span.SetStatus(codes.Error, "frame handling failed")
	b.log.ErrorContext(ctx, "chat - handle frame - frame handling failed",
		logging.Channel(s.Channel), logging.User(s.User.ID), logging.Err(err))
	b.sendError(ctx, s, domain.CodeInternal, "the request could not be completed")
}

func (b *chatBase) sendError(ctx context.Context, s *Session, code, message string) {
	b.sendTo(ctx, s, domain.NewError(code, message))
}

// sendTo writes an event to the requesting connection only.
func (b *chatBase) sendTo(ctx context.Context, s *Session, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		b.log.ErrorContext(ctx, "chat - send - marshal event failed", logging.Channel(s.Channel), logging.Err(err))
		return
	}
	if err := s.Client.Send(ctx, data); err != nil {
		b.log.WarnContext(ctx, "chat - send - client send failed",
			logging.Channel(s.Channel), logging.Conn(s.Client.ID()), logging.Err(err))
	}
}

// notFound turns a store miss into a rejection and leaves faults alone.
func notFound(err error) error {
	if errors.Is(err, domain.ErrMessageNotFound) {
		return domain.Reject(domain.CodeNotFound, err)
	}
	return err
}

// replyRejection maps reply-target validation failures onto rejections.
func replyRejection(err error) error {
	if errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrWrongConversation) {
		return domain.Reject(domain.CodeInvalidReply, err)
	}
	return err
}

// ownership maps store-side ownership failures that slipped past the
// pre-checks, for example a concurrent delete.
func ownership(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotMessageOwner):
		return domain.Reject(domain.CodeForbidden, err)
	case errors.Is(err, domain.ErrMessageNotFound):
		return domain.Reject(domain.CodeNotFound, err)
	}
	return err
}

// messageContent validates the body of a message frame.
func messageContent(f *domain.MessageFrame) (string, error) {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		return "", domain.Reject(domain.CodeEmptyContent, domain.ErrEmptyContent)
	}
	return content, nil
}
