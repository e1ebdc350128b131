package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"whisper/internal/app/server/ws"
	"whisper/internal/config"
	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/internal/core/services"
	"whisper/pkg/logging"
	"whisper/pkg/middleware"
)

// ChatProtocol is one channel kind's join check and frame handler.
type ChatProtocol interface {
	Join(ctx context.Context, user domain.User, target int64) (domain.ChannelID, error)
	HandleFrame(ctx context.Context, s *services.Session, raw []byte)
}

type WSHandler struct {
	log      *slog.Logger
	hub      contracts.Registry
	auth     middleware.IdentityResolver
	private  ChatProtocol
	group    ChatProtocol
	presence contracts.PresenceStore
	cfg      config.ChatConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(
	log *slog.Logger,
	hub contracts.Registry,
	auth middleware.IdentityResolver,
	private ChatProtocol,
	group ChatProtocol,
	presence contracts.PresenceStore,
	cfg config.ChatConfig,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		log:      log,
		hub:      hub,
		auth:     auth,
		private:  private,
		group:    group,
		presence: presence,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"bearer"},
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// Private serves /ws/private/{friend_id}.
func (h *WSHandler) Private(w http.ResponseWriter, r *http.Request) {
	friendID, err := strconv.ParseInt(chi.URLParam(r, "friend_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid friend id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, h.private, friendID)
}

// Group serves /ws/group/{group_id}.
func (h *WSHandler) Group(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "group_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, h.group, groupID)
}

// serve runs one connection from upgrade to cleanup. Authentication and
// authorization failures close the socket with a distinct code before the
// registry ever sees it.
func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, proto ChatProtocol, target int64) {
	log := logging.FromContext(r.Context(), h.log)
	span := trace.SpanFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade - ws upgrade failed", logging.Err(err))
		return
	}
	// the session outlives the request context once hijacked
	ctx := context.WithoutCancel(r.Context())
	socket := ws.NewWebSocket(ctx, conn, ws.Options{
		ReadLimit:   h.cfg.MaxFrameBytes,
		ReadTimeout: h.cfg.ReadTimeout,
		WriteWait:   h.cfg.WriteWait,
	})

	user, err := h.auth.ResolveIdentity(ctx, credential(r))
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidToken) {
			log.ErrorContext(ctx, "ws handler - resolve identity - resolve identity failed", logging.Err(err))
			socket.CloseWith(ws.CloseServerFault, "internal error")
			return
		}
		log.InfoContext(ctx, "ws handler - resolve identity - authentication failed", logging.Err(err))
		socket.CloseWith(ws.CloseAuthFailed, "authentication failed")
		return
	}
	channel, err := proto.Join(ctx, *user, target)
	if err != nil {
		if _, rejected := domain.AsRejection(err); rejected {
			log.InfoContext(ctx, "ws handler - join - join rejected", logging.User(user.ID), logging.Err(err))
			socket.CloseWith(ws.CloseForbidden, "forbidden")
			return
		}
		log.ErrorContext(ctx, "ws handler - join - join failed", logging.User(user.ID), logging.Err(err))
		socket.CloseWith(ws.CloseServerFault, "internal error")
		return
	}
	span.SetAttributes(
		attribute.Int64("user.id", user.ID),
		attribute.String("chat.channel_id", string(channel)),
	)

	client := ws.NewClient(socket, *user, channel, h.cfg.SendBuffer)
	log = log.With(logging.Channel(channel), logging.User(user.ID), logging.Conn(client.ID()))
	session := &services.Session{User: *user, Channel: channel, Target: target, Client: client}

	h.hub.Connect(ctx, client)
	h.touch(ctx, client)
	log.InfoContext(ctx, "ws handler - connect - client registered")
	defer func() {
		// other connections of the same user keep the mirror entry alive
		if last := h.hub.Disconnect(ctx, client); last && h.presence != nil {
			if err := h.presence.Remove(ctx, channel, user.ID); err != nil {
				log.WarnContext(ctx, "ws handler - disconnect - presence remove failed", logging.Err(err))
			}
		}
		client.Close()
		log.InfoContext(ctx, "ws handler - disconnect - client unregistered")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.WritePump(gctx)
	})
	g.Go(func() error {
		return h.heartbeat(gctx, client, socket)
	})
	g.Go(func() error {
		defer client.Close()
		// frames are handled in order on this goroutine
		return socket.ReadLoop(func(data []byte) {
			proto.HandleFrame(ctx, session, data)
		})
	})
	if err := g.Wait(); err != nil {
		log.InfoContext(ctx, "ws handler - serve - connection dropped", logging.Err(err))
	}
}

// credential reads the token from the query string or from the
// "bearer, <token>" websocket subprotocol list.
func credential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if strings.EqualFold(p, "bearer") && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
