package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"whisper/internal/app/server/handlers"
	"whisper/pkg/logging"
	"whisper/pkg/middleware"
)

type Server struct {
	log             *slog.Logger
	router          chi.Router
	addr            string
	shutdownTimeout time.Duration
	auth            middleware.IdentityResolver
	wsHandler       *handlers.WSHandler
	uploadHandler   *handlers.UploadHandler
	onlineHandler   *handlers.OnlineHandler
	healthHandler   *handlers.HealthHandler
}

func NewServer(
	log *slog.Logger,
	app string,
	addr string,
	shutdownTimeout time.Duration,
	auth middleware.IdentityResolver,
	wsHandler *handlers.WSHandler,
	uploadHandler *handlers.UploadHandler,
	onlineHandler *handlers.OnlineHandler,
	healthHandler *handlers.HealthHandler,
) *Server {
	s := &Server{
		log:             log,
		router:          chi.NewRouter(),
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		auth:            auth,
		wsHandler:       wsHandler,
		uploadHandler:   uploadHandler,
		onlineHandler:   onlineHandler,
		healthHandler:   healthHandler,
	}
	s.routes(app)
	return s
}

func (s *Server) routes(app string) {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.log))
	r.Use(middleware.TracerMiddleware(app))

	r.Get("/healthz", s.healthHandler.Health)

	// websocket credentials travel in the query string or the subprotocol
	// header, so these routes authenticate after the upgrade
	r.Get("/ws/private/{friend_id}", s.wsHandler.Private)
	r.Get("/ws/group/{group_id}", s.wsHandler.Group)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.auth))
		r.Get("/channels/online", s.onlineHandler.Online)
		r.Post("/groups/{group_id}/files", s.uploadHandler.GroupFile)
		r.Put("/groups/messages/{message_id}/file", s.uploadHandler.ReplaceGroupFile)
		r.Post("/private/{friend_id}/files", s.uploadHandler.PrivateFile)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown failed", logging.Err(err))
		return err
	}
	return <-errCh
}
