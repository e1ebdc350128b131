package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whisper/internal/app/server/ws"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

// heartbeat pings the peer every interval, both as a control frame and as
// a ping event, and refreshes the presence mirror. It stops with the
// connection.
func (h *WSHandler) heartbeat(ctx context.Context, client *ws.RuntimeClient, socket *ws.WebSocket) error {
	if h.cfg.HeartbeatInterval <= 0 {
		select {
		case <-ctx.Done():
		case <-client.Done():
		}
		return nil
	}
	ping, err := json.Marshal(domain.NewPing())
	if err != nil {
		return err
	}
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return nil
		case <-ticker.C:
			if err := socket.Ping(); err != nil {
				return fmt.Errorf("control ping: %w", err)
			}
			if err := client.Send(ctx, ping); err != nil {
				return fmt.Errorf("ping event: %w", err)
			}
			h.touch(ctx, client)
		}
	}
}

// touch refreshes the client's presence entry. Failures are logged only.
func (h *WSHandler) touch(ctx context.Context, client *ws.RuntimeClient) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Touch(ctx, client.ChannelID(), client.UserID(), h.cfg.PresenceTTL); err != nil {
		h.log.WarnContext(ctx, "ws handler - heartbeat - presence touch failed",
			logging.Channel(client.ChannelID()), logging.User(client.UserID()), logging.Err(err))
	}
}
