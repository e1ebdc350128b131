package contracts

import (
	"context"

	"whisper/internal/core/domain"
)

// Registry tracks which live connections are subscribed to which channel and
// fans events out to them. It is the only owner of that state.
type Registry interface {
	// Connect subscribes c to its channel, announces the user if this is their
	// first connection there and sends c the online snapshot.
	Connect(ctx context.Context, c Client)
	// Disconnect is idempotent. The channel entry disappears with its last
	// connection. It reports whether c was the user's last connection there.
	Disconnect(ctx context.Context, c Client) (last bool)
	// Broadcast delivers event to every connection on id except those in
	// exclude. Connections whose send fails are evicted.
	Broadcast(ctx context.Context, id domain.ChannelID, event any, exclude ...Client)
	// SendToUser delivers event to each connection userID holds on id.
	SendToUser(ctx context.Context, id domain.ChannelID, userID int64, event any)
	OnlineUsers(id domain.ChannelID) []int64
}

// Client represents the minimal interface required for the Registry to
// communicate with an individual WebSocket connection.
type Client interface {
	ID() string
	UserID() int64
	ChannelID() domain.ChannelID
	// Send must not block; a full or closed client reports an error.
	Send(ctx context.Context, data []byte) error
	Close()
}
