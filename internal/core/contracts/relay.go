package contracts

import (
	"context"
	"encoding/json"

	"whisper/internal/core/domain"
)

// RelayEnvelope carries one already encoded event between instances.
// UserID is set when the event targets a single user's connections.
type RelayEnvelope struct {
	Origin    string           `json:"origin"`
	ChannelID domain.ChannelID `json:"channel_id"`
	UserID    int64            `json:"user_id,omitempty"`
	Payload   json.RawMessage  `json:"payload"`
}

// Relay fans events out to registries running in other processes.
type Relay interface {
	Publish(ctx context.Context, env RelayEnvelope) error
	// Subscribe blocks, invoking handler for each envelope on id, until ctx is done.
	Subscribe(ctx context.Context, id domain.ChannelID, handler func(context.Context, RelayEnvelope)) error
}
