package contracts

import (
	"context"

	"whisper/internal/core/domain"
)

type AsyncWorker interface {
	// Run consumes relayed events for one channel until ctx is cancelled.
	Run(ctx context.Context, id domain.ChannelID) error
	// ProcessMessage hands one relayed envelope to the local registry.
	ProcessMessage(ctx context.Context, env RelayEnvelope)
}
