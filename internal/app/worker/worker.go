package worker

import (
	"context"
	"log/slog"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

// RemoteDeliverer accepts envelopes published by other instances.
type RemoteDeliverer interface {
	DeliverRemote(ctx context.Context, env contracts.RelayEnvelope)
}

// ChannelRelayWorker feeds relayed events of one channel into the local
// registry. The registry starts one per live channel.
type ChannelRelayWorker struct {
	log   *slog.Logger
	relay contracts.Relay
	hub   RemoteDeliverer
}

func NewChannelRelayWorker(
	log *slog.Logger,
	relay contracts.Relay,
	hub RemoteDeliverer,
) contracts.AsyncWorker {
	return &ChannelRelayWorker{
		log:   log,
		relay: relay,
		hub:   hub,
	}
}

func (w *ChannelRelayWorker) Run(ctx context.Context, id domain.ChannelID) error {
	w.log.InfoContext(ctx, "worker - run - subscribe to relay", logging.Channel(id))
	if err := w.relay.Subscribe(ctx, id, w.ProcessMessage); err != nil {
		w.log.ErrorContext(ctx, "worker - run - subscribe to relay failed", logging.Channel(id), logging.Err(err))
		return err
	}
	w.log.InfoContext(ctx, "worker - run - relay subscription closed", logging.Channel(id))
	return nil
}

func (w *ChannelRelayWorker) ProcessMessage(ctx context.Context, env contracts.RelayEnvelope) {
	if env.ChannelID == "" || len(env.Payload) == 0 {
		w.log.WarnContext(ctx, "worker - process message - empty envelope", slog.String("origin", env.Origin))
		return
	}
	w.hub.DeliverRemote(ctx, env)
}
