package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

// RedisRelay fans registry events out over pub/sub, one topic per channel.
type RedisRelay struct {
	log    *slog.Logger
	rdb    *redis.Client
	prefix string
}

func NewRedisRelay(log *slog.Logger, rdb *redis.Client, prefix string) *RedisRelay {
	return &RedisRelay{log: log, rdb: rdb, prefix: prefix}
}

func (r *RedisRelay) topic(id domain.ChannelID) string {
	return r.prefix + string(id)
}

func (r *RedisRelay) Publish(ctx context.Context, env contracts.RelayEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.topic(env.ChannelID), raw).Err()
}

// Subscribe returns once the subscription is confirmed and ctx is done, or
// when the subscription fails.
func (r *RedisRelay) Subscribe(ctx context.Context, id domain.ChannelID, handler func(context.Context, contracts.RelayEnvelope)) error {
	pubsub := r.rdb.Subscribe(ctx, r.topic(id))
	defer pubsub.Close()
	// wait for the subscribe confirmation before reading messages
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env contracts.RelayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.WarnContext(ctx, "relay - subscribe - bad envelope", logging.Channel(id), logging.Err(err))
				continue
			}
			handler(ctx, env)
		}
	}
}
