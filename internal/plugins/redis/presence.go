package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"whisper/internal/core/domain"
)

// RedisPresenceStore keeps one ZSET per channel, member = user id, score =
// unix time of the last heartbeat.
type RedisPresenceStore struct {
	rdb *redis.Client
}

func NewRedisPresenceStore(rdb *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{
		rdb: rdb,
	}
}

func presenceKey(id domain.ChannelID) string {
	return "presence:" + string(id)
}

// Touch adds/updates a user in the channel's ZSet with the current timestamp.
func (p *RedisPresenceStore) Touch(ctx context.Context, id domain.ChannelID, userID int64, ttl time.Duration) error {
	key := presenceKey(id)
	pipe := p.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: strconv.FormatInt(userID, 10),
	})
	// Set an expiration on the whole ZSet so it doesn't leak memory
	// if the channel becomes inactive.
	pipe.Expire(ctx, key, ttl*2)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresenceStore) Remove(ctx context.Context, id domain.ChannelID, userID int64) error {
	return p.rdb.ZRem(ctx, presenceKey(id), strconv.FormatInt(userID, 10)).Err()
}

// Online returns users who have checked in within the last ttl.
func (p *RedisPresenceStore) Online(ctx context.Context, id domain.ChannelID, ttl time.Duration) ([]int64, error) {
	key := presenceKey(id)
	threshold := time.Now().Add(-ttl).Unix()

	// Remove stale members first (Self-cleaning)
	if err := p.rdb.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(threshold, 10)).Err(); err != nil {
		return nil, err
	}
	members, err := p.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		userID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("presence member %q: %w", m, err)
		}
		ids = append(ids, userID)
	}
	return ids, nil
}
