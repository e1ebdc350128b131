package contracts

import (
	"context"
	"time"

	"whisper/internal/core/domain"
)

// PresenceStore mirrors per-channel presence outside the process so other
// services can read it. Each channel is a ZSET scored by last heartbeat.
type PresenceStore interface {
	// Touch records a heartbeat for userID; entries older than ttl are stale.
	Touch(ctx context.Context, id domain.ChannelID, userID int64, ttl time.Duration) error
	Remove(ctx context.Context, id domain.ChannelID, userID int64) error
	// Online returns users that heartbeated within the last ttl.
	Online(ctx context.Context, id domain.ChannelID, ttl time.Duration) ([]int64, error)
}
