package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"whisper/internal/core/domain"
)

// PresenceStore is the single-process presence mirror used when no redis is
// configured.
type PresenceStore struct {
	mu       sync.Mutex
	channels map[domain.ChannelID]map[int64]time.Time
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{channels: make(map[domain.ChannelID]map[int64]time.Time)}
}

func (p *PresenceStore) Touch(_ context.Context, id domain.ChannelID, userID int64, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channels[id] == nil {
		p.channels[id] = make(map[int64]time.Time)
	}
	p.channels[id][userID] = time.Now()
	return nil
}

func (p *PresenceStore) Remove(_ context.Context, id domain.ChannelID, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels[id], userID)
	if len(p.channels[id]) == 0 {
		delete(p.channels, id)
	}
	return nil
}

func (p *PresenceStore) Online(_ context.Context, id domain.ChannelID, ttl time.Duration) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	ids := make([]int64, 0, len(p.channels[id]))
	for userID, at := range p.channels[id] {
		if at.Before(cutoff) {
			delete(p.channels[id], userID)
			continue
		}
		ids = append(ids, userID)
	}
	slices.Sort(ids)
	return ids, nil
}
