package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

// channel is one membership set. Its mutex serialises every mutation of the
// set; closed marks an entry that has been retired from the registry map so
// late arrivals retry against a fresh entry.
type channel struct {
	mu     sync.Mutex
	closed bool
	conns  map[contracts.Client]struct{}
	online map[int64]int
	stop   context.CancelFunc
}

// Registry is the in-process connection registry. The top level mutex only
// guards lookup and creation of channel entries; operations on different
// channels never wait on each other.
type Registry struct {
	log        *slog.Logger
	mu         sync.Mutex
	channels   map[domain.ChannelID]*channel
	run_worker func(ctx context.Context, id domain.ChannelID) error
	relay      contracts.Relay
	instance   string
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		channels: make(map[domain.ChannelID]*channel),
	}
}

// RunWorker installs a per-channel worker started with the first connection
// and cancelled with the last. Must be called before serving.
func (h *Registry) RunWorker(run_worker func(ctx context.Context, id domain.ChannelID) error) {
	h.run_worker = run_worker
}

// UseRelay mirrors every Broadcast and SendToUser onto relay, tagged with
// instance so this registry can ignore its own echoes.
func (h *Registry) UseRelay(relay contracts.Relay, instance string) {
	h.relay = relay
	h.instance = instance
}

func (h *Registry) Connect(ctx context.Context, c contracts.Client) {
	id := c.ChannelID()
	userID := c.UserID()
	ch := h.acquire(id)
	defer h.release(id, ch)

	if _, dup := ch.conns[c]; dup {
		return
	}
	ch.conns[c] = struct{}{}
	ch.online[userID]++
	h.log.InfoContext(ctx, "registry - connect - client registered",
		logging.Channel(id), logging.User(userID), logging.Conn(c.ID()))

	if ch.online[userID] == 1 {
		h.fanoutLocked(ctx, id, ch, domain.UserOnline(userID), func(other contracts.Client) bool {
			return other != c
		})
	}
	snapshot := domain.NewOnlineUsers(onlineLocked(ch))
	data, err := json.Marshal(snapshot)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - connect - marshal snapshot failed", logging.Channel(id), logging.Err(err))
		return
	}
	if err := c.Send(ctx, data); err != nil {
		// the arrival was already announced, so take it back
		if last := h.evictLocked(ctx, id, ch, c, err); last {
			h.fanoutLocked(ctx, id, ch, domain.UserOffline(userID), nil)
		}
	}
}

func (h *Registry) Disconnect(ctx context.Context, c contracts.Client) bool {
	id := c.ChannelID()
	ch := h.lookup(id)
	if ch == nil {
		return false
	}
	defer h.release(id, ch)

	removed, last := removeLocked(ch, c)
	if !removed {
		return false
	}
	h.log.InfoContext(ctx, "registry - disconnect - client unregistered",
		logging.Channel(id), logging.User(c.UserID()), logging.Conn(c.ID()))
	if last {
		h.fanoutLocked(ctx, id, ch, domain.UserOffline(c.UserID()), nil)
	}
	return last
}

func (h *Registry) Broadcast(ctx context.Context, id domain.ChannelID, event any, exclude ...contracts.Client) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - broadcast - marshal event failed", logging.Channel(id), logging.Err(err))
		return
	}
	h.deliver(ctx, id, data, func(c contracts.Client) bool {
		return !slices.Contains(exclude, c)
	})
	h.publish(ctx, contracts.RelayEnvelope{ChannelID: id, Payload: data})
}

func (h *Registry) SendToUser(ctx context.Context, id domain.ChannelID, userID int64, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - send to user - marshal event failed", logging.Channel(id), logging.Err(err))
		return
	}
	h.deliver(ctx, id, data, func(c contracts.Client) bool {
		return c.UserID() == userID
	})
	h.publish(ctx, contracts.RelayEnvelope{ChannelID: id, UserID: userID, Payload: data})
}

// DeliverRemote hands an envelope published by another instance to the local
// connections of its channel. Envelopes from this instance are dropped.
func (h *Registry) DeliverRemote(ctx context.Context, env contracts.RelayEnvelope) {
	if env.Origin == h.instance {
		return
	}
	h.deliver(ctx, env.ChannelID, env.Payload, func(c contracts.Client) bool {
		return env.UserID == 0 || c.UserID() == env.UserID
	})
}

func (h *Registry) OnlineUsers(id domain.ChannelID) []int64 {
	ch := h.lookup(id)
	if ch == nil {
		return []int64{}
	}
	defer h.release(id, ch)
	return onlineLocked(ch)
}

// ChannelCount reports how many channel entries exist.
func (h *Registry) ChannelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Connections reports how many connections are registered on id.
func (h *Registry) Connections(id domain.ChannelID) int {
	ch := h.lookup(id)
	if ch == nil {
		return 0
	}
	defer h.release(id, ch)
	return len(ch.conns)
}

func (h *Registry) deliver(ctx context.Context, id domain.ChannelID, data []byte, accept func(contracts.Client) bool) {
	ch := h.lookup(id)
	if ch == nil {
		return
	}
	defer h.release(id, ch)
	h.sendLocked(ctx, id, ch, data, accept)
}

func (h *Registry) publish(ctx context.Context, env contracts.RelayEnvelope) {
	if h.relay == nil {
		return
	}
	env.Origin = h.instance
	if err := h.relay.Publish(ctx, env); err != nil {
		h.log.ErrorContext(ctx, "registry - publish - relay publish failed", logging.Channel(env.ChannelID), logging.Err(err))
	}
}

// fanoutLocked delivers a registry generated event. Presence changes caused
// by evictions along the way are delivered to whoever remains.
func (h *Registry) fanoutLocked(ctx context.Context, id domain.ChannelID, ch *channel, event domain.PresenceEvent, accept func(contracts.Client) bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - fanout - marshal event failed", logging.Channel(id), logging.Err(err))
		return
	}
	h.sendLocked(ctx, id, ch, data, accept)
}

// sendLocked writes data to every accepted connection. A connection whose
// send fails is removed and closed before sendLocked returns.
func (h *Registry) sendLocked(ctx context.Context, id domain.ChannelID, ch *channel, data []byte, accept func(contracts.Client) bool) {
	type pending struct {
		data   []byte
		accept func(contracts.Client) bool
	}
	queue := []pending{{data: data, accept: accept}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for c := range ch.conns {
			if p.accept != nil && !p.accept(c) {
				continue
			}
			err := c.Send(ctx, p.data)
			if err == nil {
				continue
			}
			if last := h.evictLocked(ctx, id, ch, c, err); last {
				offline, _ := json.Marshal(domain.UserOffline(c.UserID()))
				queue = append(queue, pending{data: offline})
			}
		}
	}
}

// evictLocked drops a dead connection and reports whether it was the user's
// last one on the channel.
func (h *Registry) evictLocked(ctx context.Context, id domain.ChannelID, ch *channel, c contracts.Client, cause error) bool {
	removed, last := removeLocked(ch, c)
	c.Close()
	if removed {
		h.log.WarnContext(ctx, "registry - send - dead client evicted",
			logging.Channel(id), logging.User(c.UserID()), logging.Conn(c.ID()), logging.Err(cause))
	}
	return last
}

// acquire returns the live entry for id, creating it if needed, with its
// mutex held.
func (h *Registry) acquire(id domain.ChannelID) *channel {
	for {
		h.mu.Lock()
		ch, ok := h.channels[id]
		if !ok {
			ch = &channel{
				conns:  make(map[contracts.Client]struct{}),
				online: make(map[int64]int),
			}
			if h.run_worker != nil {
				ctx, cancel := context.WithCancel(context.Background())
				ch.stop = cancel
				go func() {
					if err := h.run_worker(ctx, id); err != nil && ctx.Err() == nil {
						h.log.Error("registry - run worker - worker stopped", logging.Channel(id), logging.Err(err))
					}
				}()
			}
			h.channels[id] = ch
		}
		h.mu.Unlock()

		ch.mu.Lock()
		if !ch.closed {
			return ch
		}
		ch.mu.Unlock()
	}
}

// lookup returns the live entry for id with its mutex held, or nil.
func (h *Registry) lookup(id domain.ChannelID) *channel {
	for {
		h.mu.Lock()
		ch, ok := h.channels[id]
		h.mu.Unlock()
		if !ok {
			return nil
		}
		ch.mu.Lock()
		if !ch.closed {
			return ch
		}
		ch.mu.Unlock()
	}
}

// release retires the entry if it became empty, then unlocks it. Retirement
// happens inside the same critical section as the removal that emptied it.
func (h *Registry) release(id domain.ChannelID, ch *channel) {
	if len(ch.conns) == 0 && !ch.closed {
		ch.closed = true
		h.mu.Lock()
		if h.channels[id] == ch {
			delete(h.channels, id)
		}
		h.mu.Unlock()
		if ch.stop != nil {
			ch.stop()
		}
	}
	ch.mu.Unlock()
}

func removeLocked(ch *channel, c contracts.Client) (removed, last bool) {
	if _, ok := ch.conns[c]; !ok {
		return false, false
	}
	delete(ch.conns, c)
	userID := c.UserID()
	ch.online[userID]--
	if ch.online[userID] <= 0 {
		delete(ch.online, userID)
		return true, true
	}
	return true, false
}

func onlineLocked(ch *channel) []int64 {
	ids := make([]int64, 0, len(ch.online))
	for id := range ch.online {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
