package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

type fakeClient struct {
	id      string
	userID  int64
	channel domain.ChannelID

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFake(id string, userID int64, channel domain.ChannelID) *fakeClient {
	return &fakeClient{id: id, userID: userID, channel: channel}
}

func (f *fakeClient) ID() string                  { return f.id }
func (f *fakeClient) UserID() int64               { return f.userID }
func (f *fakeClient) ChannelID() domain.ChannelID { return f.channel }

func (f *fakeClient) Send(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) setFail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = true
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// types returns the type field of every frame received so far.
func (f *fakeClient) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, raw := range f.frames {
		var ev struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &ev)
		out = append(out, ev.Type)
	}
	return out
}

func (f *fakeClient) last() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(f.frames[len(f.frames)-1], &out)
	return out
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type chatEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func newTestRegistry() *Registry {
	return NewRegistry(logging.Nop())
}

func TestChannelEntryDisappearsWithLastConnection(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.PrivateChannel(3, 7)
	a := newFake("a", 3, ch)
	b := newFake("b", 7, ch)

	h.Connect(ctx, a)
	h.Connect(ctx, b)
	assert.Equal(t, 1, h.ChannelCount())
	assert.Equal(t, 2, h.Connections(ch))

	h.Disconnect(ctx, a)
	assert.Equal(t, 1, h.ChannelCount())
	h.Disconnect(ctx, b)
	assert.Equal(t, 0, h.ChannelCount())

	// idempotent
	h.Disconnect(ctx, b)
	assert.Equal(t, 0, h.ChannelCount())
	assert.Equal(t, []int64{}, h.OnlineUsers(ch))
}

func TestConnectTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.GroupChannel(1)
	a := newFake("a", 3, ch)

	h.Connect(ctx, a)
	h.Connect(ctx, a)
	assert.Equal(t, 1, h.Connections(ch))
	h.Disconnect(ctx, a)
	assert.Equal(t, 0, h.ChannelCount())
}

func TestOnlineUsersWithMultipleConnections(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.PrivateChannel(3, 7)
	phone := newFake("phone", 3, ch)
	laptop := newFake("laptop", 3, ch)
	friend := newFake("friend", 7, ch)

	h.Connect(ctx, phone)
	h.Connect(ctx, laptop)
	h.Connect(ctx, friend)
	assert.Equal(t, []int64{3, 7}, h.OnlineUsers(ch))

	friend.reset()
	assert.False(t, h.Disconnect(ctx, phone))
	assert.Equal(t, []int64{3, 7}, h.OnlineUsers(ch))
	assert.Empty(t, friend.types(), "no offline event while another connection remains")

	assert.True(t, h.Disconnect(ctx, laptop))
	assert.False(t, h.Disconnect(ctx, laptop), "already gone")
	assert.Equal(t, []int64{7}, h.OnlineUsers(ch))
	assert.Equal(t, []string{domain.EventUserOffline}, friend.types())
	assert.Equal(t, float64(3), friend.last()["user_id"])
}

func TestConnectAnnouncesPresence(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.PrivateChannel(3, 7)
	a := newFake("a", 3, ch)
	b := newFake("b", 7, ch)

	h.Connect(ctx, a)
	assert.Equal(t, []string{domain.EventOnlineUsers}, a.types())

	h.Connect(ctx, b)
	assert.Equal(t, []string{domain.EventOnlineUsers, domain.EventUserOnline}, a.types())
	assert.Equal(t, []string{domain.EventOnlineUsers}, b.types())
	assert.Equal(t, []any{float64(3), float64(7)}, b.last()["user_ids"])

	// a second connection of an online user is not announced again
	a2 := newFake("a2", 3, ch)
	h.Connect(ctx, a2)
	assert.Equal(t, []string{domain.EventOnlineUsers}, b.types())
}

func TestConnectRetractsArrivalWhenSnapshotFails(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.PrivateChannel(3, 7)
	a := newFake("a", 3, ch)
	h.Connect(ctx, a)
	a.reset()

	broken := newFake("b", 7, ch)
	broken.setFail()
	h.Connect(ctx, broken)

	assert.True(t, broken.isClosed())
	assert.Equal(t, []string{domain.EventUserOnline, domain.EventUserOffline}, a.types())
	assert.Equal(t, float64(7), a.last()["user_id"])
	assert.Equal(t, []int64{3}, h.OnlineUsers(ch))
	assert.Equal(t, 1, h.Connections(ch))
}

func TestBroadcastHonoursExclusion(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.GroupChannel(10)
	clients := []*fakeClient{newFake("a", 1, ch), newFake("b", 2, ch), newFake("c", 3, ch)}
	for _, c := range clients {
		h.Connect(ctx, c)
	}
	for _, c := range clients {
		c.reset()
	}

	h.Broadcast(ctx, ch, chatEvent{Type: "typing"}, clients[0])
	assert.Empty(t, clients[0].types())
	assert.Equal(t, []string{"typing"}, clients[1].types())
	assert.Equal(t, []string{"typing"}, clients[2].types())
}

func TestBroadcastToUnknownChannelCreatesNothing(t *testing.T) {
	h := newTestRegistry()
	h.Broadcast(context.Background(), domain.GroupChannel(99), chatEvent{Type: "message"})
	assert.Equal(t, 0, h.ChannelCount())
}

func TestBroadcastEvictsDeadConnection(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.GroupChannel(10)
	alive1 := newFake("a", 1, ch)
	dead := newFake("b", 2, ch)
	alive2 := newFake("c", 3, ch)
	for _, c := range []*fakeClient{alive1, dead, alive2} {
		h.Connect(ctx, c)
	}
	alive1.reset()
	alive2.reset()
	dead.setFail()

	h.Broadcast(ctx, ch, chatEvent{Type: "message", Content: "hi"})

	assert.Equal(t, 2, h.Connections(ch))
	assert.True(t, dead.isClosed())
	assert.Equal(t, []int64{1, 3}, h.OnlineUsers(ch))
	for _, c := range []*fakeClient{alive1, alive2} {
		assert.Equal(t, []string{"message", domain.EventUserOffline}, c.types())
	}
}

func TestEvictingEveryConnectionRetiresChannel(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.GroupChannel(5)
	a := newFake("a", 1, ch)
	b := newFake("b", 2, ch)
	h.Connect(ctx, a)
	h.Connect(ctx, b)
	a.setFail()
	b.setFail()

	h.Broadcast(ctx, ch, chatEvent{Type: "message"})
	assert.Equal(t, 0, h.ChannelCount())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}

func TestSendToUser(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	ch := domain.GroupChannel(10)
	a1 := newFake("a1", 1, ch)
	a2 := newFake("a2", 1, ch)
	b := newFake("b", 2, ch)
	for _, c := range []*fakeClient{a1, a2, b} {
		h.Connect(ctx, c)
		c.reset()
	}

	h.SendToUser(ctx, ch, 1, chatEvent{Type: "forwarded"})
	assert.Equal(t, []string{"forwarded"}, a1.types())
	assert.Equal(t, []string{"forwarded"}, a2.types())
	assert.Empty(t, b.types())
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	const workers = 32
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ch := domain.GroupChannel(int64(w % 4))
			for i := 0; i < rounds; i++ {
				c := newFake(fmt.Sprintf("%d-%d", w, i), int64(w), ch)
				h.Connect(ctx, c)
				h.Broadcast(ctx, ch, chatEvent{Type: "typing"})
				h.Disconnect(ctx, c)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 0, h.ChannelCount())
}

type fakeRelay struct {
	mu   sync.Mutex
	sent []contracts.RelayEnvelope
}

func (r *fakeRelay) Publish(_ context.Context, env contracts.RelayEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
	return nil
}

func (r *fakeRelay) Subscribe(ctx context.Context, _ domain.ChannelID, _ func(context.Context, contracts.RelayEnvelope)) error {
	<-ctx.Done()
	return nil
}

func TestRelayMirrorsBroadcasts(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	relay := &fakeRelay{}
	h.UseRelay(relay, "node-a")
	ch := domain.GroupChannel(10)
	c := newFake("a", 1, ch)
	h.Connect(ctx, c)
	c.reset()

	h.Broadcast(ctx, ch, chatEvent{Type: "message", Content: "hi"})
	require.Len(t, relay.sent, 1)
	assert.Equal(t, "node-a", relay.sent[0].Origin)
	assert.Equal(t, ch, relay.sent[0].ChannelID)

	// own echo is ignored
	h.DeliverRemote(ctx, relay.sent[0])
	assert.Equal(t, []string{"message"}, c.types())

	h.DeliverRemote(ctx, contracts.RelayEnvelope{Origin: "node-b", ChannelID: ch, Payload: []byte(`{"type":"typing"}`)})
	assert.Equal(t, []string{"message", "typing"}, c.types())

	h.DeliverRemote(ctx, contracts.RelayEnvelope{Origin: "node-b", ChannelID: ch, UserID: 2, Payload: []byte(`{"type":"forwarded"}`)})
	assert.Equal(t, []string{"message", "typing"}, c.types())
}

func TestWorkerFollowsChannelLifetime(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	started := make(chan domain.ChannelID, 1)
	stopped := make(chan domain.ChannelID, 1)
	h.RunWorker(func(ctx context.Context, id domain.ChannelID) error {
		started <- id
		<-ctx.Done()
		stopped <- id
		return nil
	})

	ch := domain.GroupChannel(3)
	c := newFake("a", 1, ch)
	h.Connect(ctx, c)
	select {
	case id := <-started:
		assert.Equal(t, ch, id)
	case <-time.After(time.Second):
		t.Fatal("worker not started")
	}

	h.Disconnect(ctx, c)
	select {
	case id := <-stopped:
		assert.Equal(t, ch, id)
	case <-time.After(time.Second):
		t.Fatal("worker not stopped")
	}
}
