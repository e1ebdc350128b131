package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"whisper/internal/app/registry"
	"whisper/internal/core/domain"
	"whisper/internal/plugins/memory"
	"whisper/pkg/logging"
)

type fakeClient struct {
	id      string
	userID  int64
	channel domain.ChannelID

	mu     sync.Mutex
	frames []map[string]any
}

func (f *fakeClient) ID() string                  { return f.id }
func (f *fakeClient) UserID() int64               { return f.userID }
func (f *fakeClient) ChannelID() domain.ChannelID { return f.channel }
func (f *fakeClient) Close()                      {}

func (f *fakeClient) Send(_ context.Context, data []byte) error {
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, ev)
	return nil
}

// events returns received frames of type kind.
func (f *fakeClient) events(kind string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, ev := range f.frames {
		if ev["type"] == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type harness struct {
	store   *memory.Store
	media   *memory.MediaStore
	hub     *registry.Registry
	private *PrivateChatService
	group   *GroupChatService
	uploads *UploadService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.Nop()
	store := memory.NewStore()
	for _, u := range []domain.User{{ID: 3, Username: "ann"}, {ID: 7, Username: "bob"}, {ID: 9, Username: "cat"}} {
		store.AddUser(u)
	}
	store.AddFriendship(3, 7)
	store.AddFriendship(9, 3)
	store.AddMember(10, 3)
	store.AddMember(10, 7)
	store.AddMember(11, 7)
	store.AddMember(11, 9)
	store.AddMember(12, 7)
	store.AddMember(13, 9)

	media := memory.NewMediaStore()
	hub := registry.NewRegistry(log)
	return &harness{
		store:   store,
		media:   media,
		hub:     hub,
		private: NewPrivateChatService(log, hub, store, store, store.Private(), media),
		group:   NewGroupChatService(log, hub, store, store, store.Group(), media),
		uploads: NewUploadService(log, hub, store, media, store, store, store.Private(), store.Group(), 1<<20),
	}
}

// joinPrivate connects user to the conversation with friend.
func (h *harness) joinPrivate(t *testing.T, user, friend int64) (*Session, *fakeClient) {
	t.Helper()
	ctx := context.Background()
	u, err := h.store.GetUserByID(ctx, user)
	require.NoError(t, err)
	ch, err := h.private.Join(ctx, *u, friend)
	require.NoError(t, err)
	c := &fakeClient{id: u.Username, userID: user, channel: ch}
	h.hub.Connect(ctx, c)
	return &Session{User: *u, Channel: ch, Target: friend, Client: c}, c
}

func (h *harness) joinGroup(t *testing.T, user, group int64) (*Session, *fakeClient) {
	t.Helper()
	ctx := context.Background()
	u, err := h.store.GetUserByID(ctx, user)
	require.NoError(t, err)
	ch, err := h.group.Join(ctx, *u, group)
	require.NoError(t, err)
	c := &fakeClient{id: u.Username, userID: user, channel: ch}
	h.hub.Connect(ctx, c)
	return &Session{User: *u, Channel: ch, Target: group, Client: c}, c
}

func id(ev map[string]any, key string) int64 {
	v, _ := ev[key].(float64)
	return int64(v)
}
