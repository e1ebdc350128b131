package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper/internal/core/domain"
)

func TestGroupJoinRequiresMembership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch, err := h.group.Join(ctx, domain.User{ID: 9}, 11)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelID("group_11"), ch)

	_, err = h.group.Join(ctx, domain.User{ID: 9}, 10)
	rej, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeForbidden, rej.Code)
}

func TestGroupMessageUsesActionDiscriminator(t *testing.T) {
	h := newHarness(t)
	ann, annConn := h.joinGroup(t, 3, 10)
	_, bobConn := h.joinGroup(t, 7, 10)

	h.group.HandleFrame(context.Background(), ann, []byte(`{"action":"message","content":"hello group","temp_id":"g-1"}`))

	for _, c := range []*fakeClient{annConn, bobConn} {
		msgs := c.events(domain.EventMessage)
		require.Len(t, msgs, 1, c.id)
		assert.Equal(t, "hello group", msgs[0]["content"])
		assert.Equal(t, float64(10), msgs[0]["group_id"])
		assert.Equal(t, "ann", msgs[0]["sender"].(map[string]any)["username"])
		assert.NotContains(t, msgs[0], "forwarded_by")
	}
}

func TestGroupForwardReachesTargetsOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ann, annConn := h.joinGroup(t, 3, 10)
	bob, bobConn := h.joinGroup(t, 7, 10)
	_, catIn11 := h.joinGroup(t, 9, 11)
	_, bobIn12 := h.joinGroup(t, 7, 12)

	h.group.HandleFrame(ctx, ann, []byte(`{"action":"message","content":"pass it on"}`))
	srcID := id(annConn.events(domain.EventMessage)[0], "id")
	annConn.reset()
	bobConn.reset()

	// 13 does not include bob, 10 is the source group
	h.group.HandleFrame(ctx, bob, []byte(fmt.Sprintf(
		`{"action":"forward_to_groups","message_id":%d,"group_ids":[11,12,12,10,13]}`, srcID)))

	for _, c := range []*fakeClient{catIn11, bobIn12} {
		msgs := c.events(domain.EventMessage)
		require.Len(t, msgs, 1, c.id)
		ev := msgs[0]
		assert.Equal(t, "pass it on", ev["content"])
		assert.Equal(t, float64(3), ev["sender"].(map[string]any)["id"])
		assert.Equal(t, float64(7), ev["forwarded_by"].(map[string]any)["id"])
		assert.Equal(t, float64(srcID), ev["parent_message"].(map[string]any)["id"])
		assert.NotEmpty(t, ev["forwarded_at"])
		assert.NotContains(t, ev, "temp_id")
	}

	assert.Empty(t, annConn.frames)
	assert.Empty(t, bobConn.events(domain.EventMessage))
	acks := bobConn.events(domain.EventForwarded)
	require.Len(t, acks, 1)
	assert.Equal(t, []any{float64(11), float64(12)}, acks[0]["forwarded_to"])
	assert.Equal(t, []any{float64(13)}, acks[0]["failed"])

	assert.Len(t, h.store.Group().InGroup(11), 1)
	assert.Len(t, h.store.Group().InGroup(12), 1)
	assert.Empty(t, h.store.Group().InGroup(13))
}

func TestGroupForwardWithoutTargets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ann, annConn := h.joinGroup(t, 3, 10)
	h.group.HandleFrame(ctx, ann, []byte(`{"action":"message","content":"x"}`))
	srcID := id(annConn.events(domain.EventMessage)[0], "id")
	annConn.reset()

	h.group.HandleFrame(ctx, ann, []byte(fmt.Sprintf(`{"action":"forward_to_groups","message_id":%d,"group_ids":[10]}`, srcID)))
	errs := annConn.events(domain.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.CodeInvalidFrame, errs[0]["code"])
}

func TestGroupSeenIsRecordedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ann, annConn := h.joinGroup(t, 3, 10)
	bob, bobConn := h.joinGroup(t, 7, 10)

	h.group.HandleFrame(ctx, ann, []byte(`{"action":"message","content":"seen?"}`))
	msgID := id(annConn.events(domain.EventMessage)[0], "id")

	seen := []byte(fmt.Sprintf(`{"action":"seen","message_id":%d}`, msgID))
	h.group.HandleFrame(ctx, bob, seen)
	h.group.HandleFrame(ctx, bob, seen)

	events := annConn.events(domain.EventMessageSeen)
	require.Len(t, events, 1)
	assert.Equal(t, float64(7), events[0]["user_id"])
	assert.Empty(t, bobConn.events(domain.EventError))
}

func TestGroupMediaOutlivesSourceWhileCopiesRemain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ann, annConn := h.joinGroup(t, 3, 10)
	bob, _ := h.joinGroup(t, 7, 10)
	bobIn12Session, bobIn12 := h.joinGroup(t, 7, 12)

	src, err := h.uploads.UploadGroupFile(ctx, 10, uploadAs(h, 3, "pic.png", []byte("png")))
	require.NoError(t, err)
	publicID := src.Media.PublicID
	h.group.HandleFrame(ctx, bob, []byte(fmt.Sprintf(`{"action":"forward_to_groups","message_id":%d,"group_ids":[12]}`, src.ID)))
	forwarded := bobIn12.events(domain.EventMessage)
	require.Len(t, forwarded, 1)
	copyID := id(forwarded[0], "id")

	// the copy still points at the object after its source is gone
	h.group.HandleFrame(ctx, ann, []byte(fmt.Sprintf(`{"action":"delete","message_id":%d}`, src.ID)))
	require.Len(t, annConn.events(domain.EventMessageDeleted), 1)
	assert.True(t, h.media.Has(publicID))

	// the forwarder owns the copy, the original sender does not
	h.group.HandleFrame(ctx, bobIn12Session, []byte(fmt.Sprintf(`{"action":"delete","message_id":%d}`, copyID)))
	require.Len(t, bobIn12.events(domain.EventMessageDeleted), 1)
	assert.False(t, h.media.Has(publicID))
}

func TestGroupDeleteOfForwardedCopyKeepsSourceMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.joinGroup(t, 3, 10)
	bob, _ := h.joinGroup(t, 7, 10)
	bobIn12Session, bobIn12 := h.joinGroup(t, 7, 12)

	src, err := h.uploads.UploadGroupFile(ctx, 10, uploadAs(h, 3, "pic.png", []byte("png")))
	require.NoError(t, err)
	h.group.HandleFrame(ctx, bob, []byte(fmt.Sprintf(`{"action":"forward_to_groups","message_id":%d,"group_ids":[12]}`, src.ID)))
	copyID := id(bobIn12.events(domain.EventMessage)[0], "id")

	h.group.HandleFrame(ctx, bobIn12Session, []byte(fmt.Sprintf(`{"action":"delete","message_id":%d}`, copyID)))
	require.Len(t, bobIn12.events(domain.EventMessageDeleted), 1)
	assert.True(t, h.media.Has(src.Media.PublicID))
}

func TestGroupEditIsOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ann, annConn := h.joinGroup(t, 3, 10)
	bob, bobConn := h.joinGroup(t, 7, 10)

	h.group.HandleFrame(ctx, ann, []byte(`{"action":"message","content":"draft"}`))
	msgID := id(annConn.events(domain.EventMessage)[0], "id")

	h.group.HandleFrame(ctx, bob, []byte(fmt.Sprintf(`{"action":"edit","message_id":%d,"content":"hijack"}`, msgID)))
	require.Len(t, bobConn.events(domain.EventError), 1)
	assert.Equal(t, domain.CodeForbidden, bobConn.events(domain.EventError)[0]["code"])

	h.group.HandleFrame(ctx, ann, []byte(fmt.Sprintf(`{"action":"edit","message_id":%d,"content":"final"}`, msgID)))
	updates := bobConn.events(domain.EventMessageUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, "final", updates[0]["content"])
}

func TestGroupRejectsPrivateOnlyFrames(t *testing.T) {
	h := newHarness(t)
	ann, annConn := h.joinGroup(t, 3, 10)

	h.group.HandleFrame(context.Background(), ann, []byte(`{"action":"read","message_id":1}`))
	errs := annConn.events(domain.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.CodeUnsupported, errs[0]["code"])
}

func TestGroupReplyMustStayInGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bobIn12, bob12Conn := h.joinGroup(t, 7, 12)
	h.group.HandleFrame(ctx, bobIn12, []byte(`{"action":"message","content":"elsewhere"}`))
	otherID := id(bob12Conn.events(domain.EventMessage)[0], "id")

	bob, bobConn := h.joinGroup(t, 7, 10)
	h.group.HandleFrame(ctx, bob, []byte(fmt.Sprintf(`{"action":"message","content":"re","reply_to_id":%d}`, otherID)))
	errs := bobConn.events(domain.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.CodeInvalidReply, errs[0]["code"])
	assert.Empty(t, h.store.Group().InGroup(10))
}
