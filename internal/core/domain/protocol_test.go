package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRejected(t *testing.T, err error, code string) {
	t.Helper()
	rej, ok := AsRejection(err)
	require.True(t, ok, "expected rejection, got %v", err)
	assert.Equal(t, code, rej.Code)
}

func TestParseFrameMessage(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"message","content":"hi","temp_id":"t1","reply_to":4}`))
	require.NoError(t, err)
	msg, ok := f.(*MessageFrame)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, MessageText, msg.MessageType)
	assert.Equal(t, "t1", msg.TempID)
	require.NotNil(t, msg.ReplyToID)
	assert.Equal(t, int64(4), *msg.ReplyToID)
}

func TestParseFrameAcceptsAction(t *testing.T) {
	f, err := ParseFrame([]byte(`{"action":"forward_to_groups","message_id":9,"group_ids":[11,12]}`))
	require.NoError(t, err)
	fwd, ok := f.(*ForwardFrame)
	require.True(t, ok)
	assert.Equal(t, int64(9), fwd.MessageID)
	assert.Equal(t, []int64{11, 12}, fwd.GroupIDs)
	assert.Equal(t, FrameForward, fwd.Kind())
}

func TestParseFrameVariants(t *testing.T) {
	cases := map[string]Frame{
		`{"type":"read","message_id":1}`:               &ReadFrame{MessageID: 1},
		`{"type":"typing","is_typing":true}`:           &TypingFrame{IsTyping: true},
		`{"type":"delete","message_id":2}`:             &DeleteFrame{MessageID: 2},
		`{"type":"edit","message_id":3,"content":"x"}`: &EditFrame{MessageID: 3, Content: "x"},
		`{"action":"seen","message_id":4}`:             &SeenFrame{MessageID: 4},
		`{"type":"pong"}`:                              &PongFrame{},
		`{"type":"heartbeat"}`:                         &PongFrame{},
	}
	for raw, want := range cases {
		got, err := ParseFrame([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseFrameUnknownType(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"dance"}`))
	require.NoError(t, err)
	unknown, ok := f.(*UnknownFrame)
	require.True(t, ok)
	assert.Equal(t, "dance", unknown.Kind())
}

func TestParseFrameIgnoresClientMediaReferences(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"message","content":"hi","file_url":"https://cdn/x.png","public_id":"x"}`))
	require.NoError(t, err)
	msg, ok := f.(*MessageFrame)
	require.True(t, ok)
	assert.Equal(t, &MessageFrame{Content: "hi", MessageType: MessageText}, msg)

	for _, kind := range []string{"image", "voice", "file"} {
		_, err := ParseFrame([]byte(`{"type":"message","message_type":"` + kind + `","public_id":"x"}`))
		requireRejected(t, err, CodeUnsupported)
	}
}

func TestParseFrameMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[1,2]`,
		`{}`,
		`{"content":"no discriminator"}`,
		`{"type":"read"}`,
		`{"type":"delete","message_id":0}`,
		`{"type":"message","content":"x","message_type":"video"}`,
		`{"type":"message","content":"x","reply_to_id":-1}`,
	} {
		_, err := ParseFrame([]byte(raw))
		requireRejected(t, err, CodeInvalidFrame)
	}
}
