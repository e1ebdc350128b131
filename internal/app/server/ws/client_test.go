package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper/internal/core/domain"
)

// pair returns the server side of a fresh websocket connection and the
// dialled client side.
func pair(t *testing.T, opts Options) (*WebSocket, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-serverSide:
		ws := NewWebSocket(context.Background(), conn, opts)
		t.Cleanup(ws.Close)
		return ws, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side never connected")
		return nil, nil
	}
}

func TestClientSendIsNonBlocking(t *testing.T) {
	socket, _ := pair(t, Options{})
	c := NewClient(socket, domain.User{ID: 3}, domain.PrivateChannel(3, 7), 1)

	require.NoError(t, c.Send(context.Background(), []byte(`{"type":"ping"}`)))
	assert.ErrorIs(t, c.Send(context.Background(), []byte(`{"type":"ping"}`)), domain.ErrSendQueueFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send(context.Background(), []byte(`{}`)), domain.ErrConnectionClosed)
	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestWritePumpDelivers(t *testing.T) {
	socket, peer := pair(t, Options{WriteWait: time.Second})
	c := NewClient(socket, domain.User{ID: 3}, domain.PrivateChannel(3, 7), 4)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, int64(3), c.UserID())
	assert.Equal(t, domain.ChannelID("private_3_7"), c.ChannelID())

	done := make(chan error, 1)
	go func() { done <- c.WritePump(context.Background()) }()

	require.NoError(t, c.Send(context.Background(), []byte(`{"type":"message"}`)))
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message"}`, string(data))

	c.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop")
	}
}

func TestCloseWithSendsCode(t *testing.T) {
	socket, peer := pair(t, Options{})
	socket.CloseWith(CloseForbidden, "forbidden")

	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := peer.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseForbidden))
}

func TestReadLoopReturnsNilOnCleanClose(t *testing.T) {
	socket, peer := pair(t, Options{ReadTimeout: 2 * time.Second})

	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- socket.ReadLoop(func(data []byte) { got <- string(data) })
	}()

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)))
	assert.Equal(t, `{"type":"pong"}`, <-got)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, peer.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}
}

func TestReadLoopTimesOutSilentPeer(t *testing.T) {
	socket, _ := pair(t, Options{ReadTimeout: 100 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- socket.ReadLoop(func([]byte) {}) }()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read deadline never fired")
	}
}
