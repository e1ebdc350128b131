package ws

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes sent before a connection joins a channel.
const (
	CloseAuthFailed   = 4001
	CloseForbidden    = 4003
	CloseServerFault  = websocket.CloseInternalServerErr
	closeControlGrace = time.Second
)

type Options struct {
	ReadLimit   int64
	ReadTimeout time.Duration
	WriteWait   time.Duration
}

type WebSocket struct {
	*websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
}

func NewWebSocket(parent context.Context, conn *websocket.Conn, opts Options) *WebSocket {
	ctx, cancel := context.WithCancel(parent)
	w := &WebSocket{Conn: conn, ctx: ctx, cancel: cancel, opts: opts}
	// Configure Read Limits (Protects against memory exhaustion)
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	w.ExtendDeadline()
	conn.SetPongHandler(func(string) error {
		w.ExtendDeadline()
		return nil
	})
	return w
}

// ExtendDeadline pushes the read deadline one read timeout into the future.
// A peer that sends nothing, not even a pong, for that long is dead.
func (w *WebSocket) ExtendDeadline() {
	if w.opts.ReadTimeout > 0 {
		_ = w.Conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
	}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	if w.opts.WriteWait > 0 {
		_ = w.Conn.SetWriteDeadline(time.Now().Add(w.opts.WriteWait))
	}
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a control ping. Safe to call concurrently with WriteMessage.
func (w *WebSocket) Ping() error {
	return w.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait()))
}

// CloseWith sends a close frame carrying code and reason, then drops the
// connection.
func (w *WebSocket) CloseWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeWait()))
	w.Close()
}

// ReadLoop hands every non-empty inbound frame to onMsg until the peer goes
// away. A clean close returns nil.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) error {
	// Ensure cleanup happens when the loop breaks
	defer w.Close()
	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		w.ExtendDeadline()
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) Done() <-chan struct{} { return w.ctx.Done() }

func (w *WebSocket) Close() {
	w.cancel()
	_ = w.Conn.Close()
}

func (w *WebSocket) writeWait() time.Duration {
	if w.opts.WriteWait > 0 {
		return w.opts.WriteWait
	}
	return closeControlGrace
}
