package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"whisper/internal/core/domain"
)

// RuntimeClient is one registered connection. Outbound frames are queued on
// out and written by WritePump, the connection's only data writer.
type RuntimeClient struct {
	id      string
	ws      *WebSocket
	user    domain.User
	channel domain.ChannelID
	out     chan []byte
	done    chan struct{}
	once    sync.Once
}

func NewClient(ws *WebSocket, user domain.User, channel domain.ChannelID, buffer int) *RuntimeClient {
	if buffer <= 0 {
		buffer = 256
	}
	return &RuntimeClient{
		id:      uuid.NewString(),
		ws:      ws,
		user:    user,
		channel: channel,
		out:     make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
}

func (c *RuntimeClient) ID() string                  { return c.id }
func (c *RuntimeClient) UserID() int64               { return c.user.ID }
func (c *RuntimeClient) User() domain.User           { return c.user }
func (c *RuntimeClient) ChannelID() domain.ChannelID { return c.channel }
func (c *RuntimeClient) Done() <-chan struct{}       { return c.done }

// Send queues data without blocking. A client that cannot keep up is
// reported as failed so the registry evicts it.
func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
		return domain.ErrSendQueueFull
	}
}

// Close is idempotent and safe from any goroutine. The out channel is never
// closed so a concurrent Send cannot panic.
func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// WritePump drains the queue onto the socket until the client closes or a
// write fails.
func (c *RuntimeClient) WritePump(ctx context.Context) error {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				return err
			}
		}
	}
}
