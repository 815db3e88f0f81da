package emulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/models"
)

var ErrClosed = errors.New("emulator connection closed")

// RemoteError is an error reported by the control surface itself.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("emulator %s: %s", e.Op, e.Message)
}

// Client holds one websocket connection. Calls are serialized: a request is
// never sent before the previous response has been read. A connection lost
// to an I/O failure is redialed on the next call.
type Client struct {
	mu     sync.Mutex
	url    string
	conn   *websocket.Conn
	nextID uint64
	broken error
	closed bool
	logger *zap.Logger
}

func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to emulator at %s: %w", url, err)
	}
	logger.Info("connected to emulator", zap.String("url", url))
	return &Client{url: url, conn: conn, logger: logger}, nil
}

// State returns the formatted game state.
func (c *Client) State(ctx context.Context) (string, error) {
	resp, err := c.roundTrip(ctx, message{Type: typeState})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &RemoteError{Op: typeState, Message: resp.Error}
	}
	return resp.State, nil
}

// Press sends a single button. WAIT is never sent over the wire.
func (c *Client) Press(ctx context.Context, token models.Token) error {
	if token == models.TokenWait {
		return nil
	}
	resp, err := c.roundTrip(ctx, message{Type: typePress, Button: string(token)})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return &RemoteError{Op: typePress, Message: resp.Error}
	}
	if !resp.OK {
		return &RemoteError{Op: typePress, Message: "not acknowledged"}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req message) (message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return message{}, err
	}
	if c.broken != nil {
		if err := c.redial(ctx); err != nil {
			return message{}, err
		}
	}

	c.nextID++
	req.ID = c.nextID

	deadline, _ := ctx.Deadline()
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteJSON(req); err != nil {
		return message{}, c.fail(ctx, fmt.Errorf("write %s: %w", req.Type, err))
	}
	var resp message
	if err := c.conn.ReadJSON(&resp); err != nil {
		return message{}, c.fail(ctx, fmt.Errorf("read %s: %w", req.Type, err))
	}
	if resp.ID != req.ID {
		return message{}, c.fail(ctx, fmt.Errorf("response id %d does not match request %d", resp.ID, req.ID))
	}
	return resp, nil
}

// fail marks the connection unusable. Once a read or write has failed the
// stream may be out of step with the server.
func (c *Client) fail(ctx context.Context, err error) error {
	c.broken = fmt.Errorf("%w: %v", ErrClosed, err)
	c.logger.Warn("emulator connection lost", zap.Error(err))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}

// redial replaces a broken connection. Must be called with mu held.
func (c *Client) redial(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: redial %s: %v", c.broken, c.url, err)
	}
	c.conn.Close()
	c.conn = conn
	c.broken = nil
	c.logger.Info("reconnected to emulator", zap.String("url", c.url))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.broken == nil {
		c.broken = ErrClosed
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
