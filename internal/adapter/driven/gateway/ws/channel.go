package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("relay channel closed")

// EventHandler consumes inbound relay events. The coordinator implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

// Channel is a peer's websocket connection to the relay. Emit is safe for
// concurrent use; Run delivers inbound events one at a time, in order.
type Channel struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func Dial(ctx context.Context, url string) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	log.Info().Str("url", url).Msg("Connected to relay")
	return &Channel{
		conn: conn,
		log:  log.With().Str("component", "relay-channel").Logger(),
	}, nil
}

func (c *Channel) Emit(ctx context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Name, err)
	}
	c.log.Debug().Str("event", string(ev.Name)).Msg("Event sent")
	return nil
}

// Run reads until the connection drops or ctx is done. A nil return means
// ctx ended the loop.
func (c *Channel) Run(ctx context.Context, h EventHandler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrClosed
			}
			return fmt.Errorf("read relay: %w", err)
		}
		ev, err := domain.DecodeEvent(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed event")
			continue
		}
		// Errors are logged by the handler; the loop keeps going.
		_ = h.HandleEvent(ctx, ev)
	}
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}
