package http

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull    = errors.New("client send queue full")
	ErrClientClosed = errors.New("client closed")
)

const writeWait = 10 * time.Second

// WSClient is one relay connection. Send only enqueues; a dedicated writer
// goroutine owns all writes on the socket.
type WSClient struct {
	id   domain.ConnID
	conn *websocket.Conn
	log  zerolog.Logger

	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, queue int) *WSClient {
	id := domain.NewConnID()
	return &WSClient{
		id:   id,
		conn: conn,
		log:  log.With().Str("conn_id", id.String()).Logger(),
		send: make(chan domain.Event, queue),
		done: make(chan struct{}),
	}
}

func (c *WSClient) ID() domain.ConnID {
	return c.id
}

func (c *WSClient) Send(ev domain.Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrQueueFull
	}
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSClient) writeLoop(ping time.Duration) {
	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Error().Err(err).Str("event", string(ev.Name)).Msg("Error writing event")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("Ping failed")
				c.Close()
				return
			}
		}
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(conn, h.opts.SendQueue)
	l := client.log
	l.Info().Str("remote_addr", r.RemoteAddr).Msg("New client connected")

	conn.SetReadLimit(h.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.IdleTimeout))
	})

	h.Relay.Attach(client)
	go client.writeLoop(h.opts.PingInterval)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Relay.Detach(client)
		client.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.IdleTimeout))

		ev, err := domain.DecodeEvent(raw)
		if errors.Is(err, domain.ErrUnknownEvent) {
			// The relay owns the unknown-event policy and its metric.
			h.Relay.Publish(client, ev)
			continue
		}
		if err != nil {
			l.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		h.Relay.Publish(client, ev)
	}
}
