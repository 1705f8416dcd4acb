package service

import (
	"sync"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/rs/zerolog/log"
)

type publication struct {
	sender domain.ConnID
	event  domain.Event
}

// Relay is the fan-out broker. A single Run goroutine owns the connection
// set, so publishes are forwarded in the order they were accepted and each
// sender's messages keep their relative order.
type Relay struct {
	clients    map[domain.ConnID]port.Client
	publish    chan publication
	register   chan port.Client
	unregister chan port.Client
	quit       chan struct{}
	stopOnce   sync.Once
	metrics    port.RelayMetrics
}

func NewRelay(metrics port.RelayMetrics) *Relay {
	if metrics == nil {
		metrics = port.NopRelayMetrics{}
	}
	return &Relay{
		clients:    make(map[domain.ConnID]port.Client),
		publish:    make(chan publication),
		register:   make(chan port.Client),
		unregister: make(chan port.Client),
		quit:       make(chan struct{}),
		metrics:    metrics,
	}
}

func (r *Relay) Attach(c port.Client) {
	select {
	case r.register <- c:
	case <-r.quit:
	}
}

func (r *Relay) Detach(c port.Client) {
	select {
	case r.unregister <- c:
	case <-r.quit:
	}
}

// Publish forwards ev to every attached client except sender. Callers must
// publish from a single goroutine per connection to keep send order.
func (r *Relay) Publish(sender port.Client, ev domain.Event) {
	select {
	case r.publish <- publication{sender: sender.ID(), event: ev}:
	case <-r.quit:
	}
}

// Stop ends Run and closes every attached client. It is safe to call more
// than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

func (r *Relay) Run() {
	for {
		select {
		case <-r.quit:
			log.Info().Int("count", len(r.clients)).Msg("Stopping relay. Disconnecting all clients.")
			for id, client := range r.clients {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Str("conn_id", id.String()).Msg("Error closing client connection")
				}
				delete(r.clients, id)
			}
			return

		case client := <-r.register:
			r.clients[client.ID()] = client
			r.metrics.ConnectionAttached()
			l := log.With().Int("count", len(r.clients)).Str("conn_id", client.ID().String()).Logger()
			l.Info().Msg("Client attached")
			if len(r.clients) > 2 {
				l.Warn().Msg("More than two clients attached, pairing is ambiguous")
			}

		case client := <-r.unregister:
			if _, ok := r.clients[client.ID()]; !ok {
				continue
			}
			r.remove(client.ID())
			log.Info().Int("count", len(r.clients)).Str("conn_id", client.ID().String()).Msg("Client detached")
			// The remaining peer sees a disconnect exactly like a hangup.
			r.forward(publication{sender: client.ID(), event: domain.Event{Name: domain.EventEndCall}})

		case p := <-r.publish:
			if !p.event.Name.Known() {
				log.Warn().Str("event", string(p.event.Name)).Str("conn_id", p.sender.String()).Msg("Dropping unknown event")
				r.metrics.EventDropped(port.DropUnknownEvent)
				continue
			}
			r.forward(p)
		}
	}
}

func (r *Relay) forward(p publication) {
	delivered := 0
	var failed []domain.ConnID
	for id, client := range r.clients {
		if id == p.sender {
			continue
		}
		if err := client.Send(p.event); err != nil {
			log.Error().Err(err).Str("conn_id", id.String()).Str("event", string(p.event.Name)).Msg("Error forwarding event")
			r.metrics.EventDropped(port.DropQueueFull)
			failed = append(failed, id)
			continue
		}
		delivered++
	}
	if delivered == 0 && len(failed) == 0 {
		r.metrics.EventDropped(port.DropNoPeer)
	} else if delivered > 0 {
		r.metrics.EventForwarded(p.event.Name)
	}
	for _, id := range failed {
		r.remove(id)
		r.forward(publication{sender: id, event: domain.Event{Name: domain.EventEndCall}})
	}
}

func (r *Relay) remove(id domain.ConnID) {
	client := r.clients[id]
	delete(r.clients, id)
	r.metrics.ConnectionDetached()
	if err := client.Close(); err != nil {
		log.Debug().Err(err).Str("conn_id", id.String()).Msg("Close after detach")
	}
}
