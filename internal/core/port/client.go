package port

import "github.com/Wyydra/agentcall/internal/core/domain"

// Client is one connection attached to the relay.
type Client interface {
	ID() domain.ConnID
	// Send queues ev for delivery. It must not block the caller.
	Send(ev domain.Event) error
	Close() error
}
