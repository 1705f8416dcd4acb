package port

import "github.com/Wyydra/agentcall/internal/core/domain"

// RelayMetrics receives relay counters. Drop reasons are free-form labels.
type RelayMetrics interface {
	ConnectionAttached()
	ConnectionDetached()
	EventForwarded(name domain.EventName)
	EventDropped(reason string)
}

const (
	DropUnknownEvent = "unknown_event"
	DropQueueFull    = "queue_full"
	DropNoPeer       = "no_peer"
)

type NopRelayMetrics struct{}

func (NopRelayMetrics) ConnectionAttached() {}
func (NopRelayMetrics) ConnectionDetached() {}
func (NopRelayMetrics) EventForwarded(name domain.EventName) {}
func (NopRelayMetrics) EventDropped(reason string) {}
