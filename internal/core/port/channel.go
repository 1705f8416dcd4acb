package port

import (
	"context"

	"github.com/Wyydra/agentcall/internal/core/domain"
)

// Channel is the coordinator's handle on the relay. Emit delivers to every
// other attached peer, best effort.
type Channel interface {
	Emit(ctx context.Context, ev domain.Event) error
}
