package port

import (
	"context"

	"github.com/Wyydra/agentcall/internal/core/domain"
)

// Track is a local media track owned by whoever acquired it.
type Track interface {
	ID() string
	Kind() domain.TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	// Stop releases the underlying source. Safe to call more than once.
	Stop()
	// OnEnded registers f to run when the environment revokes the source.
	// It is not called for an explicit Stop.
	OnEnded(f func())
}

// RemoteTrack is an inbound track rendered by a remote media sink.
type RemoteTrack interface {
	ID() string
	Kind() domain.TrackKind
}

type LocalMedia struct {
	Audio Track
	Video Track
}

// Tracks returns the non-nil tracks of m.
func (m LocalMedia) Tracks() []Track {
	var out []Track
	if m.Audio != nil {
		out = append(out, m.Audio)
	}
	if m.Video != nil {
		out = append(out, m.Video)
	}
	return out
}

type MediaCapture interface {
	AcquireLocalMedia(ctx context.Context) (LocalMedia, error)
	AcquireScreenSource(ctx context.Context) (Track, error)
}
