package port

import (
	"context"
	"encoding/json"
)

// Negotiator is the session negotiation primitive. Descriptions and
// candidates are opaque JSON payloads.
type Negotiator interface {
	AddTrack(t Track) error
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetLocalDescription(ctx context.Context, desc json.RawMessage) error
	SetRemoteDescription(ctx context.Context, desc json.RawMessage) error
	AddICECandidate(ctx context.Context, candidate json.RawMessage) error
	// ReplaceVideoTrack swaps the outbound video source in place, without
	// renegotiation.
	ReplaceVideoTrack(t Track) error
	// RequestKeyframe asks the remote sender for a fresh keyframe on its
	// video track.
	RequestKeyframe() error
	OnICECandidate(f func(candidate json.RawMessage))
	OnRemoteTrack(f func(t RemoteTrack))
	// Close is safe to call from any state and more than once.
	Close() error
}

type NegotiatorFactory interface {
	NewNegotiator(ctx context.Context) (Negotiator, error)
}
