package domain

import (
	"fmt"
	"time"
)

// Role selects which half of the negotiation a coordinator plays.
type Role string

const (
	RoleCaller   Role = "caller"   // the client: submits the form and sends the offer
	RoleAnswerer Role = "answerer" // the agent: reviews, accepts or declines, answers
)

// ParseRole accepts the role names as well as the product names agent/client.
func ParseRole(s string) (Role, error) {
	switch s {
	case "caller", "client":
		return RoleCaller, nil
	case "answerer", "agent":
		return RoleAnswerer, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Peer returns the role on the other side of the relay.
func (r Role) Peer() Role {
	if r == RoleCaller {
		return RoleAnswerer
	}
	return RoleCaller
}

// CallState is the lifecycle state of a coordinator's call session.
type CallState int

const (
	StateIdle CallState = iota
	StateInitializing
	StateReady
	StateNegotiating
	StateActive
	StateEnding
)

var stateNames = [...]string{"idle", "initializing", "ready", "negotiating", "active", "ending"}

func (s CallState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Live reports whether a CallSession exists in this state.
func (s CallState) Live() bool {
	return s != StateIdle
}

// VideoSource is the active outbound video source of an Active call.
type VideoSource int

const (
	SourceCamera VideoSource = iota
	SourceScreen
)

func (v VideoSource) String() string {
	if v == SourceScreen {
		return "screen"
	}
	return "camera"
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// CallSummary is the end-of-call record handed to persistence.
type CallSummary struct {
	FormData  FormRecord `json:"formData"`
	RoleLabel string     `json:"roleLabel"`
	EndedAt   time.Time  `json:"endedAt,omitzero"`
}
