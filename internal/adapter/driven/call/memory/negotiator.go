package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
)

var (
	ErrClosed           = errors.New("negotiator closed")
	ErrNoRemote         = errors.New("remote description not set")
	ErrNoVideoSender    = errors.New("no video sender")
	ErrWrongDescription = errors.New("unexpected description type")
)

// Description is the in-process session description: just the offered
// media set.
type Description struct {
	Type   string        `json:"type"`
	Tracks []TrackRecord `json:"tracks"`
}

type TrackRecord struct {
	ID   string           `json:"id"`
	Kind domain.TrackKind `json:"kind"`
}

type Candidate struct {
	Candidate string `json:"candidate"`
}

// Engine creates in-process negotiators. It stands in for the real media
// stack in tests and dry runs.
type Engine struct {
	mu         sync.Mutex
	created    []*Negotiator
	createErr  error
	remoteErr  error
	candidates int
}

func NewEngine() *Engine {
	return &Engine{candidates: 2}
}

// SetCreateError makes NewNegotiator fail.
func (e *Engine) SetCreateError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createErr = err
}

// SetRemoteError makes SetRemoteDescription fail on negotiators created
// afterwards.
func (e *Engine) SetRemoteError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteErr = err
}

// SetCandidates sets how many local candidates each negotiator gathers.
func (e *Engine) SetCandidates(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = n
}

func (e *Engine) Negotiators() []*Negotiator {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Negotiator, len(e.created))
	copy(out, e.created)
	return out
}

func (e *Engine) NewNegotiator(ctx context.Context) (port.Negotiator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	n := &Negotiator{
		id:         len(e.created) + 1,
		remoteErr:  e.remoteErr,
		candidates: e.candidates,
	}
	e.created = append(e.created, n)
	return n, nil
}

// Negotiator is a deterministic negotiation primitive. Setting a local
// description "gathers" a fixed number of host candidates synchronously.
type Negotiator struct {
	id         int
	remoteErr  error
	candidates int

	mu          sync.Mutex
	tracks      []port.Track
	video       port.Track
	local       *Description
	remote      *Description
	applied     []string
	offers      int
	answers     int
	replaced    int
	keyframes   int
	closes      int
	closed      bool
	onCandidate func(json.RawMessage)
	onTrack     func(port.RemoteTrack)
}

func (n *Negotiator) AddTrack(t port.Track) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.tracks = append(n.tracks, t)
	if t.Kind() == domain.TrackVideo {
		n.video = t
	}
	return nil
}

func (n *Negotiator) describe(typ string) json.RawMessage {
	d := Description{Type: typ}
	for _, t := range n.tracks {
		d.Tracks = append(d.Tracks, TrackRecord{ID: t.ID(), Kind: t.Kind()})
	}
	b, _ := json.Marshal(d)
	return b
}

func (n *Negotiator) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	n.offers++
	return n.describe("offer"), nil
}

func (n *Negotiator) CreateAnswer(ctx context.Context) (json.RawMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	if n.remote == nil || n.remote.Type != "offer" {
		return nil, ErrNoRemote
	}
	n.answers++
	return n.describe("answer"), nil
}

func parseDescription(raw json.RawMessage) (*Description, error) {
	var d Description
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if d.Type != "offer" && d.Type != "answer" {
		return nil, fmt.Errorf("%w: %q", ErrWrongDescription, d.Type)
	}
	return &d, nil
}

func (n *Negotiator) SetLocalDescription(ctx context.Context, desc json.RawMessage) error {
	d, err := parseDescription(desc)
	if err != nil {
		return err
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.local = d
	cb, count := n.onCandidate, n.candidates
	n.mu.Unlock()

	if cb != nil {
		for i := 1; i <= count; i++ {
			c, _ := json.Marshal(Candidate{Candidate: fmt.Sprintf("candidate:%d %d udp 1 127.0.0.1 9 typ host", n.id, i)})
			cb(c)
		}
	}
	return nil
}

func (n *Negotiator) SetRemoteDescription(ctx context.Context, desc json.RawMessage) error {
	if n.remoteErr != nil {
		return n.remoteErr
	}
	d, err := parseDescription(desc)
	if err != nil {
		return err
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.remote = d
	cb := n.onTrack
	n.mu.Unlock()

	if cb != nil {
		for _, t := range d.Tracks {
			cb(remoteTrack{id: t.ID, kind: t.Kind})
		}
	}
	return nil
}

func (n *Negotiator) AddICECandidate(ctx context.Context, candidate json.RawMessage) error {
	var c Candidate
	if err := json.Unmarshal(candidate, &c); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.remote == nil {
		return ErrNoRemote
	}
	n.applied = append(n.applied, c.Candidate)
	return nil
}

func (n *Negotiator) ReplaceVideoTrack(t port.Track) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.video == nil {
		return ErrNoVideoSender
	}
	n.video = t
	n.replaced++
	return nil
}

func (n *Negotiator) RequestKeyframe() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keyframes++
	return nil
}

func (n *Negotiator) OnICECandidate(f func(candidate json.RawMessage)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onCandidate = f
}

func (n *Negotiator) OnRemoteTrack(f func(t port.RemoteTrack)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onTrack = f
}

func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.closes++
	return nil
}

// AppliedCandidates returns remote candidates in the order they were added.
func (n *Negotiator) AppliedCandidates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.applied...)
}

func (n *Negotiator) VideoTrack() port.Track {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.video
}

func (n *Negotiator) Offers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offers
}

func (n *Negotiator) Replaced() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.replaced
}

func (n *Negotiator) Keyframes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.keyframes
}

func (n *Negotiator) CloseCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closes
}

type remoteTrack struct {
	id   string
	kind domain.TrackKind
}

func (t remoteTrack) ID() string {
	return t.id
}

func (t remoteTrack) Kind() domain.TrackKind {
	return t.kind
}
