package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
)

// Track is an in-process media track. It counts Stop calls so callers can
// check that hardware would have been released exactly once.
type Track struct {
	id   string
	kind domain.TrackKind

	mu      sync.Mutex
	enabled bool
	stops   int
	onEnded func()
}

func NewTrack(id string, kind domain.TrackKind) *Track {
	return &Track{id: id, kind: kind, enabled: true}
}

func (t *Track) ID() string {
	return t.id
}

func (t *Track) Kind() domain.TrackKind {
	return t.kind
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *Track) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *Track) OnEnded(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = f
}

// Revoke simulates the environment ending the source, e.g. the user
// pressing "stop sharing" in the system UI.
func (t *Track) Revoke() {
	t.mu.Lock()
	f := t.onEnded
	t.stops++
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

// Capture hands out in-process tracks.
type Capture struct {
	mu        sync.Mutex
	n         int
	mediaErr  error
	screenErr error
	hold      chan struct{}
	tracks    []*Track
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) SetMediaError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mediaErr = err
}

func (c *Capture) SetScreenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenErr = err
}

// Hold makes AcquireLocalMedia block until the returned function is called
// or the context is cancelled, like a pending permission prompt.
func (c *Capture) Hold() (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.hold = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (c *Capture) Tracks() []*Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

func (c *Capture) newTrack(prefix string, kind domain.TrackKind) *Track {
	c.n++
	t := NewTrack(fmt.Sprintf("%s-%d", prefix, c.n), kind)
	c.tracks = append(c.tracks, t)
	return t
}

func (c *Capture) AcquireLocalMedia(ctx context.Context) (port.LocalMedia, error) {
	c.mu.Lock()
	hold, err := c.hold, c.mediaErr
	c.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return port.LocalMedia{}, ctx.Err()
		}
	}
	if err != nil {
		return port.LocalMedia{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return port.LocalMedia{
		Audio: c.newTrack("microphone", domain.TrackAudio),
		Video: c.newTrack("camera", domain.TrackVideo),
	}, nil
}

func (c *Capture) AcquireScreenSource(ctx context.Context) (port.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screenErr != nil {
		return nil, c.screenErr
	}
	return c.newTrack("screen", domain.TrackVideo), nil
}
