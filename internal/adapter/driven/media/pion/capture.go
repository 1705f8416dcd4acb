package pion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

// Opus TOC byte for a 20ms silent frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Placeholder VP8 payload: a keyframe header with an empty partition.
var vp8Blank = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x02, 0x00, 0x02, 0x00}

// Capture produces synthetic local sources for headless peers. Each track
// writes placeholder samples until stopped.
type Capture struct {
	seq atomic.Uint64
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) AcquireLocalMedia(ctx context.Context) (port.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return port.LocalMedia{}, err
	}
	n := c.seq.Add(1)
	stream := fmt.Sprintf("agentcall-%d", n)
	audio, err := newTrack(domain.TrackAudio, fmt.Sprintf("microphone-%d", n), stream)
	if err != nil {
		return port.LocalMedia{}, err
	}
	video, err := newTrack(domain.TrackVideo, fmt.Sprintf("camera-%d", n), stream)
	if err != nil {
		audio.Stop()
		return port.LocalMedia{}, err
	}
	return port.LocalMedia{Audio: audio, Video: video}, nil
}

func (c *Capture) AcquireScreenSource(ctx context.Context) (port.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := c.seq.Add(1)
	return newTrack(domain.TrackVideo, fmt.Sprintf("screen-%d", n), fmt.Sprintf("agentcall-screen-%d", n))
}

// Track is a synthetic source feeding a TrackLocalStaticSample.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	kind  domain.TrackKind

	enabled  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	onEnded func()
}

func newTrack(kind domain.TrackKind, id, stream string) (*Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == domain.TrackAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, stream)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	t := &Track{local: local, kind: kind, done: make(chan struct{})}
	t.enabled.Store(true)
	go t.pump()
	return t, nil
}

func (t *Track) pump() {
	frame, interval := vp8Blank, videoFrame
	if t.kind == domain.TrackAudio {
		frame, interval = opusSilence, audioFrame
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			// Writes before the track is bound are dropped by pion.
			_ = t.local.WriteSample(media.Sample{Data: frame, Duration: interval})
		}
	}
}

func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

func (t *Track) ID() string {
	return t.local.ID()
}

func (t *Track) Kind() domain.TrackKind {
	return t.kind
}

func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Track) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *Track) OnEnded(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = f
}

// End stops the source as if the environment had revoked it.
func (t *Track) End() {
	t.Stop()
	t.mu.Lock()
	f := t.onEnded
	t.mu.Unlock()
	if f != nil {
		f()
	}
}
