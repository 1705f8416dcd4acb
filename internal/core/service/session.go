package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
)

// callSession is the single live session of a Coordinator. Fields without
// a comment are guarded by Coordinator.mu.
type callSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	media  port.LocalMedia
	screen port.Track
	source domain.VideoSource
	neg    port.Negotiator

	requested     bool // started by the remote's trigger-start-call
	remoteApplied bool
	// Remote candidates that arrived before the remote description.
	pending  []json.RawMessage
	released bool

	mu sync.Mutex // guards the fields below, touched from negotiator callbacks
	// Local candidates are held until our offer or answer went out.
	described bool
	outbound  []json.RawMessage
	remote    []port.RemoteTrack
}

func newCallSession() *callSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &callSession{ctx: ctx, cancel: cancel}
}

func (s *callSession) cancelled() bool {
	return s.ctx.Err() != nil
}

// release stops every local track exactly once.
func (s *callSession) release() {
	if s.released {
		return
	}
	s.released = true
	for _, t := range s.media.Tracks() {
		t.Stop()
	}
	if s.screen != nil {
		s.screen.Stop()
		s.screen = nil
	}
	s.source = domain.SourceCamera
}

func (s *callSession) addRemote(t port.RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = append(s.remote, t)
}

func (s *callSession) remoteTracks() []port.RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]port.RemoteTrack, len(s.remote))
	copy(out, s.remote)
	return out
}

func (s *callSession) clearRemote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = nil
}
