package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	ErrForeignTrack  = errors.New("track was not captured by the pion adapter")
	ErrNoVideoSender = errors.New("no outbound video sender")
	ErrNoRemoteVideo = errors.New("no inbound video track")
	ErrInvalidSignal = errors.New("invalid signalling payload")
)

// LocalTrack is a port.Track that can feed a pion RTP sender.
type LocalTrack interface {
	port.Track
	Local() webrtc.TrackLocal
}

// Factory builds peer connections sharing one media engine and ICE setup.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    zerolog.Logger
}

func NewFactory(iceServers []string, logger zerolog.Logger) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(logger)

	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		config: cfg,
		log:    logger.With().Str("component", "webrtc").Logger(),
	}, nil
}

func (f *Factory) NewNegotiator(ctx context.Context) (port.Negotiator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	n := &Negotiator{pc: pc, log: f.log}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			n.log.Error().Err(err).Msg("Failed to marshal candidate")
			return
		}
		n.mu.Lock()
		cb := n.onCandidate
		n.mu.Unlock()
		if cb != nil {
			cb(raw)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t := remoteTrack{remote: remote}
		n.log.Debug().Str("kind", remote.Kind().String()).Str("track_id", remote.ID()).Msg("Received remote track")
		n.mu.Lock()
		if t.Kind() == domain.TrackVideo {
			n.remoteVideo = uint32(remote.SSRC())
		}
		cb := n.onTrack
		n.mu.Unlock()
		if cb != nil {
			cb(t)
		}
		// Headless peers have no renderer; keep the receive buffers draining.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		n.log.Info().Str("state", s.String()).Msg("Peer connection state")
	})
	return n, nil
}

// Negotiator wraps one pion PeerConnection.
type Negotiator struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu          sync.Mutex
	video       *webrtc.RTPSender
	remoteVideo uint32
	onCandidate func(json.RawMessage)
	onTrack     func(port.RemoteTrack)

	closeOnce sync.Once
	closeErr  error
}

func (n *Negotiator) AddTrack(t port.Track) error {
	lt, ok := t.(LocalTrack)
	if !ok {
		return ErrForeignTrack
	}
	sender, err := n.pc.AddTrack(lt.Local())
	if err != nil {
		return err
	}
	if t.Kind() == domain.TrackVideo {
		n.mu.Lock()
		n.video = sender
		n.mu.Unlock()
	}
	// Inbound RTCP is read and discarded.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (n *Negotiator) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

func (n *Negotiator) CreateAnswer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (n *Negotiator) SetLocalDescription(ctx context.Context, desc json.RawMessage) error {
	sd, err := decodeDescription(desc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.pc.SetLocalDescription(sd)
}

func (n *Negotiator) SetRemoteDescription(ctx context.Context, desc json.RawMessage) error {
	sd, err := decodeDescription(desc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.pc.SetRemoteDescription(sd)
}

func (n *Negotiator) AddICECandidate(ctx context.Context, candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("%w: candidate: %v", ErrInvalidSignal, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.pc.AddICECandidate(init)
}

func (n *Negotiator) ReplaceVideoTrack(t port.Track) error {
	lt, ok := t.(LocalTrack)
	if !ok {
		return ErrForeignTrack
	}
	n.mu.Lock()
	sender := n.video
	n.mu.Unlock()
	if sender == nil {
		return ErrNoVideoSender
	}
	return sender.ReplaceTrack(lt.Local())
}

// RequestKeyframe sends a PLI for the remote video SSRC.
func (n *Negotiator) RequestKeyframe() error {
	n.mu.Lock()
	ssrc := n.remoteVideo
	n.mu.Unlock()
	if ssrc == 0 {
		return ErrNoRemoteVideo
	}
	return n.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
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
	n.closeOnce.Do(func() {
		n.closeErr = n.pc.Close()
	})
	return n.closeErr
}

func decodeDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return sd, fmt.Errorf("%w: description: %v", ErrInvalidSignal, err)
	}
	if sd.SDP == "" {
		return sd, fmt.Errorf("%w: description without sdp", ErrInvalidSignal)
	}
	return sd, nil
}

type remoteTrack struct {
	remote *webrtc.TrackRemote
}

func (t remoteTrack) ID() string {
	return t.remote.ID()
}

func (t remoteTrack) Kind() domain.TrackKind {
	if t.remote.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.TrackAudio
	}
	return domain.TrackVideo
}
