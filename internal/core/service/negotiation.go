package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
)

// startLocked builds a session up to Ready. requested marks a start asked
// for by the remote side.
func (c *Coordinator) startLocked(ctx context.Context, requested bool) error {
	if c.State().Live() {
		return domain.ErrSessionInProgress
	}

	sess := newCallSession()
	sess.requested = requested
	c.session = sess
	c.liveMu.Lock()
	c.live = sess
	c.liveMu.Unlock()
	c.setState(domain.StateInitializing)

	media, err := c.media.AcquireLocalMedia(sess.ctx)
	sess.media = media
	if sess.cancelled() {
		return context.Canceled
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
		c.log.Error().Err(err).Msg("Cannot start call")
		if terr := c.teardownLocked(ctx, c.abortReason()); terr != nil {
			c.log.Warn().Err(terr).Msg("Teardown after failure")
		}
		c.notifyErr(err)
		return err
	}

	neg, err := c.factory.NewNegotiator(sess.ctx)
	if err != nil {
		return c.failLocked(ctx, err)
	}
	sess.neg = neg
	if sess.cancelled() {
		return context.Canceled
	}
	neg.OnICECandidate(func(candidate json.RawMessage) {
		c.emitCandidate(sess, candidate)
	})
	neg.OnRemoteTrack(func(t port.RemoteTrack) {
		if sess.cancelled() {
			return
		}
		c.log.Debug().Str("kind", string(t.Kind())).Str("track_id", t.ID()).Msg("Remote track")
		sess.addRemote(t)
	})
	for _, t := range media.Tracks() {
		if err := neg.AddTrack(t); err != nil {
			return c.failLocked(ctx, fmt.Errorf("add %s track: %w", t.Kind(), err))
		}
	}
	c.setState(domain.StateReady)

	if c.role == domain.RoleCaller {
		return c.offerLocked(ctx, sess)
	}
	return nil
}

func (c *Coordinator) offerLocked(ctx context.Context, sess *callSession) error {
	offer, err := sess.neg.CreateOffer(sess.ctx)
	if sess.cancelled() {
		return context.Canceled
	}
	if err != nil {
		return c.failLocked(ctx, fmt.Errorf("create offer: %w", err))
	}
	if err := sess.neg.SetLocalDescription(sess.ctx, offer); err != nil {
		if sess.cancelled() {
			return context.Canceled
		}
		return c.failLocked(ctx, fmt.Errorf("set local offer: %w", err))
	}
	if sess.cancelled() {
		return context.Canceled
	}
	c.setState(domain.StateNegotiating)
	if err := emit(ctx, c.channel, domain.EventOffer, offer); err != nil {
		return c.failLocked(ctx, err)
	}
	c.flushOutbound(sess)
	return nil
}

// handleOfferLocked runs the answerer's Ready → Negotiating → Active path.
// An offer outside Ready is never merged into a running session.
func (c *Coordinator) handleOfferLocked(ctx context.Context, offer json.RawMessage) error {
	if c.State() != domain.StateReady {
		return fmt.Errorf("%w: offer in %s", domain.ErrOutOfOrderSignal, c.State())
	}
	sess := c.session
	c.setState(domain.StateNegotiating)

	if err := c.applyRemoteLocked(sess, offer); err != nil {
		if sess.cancelled() {
			return context.Canceled
		}
		return c.failLocked(ctx, err)
	}

	answer, err := sess.neg.CreateAnswer(sess.ctx)
	if sess.cancelled() {
		return context.Canceled
	}
	if err != nil {
		return c.failLocked(ctx, fmt.Errorf("create answer: %w", err))
	}
	if err := sess.neg.SetLocalDescription(sess.ctx, answer); err != nil {
		if sess.cancelled() {
			return context.Canceled
		}
		return c.failLocked(ctx, fmt.Errorf("set local answer: %w", err))
	}
	if sess.cancelled() {
		return context.Canceled
	}
	if err := emit(ctx, c.channel, domain.EventAnswer, answer); err != nil {
		return c.failLocked(ctx, err)
	}
	c.flushOutbound(sess)
	c.setState(domain.StateActive)
	return nil
}

func (c *Coordinator) handleAnswerLocked(ctx context.Context, answer json.RawMessage) error {
	if c.State() != domain.StateNegotiating || c.session.remoteApplied {
		return fmt.Errorf("%w: answer in %s", domain.ErrOutOfOrderSignal, c.State())
	}
	sess := c.session
	if err := c.applyRemoteLocked(sess, answer); err != nil {
		if sess.cancelled() {
			return context.Canceled
		}
		return c.failLocked(ctx, err)
	}
	c.setState(domain.StateActive)
	return nil
}

// handleCandidateLocked adds a remote candidate, or queues it while the
// remote description is not applied yet. Without a session the candidate
// is stale and dropped.
func (c *Coordinator) handleCandidateLocked(ctx context.Context, candidate json.RawMessage) error {
	sess := c.session
	if sess == nil || c.State() == domain.StateEnding {
		return fmt.Errorf("%w: candidate in %s", domain.ErrOutOfOrderSignal, c.State())
	}
	if !sess.remoteApplied {
		sess.pending = append(sess.pending, candidate)
		c.log.Debug().Int("queued", len(sess.pending)).Msg("Queued remote candidate")
		return nil
	}
	if err := sess.neg.AddICECandidate(sess.ctx, candidate); err != nil {
		if sess.cancelled() {
			return context.Canceled
		}
		return c.failLocked(ctx, fmt.Errorf("add candidate: %w", err))
	}
	return nil
}

// applyRemoteLocked sets the remote description and then flushes queued
// candidates in arrival order.
func (c *Coordinator) applyRemoteLocked(sess *callSession, desc json.RawMessage) error {
	if err := sess.neg.SetRemoteDescription(sess.ctx, desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if sess.cancelled() {
		return context.Canceled
	}
	sess.remoteApplied = true
	queued := sess.pending
	sess.pending = nil
	for _, cand := range queued {
		if err := sess.neg.AddICECandidate(sess.ctx, cand); err != nil {
			return fmt.Errorf("add queued candidate: %w", err)
		}
	}
	return nil
}
