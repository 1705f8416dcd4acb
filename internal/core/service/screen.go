package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
)

// ToggleScreenShare swaps the outbound video between camera and screen on
// the existing sender. No offer or answer is exchanged.
func (c *Coordinator) ToggleScreenShare(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != domain.StateActive {
		return domain.ErrNotActive
	}
	sess := c.session
	if sess.source == domain.SourceScreen {
		return c.restoreCameraLocked(ctx, sess)
	}

	screen, err := c.media.AcquireScreenSource(sess.ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrScreenCapture, err)
		c.log.Warn().Err(err).Msg("Screen share not started")
		c.notifyErr(err)
		return err
	}
	if sess.cancelled() {
		screen.Stop()
		return context.Canceled
	}
	if err := sess.neg.ReplaceVideoTrack(screen); err != nil {
		screen.Stop()
		err = fmt.Errorf("%w: replace video track: %v", domain.ErrScreenCapture, err)
		c.notifyErr(err)
		return err
	}
	sess.screen = screen
	sess.source = domain.SourceScreen
	screen.OnEnded(func() {
		go c.screenRevoked(sess, screen)
	})
	c.log.Info().Str("track_id", screen.ID()).Msg("Screen share started")
	return emit(ctx, c.channel, domain.EventScreenShared, nil)
}

// screenRevoked runs when the environment stops the screen source behind
// our back. It takes the same path as an explicit toggle.
func (c *Coordinator) screenRevoked(sess *callSession, screen port.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess || sess.screen != screen {
		return
	}
	c.log.Info().Str("track_id", screen.ID()).Msg("Screen source revoked")
	if err := c.restoreCameraLocked(sess.ctx, sess); err != nil {
		c.log.Error().Err(err).Msg("Failed to restore camera")
	}
}

func (c *Coordinator) restoreCameraLocked(ctx context.Context, sess *callSession) error {
	if err := sess.neg.ReplaceVideoTrack(sess.media.Video); err != nil {
		return fmt.Errorf("%w: restore camera: %v", domain.ErrNegotiation, err)
	}
	screen := sess.screen
	sess.screen = nil
	sess.source = domain.SourceCamera
	if screen != nil {
		screen.Stop()
	}
	c.log.Info().Msg("Screen share ended")
	return emit(ctx, c.channel, domain.EventScreenEnded, nil)
}
