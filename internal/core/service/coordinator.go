package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type endReason int

const (
	endLocal   endReason = iota // local hangup: tell the remote side
	endRemote                   // remote end-call or disconnect
	endFailed                   // failed after the remote side was involved
	endAborted                  // failed before anything was sent
)

const defaultSaveTimeout = 5 * time.Second

func (r endReason) String() string {
	switch r {
	case endLocal:
		return "local"
	case endRemote:
		return "remote"
	case endFailed:
		return "failed"
	default:
		return "aborted"
	}
}

// Coordinator owns one peer's call session, its lifecycle state machine and
// the shared form. All transitions are serialized by mu; inbound events must
// be handed to HandleEvent in the order the channel received them.
type Coordinator struct {
	role      domain.Role
	label     string
	channel   port.Channel
	media     port.MediaCapture
	factory   port.NegotiatorFactory
	summaries port.SummaryRepository
	notifier  port.Notifier
	log       zerolog.Logger
	now       func() time.Time

	saveTimeout time.Duration
	saving      sync.WaitGroup

	state atomic.Int32 // domain.CallState, written under mu

	mu           sync.Mutex
	session      *callSession
	form         *FormSync
	pending      bool // answerer saw a form-submit and has not decided yet
	remoteScreen bool

	liveMu sync.Mutex
	live   *callSession // lets end() cancel in-flight steps without mu
}

type CoordinatorOption func(*Coordinator)

// WithLabel sets the role label written into call summaries.
func WithLabel(label string) CoordinatorOption {
	return func(c *Coordinator) { c.label = label }
}

// WithNotifier sets the local-user notifier. It is called with the
// coordinator's lock held and must not call back into the coordinator.
func WithNotifier(n port.Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

func WithLogger(l zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithSaveTimeout bounds each call to the summary repository.
func WithSaveTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.saveTimeout = d }
}

func NewCoordinator(role domain.Role, channel port.Channel, media port.MediaCapture, factory port.NegotiatorFactory, summaries port.SummaryRepository, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		role:      role,
		channel:   channel,
		media:     media,
		factory:   factory,
		summaries: summaries,
		notifier:  port.NotifierFunc(func(domain.Notice) {}),
		log:       log.With().Str("component", "coordinator").Str("role", string(role)).Logger(),
		now:       time.Now,
		form:      NewFormSync(channel),

		saveTimeout: defaultSaveTimeout,
	}
	if role == domain.RoleAnswerer {
		c.label = "agent"
	} else {
		c.label = "client"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Role() domain.Role {
	return c.role
}

func (c *Coordinator) State() domain.CallState {
	return domain.CallState(c.state.Load())
}

func (c *Coordinator) Form() domain.FormRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Record()
}

func (c *Coordinator) FormFrozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Frozen()
}

// PendingSubmission reports whether the answerer has a form awaiting accept
// or decline.
func (c *Coordinator) PendingSubmission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Coordinator) VideoSource() domain.VideoSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.SourceCamera
	}
	return c.session.source
}

func (c *Coordinator) RemoteScreenSharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteScreen
}

// RemoteTracks lists the tracks currently rendered from the remote peer.
func (c *Coordinator) RemoteTracks() []port.RemoteTrack {
	c.liveMu.Lock()
	sess := c.live
	c.liveMu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.remoteTracks()
}

func (c *Coordinator) setState(s domain.CallState) {
	prev := domain.CallState(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("State changed")
	c.notifier.Notify(domain.Notice{Kind: domain.NoticeStateChanged, State: s})
}

func (c *Coordinator) notifyForm() {
	c.notifier.Notify(domain.Notice{Kind: domain.NoticeFormChanged, Form: c.form.Record()})
}

func (c *Coordinator) notifyErr(err error) {
	c.notifier.Notify(domain.Notice{Kind: domain.NoticeError, Err: err})
}

// StartCall moves Idle → Initializing → Ready and, for the caller, sends
// the offer.
func (c *Coordinator) StartCall(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx, false)
}

// EndCall hangs up. Calling it without a live session is a no-op.
func (c *Coordinator) EndCall(ctx context.Context) error {
	return c.end(ctx, endLocal)
}

// EditForm merges one field into the shared record and broadcasts it.
func (c *Coordinator) EditForm(ctx context.Context, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.form.Edit(ctx, field, value); err != nil {
		return err
	}
	c.notifyForm()
	return nil
}

// SubmitForm sends the record for review and freezes it.
func (c *Coordinator) SubmitForm(ctx context.Context) error {
	if c.role != domain.RoleCaller {
		return fmt.Errorf("%w: submit", domain.ErrRoleNotAllowed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Submit(ctx)
}

// ResetForm clears the record on both sides.
func (c *Coordinator) ResetForm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	err := c.form.Reset(ctx)
	c.notifyForm()
	return err
}

// AcceptCall prepares the answerer's session and asks the caller to start.
func (c *Coordinator) AcceptCall(ctx context.Context) error {
	if c.role != domain.RoleAnswerer {
		return fmt.Errorf("%w: accept", domain.ErrRoleNotAllowed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return domain.ErrNoPendingSubmission
	}
	if c.State().Live() {
		return domain.ErrSessionInProgress
	}
	// The submission stays pending until the start succeeded, so a failed
	// accept can be retried or turned into a decline.
	if err := c.startLocked(ctx, false); err != nil {
		return err
	}
	c.pending = false
	return emit(ctx, c.channel, domain.EventTriggerStartCall, nil)
}

// DeclineCall rejects the pending submission. No session is created, so
// no end-call is sent.
func (c *Coordinator) DeclineCall(ctx context.Context) error {
	if c.role != domain.RoleAnswerer {
		return fmt.Errorf("%w: decline", domain.ErrRoleNotAllowed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return domain.ErrNoPendingSubmission
	}
	if c.State().Live() {
		return domain.ErrSessionInProgress
	}
	c.pending = false
	if err := emit(ctx, c.channel, domain.EventCallDeclined, nil); err != nil {
		return err
	}
	err := c.form.Reset(ctx)
	c.notifyForm()
	return err
}

// CompleteReview records the reviewed form as a summary and tells the
// caller the review is done.
func (c *Coordinator) CompleteReview(ctx context.Context) error {
	if c.role != domain.RoleAnswerer {
		return fmt.Errorf("%w: review", domain.ErrRoleNotAllowed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.summarizeLocked(ctx); err != nil {
		return err
	}
	if err := emit(ctx, c.channel, domain.EventAgentFormSubmitted, nil); err != nil {
		return err
	}
	c.pending = false
	err := c.form.Reset(ctx)
	c.notifyForm()
	return err
}

// SetTrackEnabled mutes or unmutes a local track without renegotiating.
func (c *Coordinator) SetTrackEnabled(kind domain.TrackKind, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.session
	if sess == nil || sess.released {
		return domain.ErrNotActive
	}
	var t port.Track
	switch kind {
	case domain.TrackAudio:
		t = sess.media.Audio
	case domain.TrackVideo:
		t = sess.media.Video
	}
	if t == nil {
		return fmt.Errorf("no local %s track", kind)
	}
	t.SetEnabled(enabled)
	return nil
}

// HandleEvent applies one inbound relay event. Signals that do not fit the
// current state are dropped and reported as ErrOutOfOrderSignal.
func (c *Coordinator) HandleEvent(ctx context.Context, ev domain.Event) error {
	l := c.log.With().Str("event", string(ev.Name)).Logger()
	if err := ev.Validate(); err != nil {
		l.Warn().Err(err).Msg("Dropping invalid event")
		return err
	}
	if !ev.Name.EmittableBy(c.role.Peer()) {
		err := fmt.Errorf("%w: %s is not sent by a %s", domain.ErrOutOfOrderSignal, ev.Name, c.role.Peer())
		l.Debug().Err(err).Msg("Dropping signal")
		return err
	}

	if ev.Name == domain.EventEndCall {
		return c.end(ctx, endRemote)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch ev.Name {
	case domain.EventOffer:
		err = c.handleOfferLocked(ctx, ev.Data)
	case domain.EventAnswer:
		err = c.handleAnswerLocked(ctx, ev.Data)
	case domain.EventICECandidate:
		err = c.handleCandidateLocked(ctx, ev.Data)
	case domain.EventTriggerStartCall:
		if c.State().Live() {
			err = fmt.Errorf("%w: start requested in %s", domain.ErrOutOfOrderSignal, c.State())
			break
		}
		c.form.Unfreeze()
		err = c.startLocked(ctx, true)
	case domain.EventFormUpdate:
		rec, _ := ev.Form()
		c.form.ApplyRemote(rec)
		c.notifyForm()
	case domain.EventFormSubmit:
		rec, _ := ev.Form()
		c.form.ApplyRemote(rec)
		c.pending = true
		c.notifyForm()
		c.notifier.Notify(domain.Notice{Kind: domain.NoticeIncomingCall, Form: rec})
	case domain.EventAgentFormSubmitted:
		c.form.Clear()
		c.notifyForm()
		c.notifier.Notify(domain.Notice{Kind: domain.NoticeReviewCompleted})
	case domain.EventClearForm:
		c.form.Clear()
		c.pending = false
		c.notifyForm()
	case domain.EventCallDeclined:
		c.form.Clear()
		c.notifyForm()
		c.notifier.Notify(domain.Notice{Kind: domain.NoticeCallDeclined})
	case domain.EventScreenShared:
		err = c.remoteScreenLocked(true)
	case domain.EventScreenEnded:
		err = c.remoteScreenLocked(false)
	case domain.EventCallSummary:
		s, _ := ev.Summary()
		c.notifier.Notify(domain.Notice{Kind: domain.NoticeRemoteSummary, Summary: s})
	}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOutOfOrderSignal):
		l.Debug().Err(err).Msg("Dropping signal")
	case errors.Is(err, context.Canceled):
		l.Debug().Msg("Session ended while handling event")
	default:
		l.Error().Err(err).Msg("Failed to handle event")
	}
	return err
}

func (c *Coordinator) remoteScreenLocked(sharing bool) error {
	if sharing && c.State() != domain.StateActive {
		return fmt.Errorf("%w: screen-shared in %s", domain.ErrOutOfOrderSignal, c.State())
	}
	c.remoteScreen = sharing
	if sharing && c.session != nil && c.session.neg != nil {
		if err := c.session.neg.RequestKeyframe(); err != nil {
			c.log.Warn().Err(err).Msg("Keyframe request failed")
		}
	}
	c.notifier.Notify(domain.Notice{Kind: domain.NoticeRemoteScreen, Screen: sharing})
	return nil
}

// end tears the live session down. The session context is cancelled before
// taking mu so a step suspended on the negotiator or media capture discards
// its result instead of applying it.
func (c *Coordinator) end(ctx context.Context, reason endReason) error {
	c.liveMu.Lock()
	if c.live != nil {
		c.live.cancel()
	}
	c.liveMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.State() {
	case domain.StateIdle, domain.StateEnding:
		return nil
	}
	return c.teardownLocked(ctx, reason)
}

func (c *Coordinator) teardownLocked(ctx context.Context, reason endReason) error {
	sess := c.session
	c.setState(domain.StateEnding)
	c.log.Info().Str("reason", reason.String()).Msg("Ending call")

	if sess != nil {
		sess.cancel()
		if sess.neg != nil {
			if err := sess.neg.Close(); err != nil {
				c.log.Warn().Err(err).Msg("Closing negotiator")
			}
		}
		sess.release()
		sess.clearRemote()
	}
	c.session = nil
	c.liveMu.Lock()
	c.live = nil
	c.liveMu.Unlock()
	c.remoteScreen = false

	var errs []error
	if reason == endLocal || reason == endFailed {
		errs = append(errs, emit(ctx, c.channel, domain.EventEndCall, nil))
	}
	if reason == endLocal || reason == endRemote {
		errs = append(errs, c.summarizeLocked(ctx))
		errs = append(errs, emit(ctx, c.channel, domain.EventClearForm, nil))
	}
	// After endFailed the remote answers our end-call with its own summary
	// and clear-form, so the local record goes too.
	if reason != endAborted {
		c.form.Clear()
		c.pending = false
		c.notifyForm()
	}
	c.setState(domain.StateIdle)
	return errors.Join(errs...)
}

// summarizeLocked emits the current record as a call summary and hands it
// to persistence in the background.
func (c *Coordinator) summarizeLocked(ctx context.Context) error {
	summary := domain.CallSummary{
		FormData:  c.form.Record(),
		RoleLabel: c.label,
		EndedAt:   c.now().UTC(),
	}
	if c.summaries != nil {
		c.saving.Add(1)
		go c.store(summary)
	}
	return emit(ctx, c.channel, domain.EventCallSummary, summary)
}

// store saves one summary. Failures are logged only.
func (c *Coordinator) store(summary domain.CallSummary) {
	defer c.saving.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()
	if err := c.summaries.Save(ctx, summary); err != nil {
		c.log.Error().Err(err).Msg("Failed to store call summary")
	}
}

// WaitStored blocks until every summary handed to persistence has been
// saved or has timed out.
func (c *Coordinator) WaitStored() {
	c.saving.Wait()
}

// abortReason picks the teardown for a failed attempt. Once the remote side
// is involved, either through our signalling or because it asked us to
// start, it is told to hang up as well.
func (c *Coordinator) abortReason() endReason {
	if c.State() >= domain.StateNegotiating || (c.session != nil && c.session.requested) {
		return endFailed
	}
	return endAborted
}

// failLocked aborts the current attempt after a negotiation error.
func (c *Coordinator) failLocked(ctx context.Context, err error) error {
	err = fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
	c.log.Error().Err(err).Msg("Negotiation failed, returning to idle")
	if terr := c.teardownLocked(ctx, c.abortReason()); terr != nil {
		c.log.Warn().Err(terr).Msg("Teardown after failure")
	}
	c.notifyErr(err)
	return err
}

// emitCandidate sends a local candidate, holding it back until our offer or
// answer has gone out so the remote never sees it first.
func (c *Coordinator) emitCandidate(sess *callSession, candidate json.RawMessage) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancelled() {
		return
	}
	if !sess.described {
		sess.outbound = append(sess.outbound, candidate)
		return
	}
	if err := emit(sess.ctx, c.channel, domain.EventICECandidate, candidate); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send candidate")
	}
}

func (c *Coordinator) flushOutbound(sess *callSession) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.described = true
	queued := sess.outbound
	sess.outbound = nil
	for _, cand := range queued {
		if err := emit(sess.ctx, c.channel, domain.EventICECandidate, cand); err != nil {
			c.log.Warn().Err(err).Msg("Failed to send candidate")
		}
	}
}
