package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/agentcall/internal/adapter/driven/call/memory"
	repo "github.com/Wyydra/agentcall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/Wyydra/agentcall/internal/core/service"
	"github.com/rs/zerolog"
)

func eventually(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

// recorder is a port.Channel that only records.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recorder) Emit(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) names() []domain.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventName, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func (r *recorder) count(name domain.EventName) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recorder) find(name domain.EventName) (domain.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Name == name {
			return ev, true
		}
	}
	return domain.Event{}, false
}

// peerConn is both ends of one peer's relay connection: a port.Client for
// the relay and a port.Channel for the coordinator. Inbound events are
// handed to the coordinator from a dedicated goroutine, in order.
type peerConn struct {
	id    domain.ConnID
	relay *service.Relay
	sent  recorder
	recv  recorder

	inbox     chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	handle    func(context.Context, domain.Event) error
}

func newPeerConn(relay *service.Relay, handle func(context.Context, domain.Event) error) *peerConn {
	p := &peerConn{
		id:     domain.NewConnID(),
		relay:  relay,
		inbox:  make(chan domain.Event, 256),
		done:   make(chan struct{}),
		handle: handle,
	}
	go p.loop()
	return p
}

func (p *peerConn) ID() domain.ConnID {
	return p.id
}

func (p *peerConn) Send(ev domain.Event) error {
	select {
	case p.inbox <- ev:
		return nil
	default:
		return errors.New("inbox full")
	}
}

func (p *peerConn) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *peerConn) Emit(ctx context.Context, ev domain.Event) error {
	if err := p.sent.Emit(ctx, ev); err != nil {
		return err
	}
	p.relay.Publish(p, ev)
	return nil
}

func (p *peerConn) loop() {
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.inbox:
			_ = p.recv.Emit(context.Background(), ev)
			if p.handle != nil {
				_ = p.handle(context.Background(), ev)
			}
		}
	}
}

// noticeLog records notifications for assertions.
type noticeLog struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *noticeLog) Notify(notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) states() []domain.CallState {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.CallState
	for _, notice := range n.notices {
		if notice.Kind == domain.NoticeStateChanged {
			out = append(out, notice.State)
		}
	}
	return out
}

func (n *noticeLog) has(kind domain.NoticeKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, notice := range n.notices {
		if notice.Kind == kind {
			return true
		}
	}
	return false
}

func (n *noticeLog) errs() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []error
	for _, notice := range n.notices {
		if notice.Kind == domain.NoticeError {
			out = append(out, notice.Err)
		}
	}
	return out
}

type side struct {
	coord   *service.Coordinator
	conn    *peerConn
	capture *memory.Capture
	engine  *memory.Engine
	store   *repo.SummaryRepository
	notices *noticeLog
}

func (s *side) negotiator(t *testing.T) *memory.Negotiator {
	t.Helper()
	negs := s.engine.Negotiators()
	if len(negs) == 0 {
		t.Fatal("no negotiator created")
	}
	return negs[len(negs)-1]
}

func newSide(relay *service.Relay, role domain.Role) *side {
	s := &side{
		capture: memory.NewCapture(),
		engine:  memory.NewEngine(),
		store:   repo.NewSummaryRepository(),
		notices: &noticeLog{},
	}
	var coord *service.Coordinator
	s.conn = newPeerConn(relay, func(ctx context.Context, ev domain.Event) error {
		return coord.HandleEvent(ctx, ev)
	})
	coord = service.NewCoordinator(role, s.conn, s.capture, s.engine, s.store,
		service.WithNotifier(s.notices),
		service.WithLogger(zerolog.Nop()),
		service.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	)
	s.coord = coord
	relay.Attach(s.conn)
	return s
}

// newPair wires a client and an agent through a running relay.
func newPair(t *testing.T) (caller, answerer *side) {
	t.Helper()
	relay := service.NewRelay(nil)
	go relay.Run()
	t.Cleanup(relay.Stop)
	return newSide(relay, domain.RoleCaller), newSide(relay, domain.RoleAnswerer)
}

// connect runs submit, accept and the offer/answer exchange.
func connect(t *testing.T, caller, answerer *side) {
	t.Helper()
	ctx := context.Background()
	if err := caller.coord.EditForm(ctx, domain.FieldName, "A"); err != nil {
		t.Fatalf("EditForm: %v", err)
	}
	if err := caller.coord.SubmitForm(ctx); err != nil {
		t.Fatalf("SubmitForm: %v", err)
	}
	eventually(t, answerer.coord.PendingSubmission, "answerer never saw the submission")
	if err := answerer.coord.AcceptCall(ctx); err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}
	eventually(t, func() bool {
		return caller.coord.State() == domain.StateActive && answerer.coord.State() == domain.StateActive
	}, "both sides should reach active")
}

var _ port.Channel = (*peerConn)(nil)
var _ port.Client = (*peerConn)(nil)
