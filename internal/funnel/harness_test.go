package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/calendar"
	"github.com/bearound/booking-funnel/internal/events"
	"github.com/bearound/booking-funnel/internal/payments"
)

var (
	feb2025 = availability.Month{Year: 2025, Month: time.February}
	mar2025 = availability.Month{Year: 2025, Month: time.March}
	apr2025 = availability.Month{Year: 2025, Month: time.April}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// hookStore wraps a Store so tests can pause or fail Update calls.
type hookStore struct {
	Store
	mu sync.Mutex
	// pauseNext holds the next Update after it committed: it signals paused
	// and returns once resume is closed.
	pauseNext bool
	paused    chan struct{}
	resume    chan struct{}
	failing   int
}

func newHookStore() *hookStore {
	return &hookStore{Store: NewMemoryStore(0)}
}

func (h *hookStore) pauseNextUpdate() (paused, resume chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauseNext = true
	h.paused = make(chan struct{})
	h.resume = make(chan struct{})
	return h.paused, h.resume
}

// failUpdates makes the next n Update calls fail without touching the session.
func (h *hookStore) failUpdates(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing = n
}

func (h *hookStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	h.mu.Lock()
	if h.failing > 0 {
		h.failing--
		h.mu.Unlock()
		return nil, errStoreDown
	}
	pause := h.pauseNext
	h.pauseNext = false
	paused, resume := h.paused, h.resume
	h.mu.Unlock()

	s, err := h.Store.Update(ctx, id, fn)
	if pause {
		close(paused)
		<-resume
	}
	return s, err
}

type fakeProber struct {
	mu        sync.Mutex
	days      map[availability.Month][]int
	hold      map[availability.Month]chan struct{}
	honourCtx bool
	calls     []availability.Month
}

func (p *fakeProber) ProbeMonth(ctx context.Context, ref string, month availability.Month, loc *time.Location) (availability.BookableSet, error) {
	p.mu.Lock()
	p.calls = append(p.calls, month)
	hold := p.hold[month]
	days := p.days[month]
	p.mu.Unlock()

	if hold != nil {
		if p.honourCtx {
			select {
			case <-hold:
			case <-ctx.Done():
				return availability.BookableSet{}, availability.ErrProbeAborted
			}
		} else {
			<-hold
		}
	}
	return availability.NewBookableSet(month, days...), nil
}

func (p *fakeProber) setHold(m availability.Month, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hold == nil {
		p.hold = map[availability.Month]chan struct{}{}
	}
	p.hold[m] = ch
}

type fakeCreator struct {
	mu      sync.Mutex
	calls   []booking.IntentRequest
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeCreator) CreatePaymentIntent(ctx context.Context, req booking.IntentRequest) (booking.IntentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	err := f.err
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err != nil {
		return booking.IntentResponse{}, err
	}
	return booking.IntentResponse{ClientSecret: fmt.Sprintf("pi_%d_secret_test", n), TotalAmount: int64(4500 * req.Participants)}, nil
}

func (f *fakeCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProcessor struct {
	mu      sync.Mutex
	inputs  []payments.MethodInput
	results map[string]payments.Result
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeProcessor) ConfirmPayment(ctx context.Context, secret string, input payments.MethodInput) (payments.Result, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	res, ok := f.results[input.PaymentMethod]
	err := f.err
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err != nil {
		return payments.Result{}, err
	}
	if !ok {
		res = payments.Result{Outcome: payments.OutcomeSucceeded, Status: "succeeded"}
	}
	id, _ := payments.IntentID(secret)
	res.IntentID = id
	return res, nil
}

type harness struct {
	ctrl      *Controller
	store     Store
	prober    *fakeProber
	creator   *fakeCreator
	processor *fakeProcessor
	queue     *events.MemoryQueue
	rome      *time.Location
	clock     *testClock
}

type harnessOption func(*harness, *Config)

func withStore(s Store) harnessOption {
	return func(h *harness, _ *Config) { h.store = s }
}

func withInFlightTimeout(d time.Duration) harnessOption {
	return func(_ *harness, cfg *Config) { cfg.InFlightTimeout = d }
}

func withProbeTimeout(d time.Duration) harnessOption {
	return func(_ *harness, cfg *Config) { cfg.ProbeTimeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	tc := &testClock{now: time.Date(2025, time.February, 1, 9, 0, 0, 0, rome)}
	clock := tc.Now

	h := &harness{
		store: NewMemoryStore(0),
		prober: &fakeProber{days: map[availability.Month][]int{
			feb2025: {10, 15},
			mar2025: {3, 4},
			apr2025: {7},
		}},
		creator:   &fakeCreator{},
		processor: &fakeProcessor{results: map[string]payments.Result{}},
		queue:     events.NewMemoryQueue(32),
		rome:      rome,
		clock:     tc,
	}
	cfg := Config{DefaultTimezone: "Europe/Rome", ReturnBaseURL: "https://shop.example/"}
	for _, opt := range opts {
		opt(h, &cfg)
	}

	gate := calendar.NewGate(h.prober, nil, nil).WithClock(clock)
	h.ctrl = NewController(h.store, gate, booking.NewBuilder(h.creator, nil, nil), payments.NewStep(h.processor, nil, nil), cfg, nil).
		WithEvents(events.NewPublisher(h.queue, nil)).
		WithClock(clock)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.ctrl.Shutdown(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T) *Session {
	t.Helper()
	s, err := h.ctrl.Start(context.Background(), StartRequest{ExperienceRef: "trekking-etna", Wait: true})
	require.NoError(t, err)
	require.True(t, s.Calendar.Ready(), "first month must be probed")
	return s
}

func (h *harness) pick(t *testing.T, id string, day int, participants int) *Session {
	t.Helper()
	date := feb2025.Date(day)
	s, err := h.ctrl.UpdateDraft(context.Background(), id, booking.Patch{Date: &date, Participants: &participants})
	require.NoError(t, err)
	return s
}

func (h *harness) readyToPay(t *testing.T) *Session {
	t.Helper()
	s := h.start(t)
	h.pick(t, s.ID, 10, 2)
	s, err := h.ctrl.Submit(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, StageConfirmingPayment, s.Stage)
	return s
}

func (h *harness) eventTypes(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, msg := range h.queue.Drain() {
		out = append(out, msg.Attributes["event_type"])
	}
	return out
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func date(day int) *civil.Date {
	d := feb2025.Date(day)
	return &d
}

func isKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, _ := Classify(err)
	if got != kind {
		t.Fatalf("kind = %s, want %s (err: %v)", got, kind, err)
	}
}

var (
	errBoom      = errors.New("boom")
	errStoreDown = errors.New("store unavailable")
)
