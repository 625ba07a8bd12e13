package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/calendar"
	"github.com/bearound/booking-funnel/internal/funnel"
	"github.com/bearound/booking-funnel/internal/payments"
)

var feb2025 = availability.Month{Year: 2025, Month: time.February}

type febProber struct{}

func (febProber) ProbeMonth(ctx context.Context, ref string, month availability.Month, loc *time.Location) (availability.BookableSet, error) {
	if month == feb2025 {
		return availability.NewBookableSet(month, 10, 15), nil
	}
	return availability.NewBookableSet(month), nil
}

type stubCreator struct {
	err error
}

func (c *stubCreator) CreatePaymentIntent(ctx context.Context, req booking.IntentRequest) (booking.IntentResponse, error) {
	if c.err != nil {
		return booking.IntentResponse{}, c.err
	}
	return booking.IntentResponse{ClientSecret: "pi_123_secret_abc", TotalAmount: int64(4500 * req.Participants)}, nil
}

type testAPI struct {
	ctrl    *funnel.Controller
	creator *stubCreator
	handler http.Handler
}

func newTestAPI(t *testing.T, secret string) *testAPI {
	t.Helper()
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	now := time.Date(2025, time.February, 1, 9, 0, 0, 0, rome)
	clock := func() time.Time { return now }

	creator := &stubCreator{}
	gate := calendar.NewGate(febProber{}, nil, nil).WithClock(clock)
	ctrl := funnel.NewController(
		funnel.NewMemoryStore(0),
		gate,
		booking.NewBuilder(creator, nil, nil),
		payments.NewStep(payments.NewFakeProcessor(nil), nil, nil),
		funnel.Config{DefaultTimezone: "Europe/Rome"},
		nil,
	).WithClock(clock)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ctrl.Shutdown(ctx)
	})

	fh := NewFunnelHandler(ctrl, secret, time.Hour, nil)
	wh := NewWatchHandler(ctrl, nil, nil)
	r := chi.NewRouter()
	r.Post("/api/sessions", fh.CreateSession)
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Get("/", fh.GetSession)
		r.Delete("/", fh.DeleteSession)
		r.Get("/calendar", fh.GetCalendar)
		r.Post("/calendar", fh.NavigateCalendar)
		r.Patch("/draft", fh.UpdateDraft)
		r.Post("/intent", fh.SubmitIntent)
		r.Post("/confirm", fh.Confirm)
		r.Post("/restart", fh.Restart)
		r.Get("/watch", wh.Watch)
	})
	return &testAPI{ctrl: ctrl, creator: creator, handler: r}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) start(t *testing.T) *funnel.Session {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/sessions", `{"experience":"trekking-etna","wait":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp createSessionResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.Session)
	return resp.Session
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}
