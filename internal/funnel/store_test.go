package funnel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/payments"
)

func newTestSession(id string) *Session {
	now := time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC)
	return &Session{
		ID:            id,
		ExperienceRef: "trekking-etna",
		Timezone:      "Europe/Rome",
		Stage:         StageSelectingDate,
		Draft:         booking.NewDraft(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func storeImplementations(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t, time.Hour)
	return map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  redisStore,
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestSession("sess-1")
			require.NoError(t, store.Create(ctx, s))
			assert.EqualValues(t, 1, s.Revision)
			require.ErrorIs(t, store.Create(ctx, newTestSession("sess-1")), ErrSessionExists)

			got, err := store.Get(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, "trekking-etna", got.ExperienceRef)
			assert.Equal(t, 1, got.Draft.Participants)

			updated, err := store.Update(ctx, "sess-1", func(s *Session) error {
				s.Draft.Participants = 3
				return nil
			})
			require.NoError(t, err)
			assert.EqualValues(t, 2, updated.Revision)
			assert.Equal(t, 3, updated.Draft.Participants)

			_, err = store.Update(ctx, "sess-1", func(s *Session) error {
				s.Draft.Participants = 9
				return errors.New("rejected")
			})
			require.EqualError(t, err, "rejected")

			got, err = store.Get(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, 3, got.Draft.Participants, "failed updates are not saved")
			assert.EqualValues(t, 2, got.Revision)

			_, err = store.Update(ctx, "sess-1", func(s *Session) error {
				s.Stage = StageSucceeded
				return nil
			})
			require.ErrorIs(t, err, ErrInvalidSession, "invalid states are never stored")

			_, err = store.Update(ctx, "missing", func(*Session) error { return nil })
			require.ErrorIs(t, err, ErrSessionNotFound)
			_, err = store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrSessionNotFound)

			require.NoError(t, store.Delete(ctx, "sess-1"))
			require.ErrorIs(t, store.Delete(ctx, "sess-1"), ErrSessionNotFound)
			_, err = store.Get(ctx, "sess-1")
			require.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Create(ctx, newTestSession("sess-2")))

			got, err := store.Get(ctx, "sess-2")
			require.NoError(t, err)
			got.Draft.Participants = 42

			again, err := store.Get(ctx, "sess-2")
			require.NoError(t, err)
			assert.Equal(t, 1, again.Draft.Participants)
		})
	}
}

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestSession("sess-3")))

	now = now.Add(30 * time.Second)
	_, err := store.Update(ctx, "sess-3", func(s *Session) error { return nil })
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	_, err = store.Get(ctx, "sess-3")
	require.NoError(t, err, "updates slide the expiry")

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "sess-3")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreExpiresIdleSessions(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestSession("sess-4")))
	assert.True(t, mr.Exists("funnel:session:sess-4"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "sess-4")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreRetriesOnConflict(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestSession("sess-5")))

	calls := 0
	updated, err := store.Update(ctx, "sess-5", func(s *Session) error {
		calls++
		if calls == 1 {
			// a concurrent writer lands between WATCH and EXEC
			_, err := store.Update(ctx, "sess-5", func(other *Session) error {
				other.Draft.Participants = 5
				return nil
			})
			require.NoError(t, err)
		}
		s.Draft.Participants++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 6, updated.Draft.Participants, "the retry sees the concurrent write")
	assert.EqualValues(t, 3, updated.Revision)
}

type spanNames struct {
	embedded.Tracer
	next  trace.Tracer
	names []string
}

func (s *spanNames) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	s.names = append(s.names, name)
	return s.next.Start(ctx, name, opts...)
}

func TestRedisStoreTracesEveryOperation(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	tracer := &spanNames{next: noop.NewTracerProvider().Tracer("test")}
	store.tracer = tracer
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("sess-6")))
	_, err := store.Get(ctx, "sess-6")
	require.NoError(t, err)
	_, err = store.Update(ctx, "sess-6", func(s *Session) error { return nil })
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "sess-6"))

	assert.Equal(t, []string{
		"funnel.create_session",
		"funnel.get_session",
		"funnel.update_session",
		"funnel.delete_session",
	}, tracer.names)
}

func TestControllerOverRedisStore(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	h := newHarness(t, withStore(store))
	s := h.readyToPay(t)

	s, err := h.ctrl.Confirm(context.Background(), s.ID, payments.MethodInput{PaymentMethod: "pm_card_visa"})
	require.NoError(t, err)
	assert.Equal(t, StageSucceeded, s.Stage)

	stored, err := store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StageSucceeded, stored.Stage)
	assert.Equal(t, feb2025.Date(10), *stored.Draft.Date)
	assert.Equal(t, []int{10, 15}, stored.Calendar.Bookable)
	assert.Equal(t, s.Intent.ClientSecret, stored.Intent.ClientSecret)
}
