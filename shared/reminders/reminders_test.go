package reminders

import (
	"context"
	"errors"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"daimaescape/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBookingStore implements BookingStore for testing.
type MockBookingStore struct {
	mu       sync.Mutex
	bookings []models.Booking
	marked   map[int64]bool
	from, to time.Time
	err      error
}

func NewMockBookingStore(bookings ...models.Booking) *MockBookingStore {
	return &MockBookingStore{bookings: bookings, marked: make(map[int64]bool)}
}

func (m *MockBookingStore) GetUpcomingCheckIns(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.from, m.to = from, to
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Booking
	for _, b := range m.bookings {
		if !m.marked[b.ID] && !b.CheckIn.Before(from) && !b.CheckIn.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockBookingStore) MarkReminderSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[id] = true
	return nil
}

func (m *MockBookingStore) isMarked(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marked[id]
}

type scriptedNotifier struct {
	mu    sync.Mutex
	errs  []error
	calls int
	refs  []string
}

func (n *scriptedNotifier) SendReminder(ctx context.Context, b models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.refs = append(n.refs, b.Reference)
	if len(n.errs) == 0 {
		return nil
	}
	err := n.errs[0]
	n.errs = n.errs[1:]
	return err
}

func fastSenderConfig() ReminderSenderConfig {
	return ReminderSenderConfig{
		RateLimiter: RateLimiterConfig{Rate: 1000, Burst: 100},
		Retry: RetryConfig{
			MaxRetries:  2,
			RetryDelays: []time.Duration{time.Millisecond, time.Millisecond},
		},
	}
}

func booking(id int64, ref string, checkIn time.Time) models.Booking {
	return models.Booking{ID: id, Reference: ref, GuestEmail: ref + "@example.com", CheckIn: checkIn, Status: models.StatusConfirmed}
}

func june(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errors.New("bad address"))))
	assert.True(t, IsPermanent(&textproto.Error{Code: 550, Msg: "mailbox unavailable"}))
	assert.False(t, IsPermanent(&textproto.Error{Code: 421, Msg: "try again later"}))
	assert.False(t, IsPermanent(errors.New("connection reset")))
	assert.Nil(t, Permanent(nil))
}

func TestSendWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient errors", func(t *testing.T) {
		store := NewMockBookingStore()
		n := &scriptedNotifier{errs: []error{errors.New("timeout"), errors.New("timeout")}}
		reg := prometheus.NewRegistry()
		m := NewMetricsWith(reg, "test")
		s := NewReminderSender(n, store, fastSenderConfig(), m, nil)

		outcome, err := s.SendWithRetry(ctx, booking(1, "A", june(2)))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, outcome)
		assert.Equal(t, 3, n.calls)
		assert.True(t, store.isMarked(1))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.ReminderRetries))
	})

	t.Run("gives up without marking", func(t *testing.T) {
		store := NewMockBookingStore()
		boom := errors.New("smtp down")
		n := &scriptedNotifier{errs: []error{boom, boom, boom}}
		s := NewReminderSender(n, store, fastSenderConfig(), nil, nil)

		outcome, err := s.SendWithRetry(ctx, booking(1, "A", june(2)))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Equal(t, 3, n.calls)
		assert.False(t, store.isMarked(1), "left for the next poll")
	})

	t.Run("permanent error stops and marks", func(t *testing.T) {
		store := NewMockBookingStore()
		n := &scriptedNotifier{errs: []error{&textproto.Error{Code: 550, Msg: "no such user"}}}
		s := NewReminderSender(n, store, fastSenderConfig(), nil, nil)

		outcome, err := s.SendWithRetry(ctx, booking(1, "A", june(2)))
		require.Error(t, err)
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Equal(t, 1, n.calls)
		assert.True(t, store.isMarked(1))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		n := &scriptedNotifier{}
		cfg := fastSenderConfig()
		cfg.RateLimiter.JitterMin = 10
		s := NewReminderSender(n, NewMockBookingStore(), cfg, nil, nil)

		outcome, err := s.SendWithRetry(cctx, booking(1, "A", june(2)))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Zero(t, n.calls)
	})
}

func TestServiceCheckNow(t *testing.T) {
	store := NewMockBookingStore(
		booking(1, "TODAY", june(1)),
		booking(2, "TOMORROW", june(2)),
		booking(3, "LATER", june(5)),
	)
	n := &scriptedNotifier{}
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	svc := NewService(&Config{
		Lead: 24 * time.Hour,
		Now:  func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
	}, store, NewReminderSender(n, store, fastSenderConfig(), m, nil), m, nil)

	sent := svc.CheckNow(context.Background())
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []string{"TODAY", "TOMORROW"}, n.refs)
	assert.Equal(t, june(1), store.from)
	assert.Equal(t, june(2), store.to)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemindersSentTotal.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemindersDue))

	// Reminded bookings are not picked up again.
	assert.Zero(t, svc.CheckNow(context.Background()))
	assert.Len(t, n.refs, 2)
}

func TestServiceWindowUsesHotelTimeZone(t *testing.T) {
	store := NewMockBookingStore()
	eat := time.FixedZone("EAT", 3*60*60)

	svc := NewService(&Config{
		Lead:     24 * time.Hour,
		Location: eat,
		// 22:30 UTC on May 31 is already June 1 in Dar es Salaam.
		Now: func() time.Time { return time.Date(2025, 5, 31, 22, 30, 0, 0, time.UTC) },
	}, store, NewReminderSender(&scriptedNotifier{}, store, fastSenderConfig(), nil, nil), nil, nil)

	svc.CheckNow(context.Background())
	assert.Equal(t, june(1), store.from)
	assert.Equal(t, june(2), store.to)
}

func TestServiceStoreError(t *testing.T) {
	store := NewMockBookingStore(booking(1, "A", june(1)))
	store.err = errors.New("db locked")
	n := &scriptedNotifier{}

	svc := NewService(nil, store, NewReminderSender(n, store, fastSenderConfig(), nil, nil), nil, nil)
	assert.Zero(t, svc.CheckNow(context.Background()))
	assert.Zero(t, n.calls)
}

func TestServiceStartStop(t *testing.T) {
	store := NewMockBookingStore()
	svc := NewService(&Config{CheckInterval: time.Hour}, store,
		NewReminderSender(&scriptedNotifier{}, store, fastSenderConfig(), nil, nil), nil, nil)

	svc.Start()
	svc.Start()
	svc.Stop()
	svc.Stop()
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 2})
	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	waited, err := rl.Wait(ctx)
	assert.True(t, waited)
	assert.Error(t, err)
}
