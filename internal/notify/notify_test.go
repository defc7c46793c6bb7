package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"daimaescape/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/mail.v2"
)

func sampleBooking() models.Booking {
	return models.Booking{
		Reference:     "010625-AB12C",
		RoomName:      "Baobab Villa",
		GuestName:     "Amina Juma",
		GuestEmail:    "amina@example.com",
		GuestPhone:    "+255700000000",
		CheckIn:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:      time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		Adults:        2,
		Children:      1,
		Nights:        3,
		Subtotal:      decimal.RequireFromString("300000"),
		TaxAmount:     decimal.RequireFromString("54000"),
		TotalAmount:   decimal.RequireFromString("354000"),
		Status:        models.StatusConfirmed,
		PaymentStatus: models.PaymentPending,
	}
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []Message
	err     error
	block   chan struct{}
	channel string
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Channel() string {
	if f.channel == "" {
		return "fake"
	}
	return f.channel
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(s Sender, cfg DispatcherConfig) *Dispatcher {
	logger := zerolog.Nop()
	return NewDispatcher(s, cfg, &logger)
}

func TestDispatcher_DeliversAsynchronously(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, DispatcherConfig{RatePerSecond: 1000, Burst: 100})
	d.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), Message{Kind: KindBookingConfirmation, Recipient: "a@b.c"}))
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, sender.count())

	for _, m := range sender.sent {
		assert.NotEmpty(t, m.ID, "messages get an id")
	}
}

func TestDispatcher_ReportsSendFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	d := newTestDispatcher(sender, DispatcherConfig{RatePerSecond: 1000, Burst: 100})
	d.Start()

	require.NoError(t, d.Notify(context.Background(), Message{Kind: KindBookingCancellation, Booking: sampleBooking()}))

	select {
	case f := <-d.Failures():
		assert.EqualError(t, f.Err, "smtp down")
		assert.Equal(t, "fake", f.Channel)
		assert.Equal(t, "010625-AB12C", f.Message.Booking.Reference)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure")
	}

	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_LogsEachFailureOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	d := NewDispatcher(&fakeSender{err: errors.New("smtp down")}, DispatcherConfig{Workers: 1, RatePerSecond: 1000, Burst: 100}, &logger)
	d.Start()

	require.NoError(t, d.Notify(context.Background(), Message{Kind: KindBookingConfirmation, Booking: sampleBooking()}))
	f := <-d.Failures()
	assert.Equal(t, KindBookingConfirmation, f.Message.Kind)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1, strings.Count(buf.String(), "notification not delivered"))
	assert.Contains(t, buf.String(), "010625-AB12C")
}

func TestDispatcher_FullQueue(t *testing.T) {
	d := newTestDispatcher(&fakeSender{}, DispatcherConfig{QueueSize: 1})

	require.NoError(t, d.Notify(context.Background(), Message{Kind: KindBookingConfirmation}))
	err := d.Notify(context.Background(), Message{Kind: KindBookingConfirmation})
	assert.ErrorIs(t, err, ErrQueueFull)

	f := <-d.Failures()
	assert.ErrorIs(t, f.Err, ErrQueueFull)

	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Notify(context.Background(), Message{}), ErrClosed)
}

func TestDispatcher_FailureBufferDropsOldest(t *testing.T) {
	d := newTestDispatcher(&fakeSender{}, DispatcherConfig{FailureBuffer: 2})
	require.NoError(t, d.Close(context.Background()))

	for _, ref := range []string{"A", "B", "C"} {
		_ = d.Notify(context.Background(), Message{Booking: models.Booking{Reference: ref}})
	}

	first := <-d.Failures()
	second := <-d.Failures()
	assert.Equal(t, "B", first.Message.Booking.Reference)
	assert.Equal(t, "C", second.Message.Booking.Reference)
}

func TestDispatcher_CloseCancelsSlowSends(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	d := newTestDispatcher(sender, DispatcherConfig{Workers: 1, RatePerSecond: 1000, Burst: 10, SendTimeout: time.Minute})
	d.Start()

	require.NoError(t, d.Notify(context.Background(), Message{Kind: KindBookingConfirmation}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, sender.count())
}

func newTestEmailSender(t *testing.T) (*EmailSender, *[]*mail.Message) {
	t.Helper()
	s, err := NewEmailSender(EmailConfig{
		Host:        "localhost",
		Port:        2525,
		From:        "noreply@daimaescape.com",
		FromName:    "Daima Escape",
		SiteBaseURL: "https://daimaescape.com/",
	})
	require.NoError(t, err)

	var sent []*mail.Message
	s.send = func(m *mail.Message) error {
		sent = append(sent, m)
		return nil
	}
	return s, &sent
}

func TestEmailSender_RenderConfirmation(t *testing.T) {
	s, _ := newTestEmailSender(t)

	subject, body, err := s.Render(Message{Kind: KindBookingConfirmation, Booking: sampleBooking()})
	require.NoError(t, err)

	assert.Equal(t, "Booking Confirmation - 010625-AB12C", subject)
	assert.Contains(t, body, "Dear Amina Juma,")
	assert.Contains(t, body, "Villa: Baobab Villa")
	assert.Contains(t, body, "Check-in: 2025-06-01")
	assert.Contains(t, body, "Guests: 2 Adults, 1 Children")
	assert.Contains(t, body, "Tax (18%): TSh 54000.00")
	assert.Contains(t, body, "Total Amount: TSh 354000.00")
	assert.Contains(t, body, "https://daimaescape.com/booking/detail/010625-AB12C/")
	assert.NotContains(t, body, "Discount")
}

func TestEmailSender_RenderCancellation(t *testing.T) {
	s, _ := newTestEmailSender(t)

	subject, body, err := s.Render(Message{
		Kind:    KindBookingCancellation,
		Booking: sampleBooking(),
		Extra:   map[string]string{"reason": "Change of plans"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Booking Cancellation - 010625-AB12C", subject)
	assert.Contains(t, body, "Reason: Change of plans")

	_, body, err = s.Render(Message{Kind: KindBookingCancellation, Booking: sampleBooking()})
	require.NoError(t, err)
	assert.NotContains(t, body, "Reason:")
}

func TestEmailSender_Send(t *testing.T) {
	s, sent := newTestEmailSender(t)

	err := s.Send(context.Background(), Message{Kind: KindCheckInReminder, Recipient: "amina@example.com", Booking: sampleBooking()})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	m := (*sent)[0]
	assert.Equal(t, []string{"amina@example.com"}, m.GetHeader("To"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Baobab Villa")

	assert.ErrorIs(t, s.Send(context.Background(), Message{Kind: KindCheckInReminder}), ErrNoRecipient)
	assert.ErrorIs(t, s.Send(context.Background(), Message{Kind: KindStaffNewBooking, Recipient: "x@y.z"}), ErrNoChannel)
}

type mockBot struct {
	mock.Mock
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func TestTelegramSender(t *testing.T) {
	bot := new(mockBot)
	s := NewTelegramSender(bot, []int64{100, 200}, "")

	bot.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool {
		return c.ChatID == 100
	})).Return(nil).Once()
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool {
		return c.ChatID == 200
	})).Return(errors.New("forbidden")).Once()

	msg := Message{
		Kind:    KindStaffCancellation,
		Booking: sampleBooking(),
		Extra:   map[string]string{"actor": "Guest", "reason": "Flight cancelled"},
	}
	err := s.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 200")
	bot.AssertExpectations(t)

	text, err := s.format(msg)
	require.NoError(t, err)
	assert.Contains(t, text, "Booking 010625-AB12C cancelled by Guest")
	assert.Contains(t, text, "Reason: Flight cancelled")
	assert.Contains(t, text, "Total: TSh 354000.00")

	_, err = s.format(Message{Kind: KindBookingConfirmation})
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestRouter(t *testing.T) {
	guest := &fakeSender{channel: "email"}
	staff := &fakeSender{channel: "telegram"}
	r := &Router{Guest: guest, Staff: staff}

	require.NoError(t, r.Send(context.Background(), Message{Kind: KindBookingConfirmation}))
	require.NoError(t, r.Send(context.Background(), Message{Kind: KindStaffNewBooking}))
	require.NoError(t, r.Send(context.Background(), Message{Kind: KindStaffCancellation}))

	assert.Equal(t, 1, guest.count())
	assert.Equal(t, 2, staff.count())
	assert.Equal(t, "telegram", r.ChannelFor(KindStaffNewBooking))
	assert.Equal(t, "email", r.ChannelFor(KindCheckInReminder))

	empty := &Router{}
	assert.NoError(t, empty.Send(context.Background(), Message{Kind: KindStaffNewBooking}))
	assert.Equal(t, "none", empty.ChannelFor(KindStaffNewBooking))
}
