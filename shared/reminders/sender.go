package reminders

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"daimaescape/internal/models"
)

// RetryConfig lists the pause before each retry; MaxRetries bounds the count.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig retries after 1s, 5s and 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return time.Second
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether a delivery error will not go away on retry:
// errors wrapped with Permanent and SMTP 5xx replies (bad mailbox, rejected
// recipient).
func IsPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	var smtpErr *textproto.Error
	if errors.As(err, &smtpErr) {
		return smtpErr.Code >= 500 && smtpErr.Code < 600
	}
	return false
}

// Outcome of one reminder delivery.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ReminderSender delivers one reminder per booking and records it in the store.
type ReminderSender struct {
	notifier    Notifier
	bookings    BookingStore
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	metrics     *Metrics
	logger      Logger
}

// ReminderSenderConfig pairs the rate limit with the retry policy.
type ReminderSenderConfig struct {
	RateLimiter RateLimiterConfig
	Retry       RetryConfig
}

func DefaultReminderSenderConfig() ReminderSenderConfig {
	return ReminderSenderConfig{
		RateLimiter: DefaultRateLimiterConfig(),
		Retry:       DefaultRetryConfig(),
	}
}

// NewReminderSender creates a new reminder sender. metrics may be nil.
func NewReminderSender(
	notifier Notifier,
	bookings BookingStore,
	config ReminderSenderConfig,
	metrics *Metrics,
	logger Logger,
) *ReminderSender {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ReminderSender{
		notifier:    notifier,
		bookings:    bookings,
		rateLimiter: NewRateLimiter(config.RateLimiter),
		retryConfig: config.Retry,
		metrics:     metrics,
		logger:      logger,
	}
}

// SendWithRetry delivers the reminder for b. A sent reminder, and one that
// failed permanently, is marked so it is not picked up again. When retries
// run out on transient errors the booking stays unmarked for the next poll.
func (s *ReminderSender) SendWithRetry(ctx context.Context, b models.Booking) (Outcome, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveSendDuration(time.Since(started)) }()

	waited, err := s.rateLimiter.Wait(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("rate limiter: %w", err)
	}
	if waited {
		s.metrics.IncRateLimitWaits()
	}

	var lastErr error
	maxRetries := s.retryConfig.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := s.notifier.SendReminder(ctx, b)
		if err == nil {
			return OutcomeSent, s.markAsSent(ctx, b)
		}
		lastErr = err

		if IsPermanent(err) {
			s.logger.Error("reminder rejected",
				"reference", b.Reference,
				"error", err)
			if markErr := s.markAsSent(ctx, b); markErr != nil {
				return OutcomeFailed, markErr
			}
			return OutcomeFailed, err
		}

		if attempt < maxRetries {
			delay := s.retryConfig.delay(attempt)
			s.metrics.IncRetries()
			s.logger.Info("retrying reminder send",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay", delay,
				"error", err)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return OutcomeSkipped, ctx.Err()
			}
		}
	}

	s.logger.Error("max retries exceeded for reminder",
		"reference", b.Reference,
		"error", lastErr)
	return OutcomeFailed, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *ReminderSender) markAsSent(ctx context.Context, b models.Booking) error {
	if err := s.bookings.MarkReminderSent(ctx, b.ID); err != nil {
		s.logger.Error("failed to mark reminder as sent",
			"booking_id", b.ID,
			"error", err)
		return err
	}
	return nil
}
