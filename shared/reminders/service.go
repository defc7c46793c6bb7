package reminders

import (
	"context"
	"sync"
	"time"
)

// Config controls the reminder poll.
type Config struct {
	// CheckInterval is how often to look for upcoming check-ins.
	// Default: 15 minutes.
	CheckInterval time.Duration

	// Lead is how far ahead of check-in the reminder goes out.
	// Default: 24 hours.
	Lead time.Duration

	// MaxConcurrentNotifications limits parallel sends.
	// Default: 4.
	MaxConcurrentNotifications int

	// Location is the hotel time zone used to turn now+Lead into a date.
	Location *time.Location

	// Now is overridable in tests.
	Now func() time.Time
}

// DefaultConfig polls every 15 minutes for check-ins within the next day.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:              15 * time.Minute,
		Lead:                       24 * time.Hour,
		MaxConcurrentNotifications: 4,
		Location:                   time.UTC,
		Now:                        time.Now,
	}
}

// Service sends check-in reminders to guests.
type Service struct {
	config   *Config
	bookings BookingStore
	sender   *ReminderSender
	metrics  *Metrics
	logger   Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewService fills zero config values from DefaultConfig.
func NewService(
	config *Config,
	bookings BookingStore,
	sender *ReminderSender,
	metrics *Metrics,
	logger Logger,
) *Service {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.Lead <= 0 {
		config.Lead = def.Lead
	}
	if config.MaxConcurrentNotifications <= 0 {
		config.MaxConcurrentNotifications = def.MaxConcurrentNotifications
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}

	return &Service{
		config:   config,
		bookings: bookings,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the poll loop in the background. A second call is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("reminder service started",
		"check_interval", s.config.CheckInterval,
		"lead", s.config.Lead,
	)
}

// Stop ends the poll loop and waits for in-flight sends.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info("reminder service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	s.CheckNow(ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// window returns the check-in dates due a reminder: today through the date
// of now+Lead, both as midnight UTC civil dates.
func (s *Service) window() (from, to time.Time) {
	now := s.config.Now().In(s.config.Location)
	civil := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return civil(now), civil(now.Add(s.config.Lead))
}

// CheckNow runs one pass and returns how many reminders were sent.
func (s *Service) CheckNow(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	from, to := s.window()
	bookings, err := s.bookings.GetUpcomingCheckIns(ctx, from, to)
	if err != nil {
		s.logger.Error("upcoming check-ins query failed", "error", err)
		return 0
	}
	s.metrics.SetDue(len(bookings))
	if len(bookings) == 0 {
		return 0
	}

	s.logger.Debug("Found bookings due a reminder", "count", len(bookings))

	sem := make(chan struct{}, s.config.MaxConcurrentNotifications)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)

	for _, b := range bookings {
		if b.ReminderSent {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := s.sender.SendWithRetry(ctx, b)
			s.metrics.IncOutcome(string(outcome))
			if err != nil {
				s.logger.Error("reminder not sent",
					"reference", b.Reference,
					"outcome", outcome,
					"error", err,
				)
				return
			}

			s.logger.Info("Reminder sent", "reference", b.Reference)
			mu.Lock()
			sent++
			mu.Unlock()
		}()
	}

	wg.Wait()
	return sent
}
