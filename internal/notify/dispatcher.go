package notify

import (
	"context"
	"sync"
	"time"

	"daimaescape/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DispatcherConfig tunes the asynchronous delivery queue.
type DispatcherConfig struct {
	QueueSize     int
	Workers       int
	RatePerSecond float64
	Burst         int
	SendTimeout   time.Duration
	FailureBuffer int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.FailureBuffer <= 0 {
		c.FailureBuffer = 64
	}
}

// Dispatcher queues notifications and delivers them from a pool of workers.
// Each message is attempted at most once. Undelivered messages are logged,
// counted and published on Failures.
type Dispatcher struct {
	sender   Sender
	cfg      DispatcherConfig
	queue    chan Message
	failures chan Failure
	limiter  *rate.Limiter
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zerolog.Logger) *Dispatcher {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender:   sender,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
		failures: make(chan Failure, cfg.FailureBuffer),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:   logger.With().Str("component", "notify").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. Calling it twice has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info().Int("workers", d.cfg.Workers).Int("queue", d.cfg.QueueSize).Msg("notification dispatcher started")
}

// Notify enqueues msg and returns immediately. A full queue drops the message
// and reports it as a failure.
func (d *Dispatcher) Notify(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.report(msg, ErrClosed)
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.report(msg, ErrQueueFull)
		return ErrQueueFull
	}
}

// Failures exposes undelivered notifications. When nobody reads it the
// oldest failures are discarded.
func (d *Dispatcher) Failures() <-chan Failure {
	return d.failures
}

// Close stops accepting messages and waits for queued ones to be delivered
// until ctx expires; in-flight sends are then cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for msg := range d.queue {
		if err := d.limiter.Wait(d.ctx); err != nil {
			d.report(msg, err)
			continue
		}
		d.deliver(msg)
	}
	d.logger.Debug().Int("worker", id).Msg("notification worker stopped")
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.report(msg, err)
		return
	}

	metrics.IncNotification(string(msg.Kind), d.channel(msg.Kind), "sent")
	d.logger.Debug().
		Str("id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("reference", msg.Booking.Reference).
		Msg("notification sent")
}

func (d *Dispatcher) channel(kind Kind) string {
	if r, ok := d.sender.(interface{ ChannelFor(Kind) string }); ok {
		return r.ChannelFor(kind)
	}
	return d.sender.Channel()
}

func (d *Dispatcher) report(msg Message, err error) {
	f := Failure{Message: msg, Channel: d.channel(msg.Kind), Err: err, At: time.Now()}

	metrics.IncNotification(string(msg.Kind), f.Channel, "failed")
	d.logger.Error().
		Err(err).
		Str("id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("channel", f.Channel).
		Str("reference", msg.Booking.Reference).
		Msg("notification not delivered")

	for {
		select {
		case d.failures <- f:
			return
		default:
		}
		// Drop the oldest failure to make room.
		select {
		case <-d.failures:
		default:
		}
	}
}
