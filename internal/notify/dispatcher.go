package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"puzzlehunt/internal/metrics"
	"puzzlehunt/internal/models"
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 1024
	defaultSendTimeout = 30 * time.Second
)

var (
	ErrClosed    = errors.New("dispatcher closed")
	ErrQueueFull = errors.New("notification queue full")
)

// Sender delivers a single rendered message.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DispatcherOptions configures the worker pool.
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		Workers:     defaultWorkers,
		QueueSize:   defaultQueueSize,
		SendTimeout: defaultSendTimeout,
	}
}

// Dispatcher renders notifications and hands them to a bounded pool of
// workers. Dispatch never waits for delivery; Close waits for everything
// already queued.
type Dispatcher struct {
	logger   *zap.Logger
	sender   Sender
	renderer *Renderer
	metrics  *metrics.Metrics
	opts     DispatcherOptions

	jobs chan Message
	wg   sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewDispatcher(logger *zap.Logger, sender Sender, renderer *Renderer, m *metrics.Metrics, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		sender:   sender,
		renderer: renderer,
		metrics:  m,
		opts:     opts,
		jobs:     make(chan Message, opts.QueueSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for range d.opts.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("dispatcher started",
		zap.String("transport", d.sender.Name()),
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
	)
}

// Close stops intake and blocks until queued messages have been attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nobody will drain the queue; attempt the leftovers inline.
		for msg := range d.jobs {
			d.deliver(msg)
		}
		return
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Dispatch renders content for every recipient that wants category c and
// enqueues one message each. It returns how many were queued. A failure for
// one recipient is logged and does not stop the others; the returned error
// joins those failures. Enqueueing never blocks, and a cancelled ctx does
// not cut the fan-out short.
func (d *Dispatcher) Dispatch(ctx context.Context, c Category, content Content, recipients []models.User) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}

	var errs []error
	queued := 0
	for _, u := range recipients {
		if !Wants(u, c) {
			continue
		}
		subject, body, err := d.renderer.Render(c, u, content)
		if err != nil {
			d.logger.Error("render failed",
				zap.String("category", string(c)),
				zap.Int("user_id", u.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		msg := Message{
			ID:       uuid.NewString(),
			Category: c,
			To:       u.Email,
			ToName:   u.DisplayName,
			Subject:  subject,
			HTML:     body,
		}
		if err := d.enqueue(msg); err != nil {
			d.metrics.NotificationsSent.WithLabelValues(string(c), "dropped").Inc()
			d.logger.Warn("notification not queued",
				zap.String("category", string(c)),
				zap.Int("user_id", u.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (d *Dispatcher) enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.jobs <- msg:
		d.metrics.NotificationQueue.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.jobs {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	d.metrics.NotificationQueue.Dec()
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
	defer cancel()

	err := d.safeSend(ctx, msg)
	if err != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(msg.Category), "error").Inc()
		d.logger.Error("notification send failed",
			zap.String("category", string(msg.Category)),
			zap.String("message_id", msg.ID),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return
	}
	d.metrics.NotificationsSent.WithLabelValues(string(msg.Category), "success").Inc()
	d.logger.Debug("notification sent",
		zap.String("category", string(msg.Category)),
		zap.String("message_id", msg.ID),
	)
}

func (d *Dispatcher) safeSend(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return d.sender.Send(ctx, msg)
}
