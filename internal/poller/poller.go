// Package poller announces issues and hints as they become available.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"puzzlehunt/internal/metrics"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/timegate"
)

const DefaultInterval = 600 * time.Second

// Source lists live content whose notified_at marker is still unset.
type Source interface {
	PendingIssues(ctx context.Context, now time.Time) ([]models.Issue, error)
	PendingHints(ctx context.Context, today time.Time) ([]models.Hint, error)
}

// Announcer performs an idempotent announcement of one item.
type Announcer interface {
	AnnounceIssue(ctx context.Context, issue models.Issue, now time.Time) (bool, error)
	AnnounceHint(ctx context.Context, hint models.Hint, now time.Time) (bool, error)
}

// Poller scans for newly visible content on a fixed interval. It is either
// running or stopped.
type Poller struct {
	source    Source
	announcer Announcer
	logger    *zap.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(src Source, ann Announcer, logger *zap.Logger, m *metrics.Metrics, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:    src,
		announcer: ann,
		logger:    logger.Named("poller"),
		metrics:   m,
		interval:  interval,
		now:       time.Now,
	}
}

// Running reports the current state.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins scanning in the background, first immediately and then once
// per interval. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
}

// Stop prevents further cycles and waits for the current one to finish.
// Notifications already handed to the dispatcher are not affected.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("poller stopped")
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan. Everything live and not yet marked as
// announced is picked up, however long the process was down.
func (p *Poller) RunOnce(ctx context.Context) {
	now := p.now().UTC()
	p.scanIssues(ctx, now)
	p.scanHints(ctx, now)
	p.metrics.PollerCycles.Inc()
}

func (p *Poller) scanIssues(ctx context.Context, now time.Time) {
	issues, err := p.source.PendingIssues(ctx, now)
	if err != nil {
		p.logger.Error("list issues", zap.Error(err))
		return
	}
	for _, issue := range issues {
		if ctx.Err() != nil {
			return
		}
		if !timegate.IsVisible(now, issue.AvailableAt) {
			continue
		}
		p.guard("issue", issue.ID, func() error {
			_, err := p.announcer.AnnounceIssue(ctx, issue, now)
			return err
		})
	}
}

func (p *Poller) scanHints(ctx context.Context, now time.Time) {
	hints, err := p.source.PendingHints(ctx, timegate.Today(now))
	if err != nil {
		p.logger.Error("list hints", zap.Error(err))
		return
	}
	for _, hint := range hints {
		if ctx.Err() != nil {
			return
		}
		if !timegate.DateVisible(now, hint.UnlockDate) {
			continue
		}
		p.guard("hint", hint.ID, func() error {
			_, err := p.announcer.AnnounceHint(ctx, hint, now)
			return err
		})
	}
}

// guard runs fn for one item, turning an error or panic into a log line so
// the rest of the cycle continues.
func (p *Poller) guard(kind string, id int, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		p.metrics.PollerItemErrors.WithLabelValues(kind).Inc()
		p.logger.Error("announce failed", zap.String("kind", kind), zap.Int("id", id), zap.Error(err))
	}
}
