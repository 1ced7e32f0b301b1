// Package worker runs periodic background jobs such as the expiry sweep and
// the waiting-list promotion pass.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/logger"
)

// ErrRunning is returned by Start on a loop that is already running.
var ErrRunning = errors.New("worker already running")

// Job is one pass of periodic work. It returns how many items it handled.
type Job func(ctx context.Context) (int, error)

// Stats describe what a loop has done so far.
type Stats struct {
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Handled   int64     `json:"handled"`
	LastRun   time.Time `json:"last_run"`
	LastCount int       `json:"last_count"`
	LastError string    `json:"last_error,omitempty"`
}

// Loop runs a Job on a fixed interval, once immediately on start.
type Loop struct {
	name     string
	interval time.Duration
	job      Job
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stats   Stats
}

// New returns a stopped Loop.
func New(name string, interval time.Duration, job Job, log *zap.Logger) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{
		name:     name,
		interval: interval,
		job:      job,
		log:      logger.OrNop(log).Named(name),
	}
}

// Name returns the loop's name.
func (l *Loop) Name() string { return l.name }

// Start launches the loop. It stops when ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.log.Info("worker started", zap.Duration("interval", l.interval))
	l.wg.Add(1)
	go l.run(ctx, l.stopCh)
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
	l.log.Info("worker stopped")
}

// Run starts the loop and blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	l.Stop()
	return nil
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) run(ctx context.Context, stop <-chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one pass. A panicking job is logged and counted as a failure
// so the loop survives it.
func (l *Loop) tick(ctx context.Context) {
	var (
		n   int
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New("job panicked")
				l.log.Error("worker job panicked", zap.Any("panic", r))
			}
		}()
		n, err = l.job(ctx)
	}()

	l.mu.Lock()
	l.stats.Runs++
	l.stats.LastRun = time.Now()
	l.stats.LastCount = n
	l.stats.Handled += int64(n)
	l.stats.LastError = ""
	if err != nil {
		l.stats.Failures++
		l.stats.LastError = err.Error()
	}
	l.mu.Unlock()

	switch {
	case err != nil && ctx.Err() == nil:
		l.log.Warn("worker pass failed", zap.Error(err))
	case n > 0:
		l.log.Info("worker pass", zap.Int("handled", n))
	}
}
