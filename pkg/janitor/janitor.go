// Package janitor runs a cleanup function on a fixed interval in the
// background, decoupled from request handling.
package janitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically invokes a sweep function until stopped
type Janitor struct {
	name     string
	interval time.Duration
	sweep    func()
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	stop      chan struct{}
	stopped   chan struct{}
}

// New creates a janitor. It does nothing until Start is called.
func New(name string, interval time.Duration, sweep func(), logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		name:     name,
		interval: interval,
		sweep:    sweep,
		logger:   logger,
	}
}

// Start launches the sweep routine. Calling Start on a running janitor, or
// one with a non-positive interval, is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning || j.interval <= 0 {
		return
	}

	j.stop = make(chan struct{})
	j.stopped = make(chan struct{})
	j.isRunning = true

	go j.run(ctx, j.stop, j.stopped)

	j.logger.Debug("Janitor started",
		zap.String("janitor", j.name),
		zap.Duration("interval", j.interval))
}

// Stop signals the routine and waits for it to exit. Safe to call repeatedly.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.isRunning {
		return
	}

	close(j.stop)
	<-j.stopped
	j.isRunning = false

	j.logger.Debug("Janitor stopped", zap.String("janitor", j.name))
}

// Running reports whether the sweep routine is active
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.isRunning
}

func (j *Janitor) run(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	defer close(stopped)

	for {
		select {
		case <-ticker.C:
			j.safeSweep()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// safeSweep keeps a panicking sweep from killing the process
func (j *Janitor) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("Janitor sweep panicked",
				zap.String("janitor", j.name),
				zap.Any("panic", r))
		}
	}()
	j.sweep()
}
