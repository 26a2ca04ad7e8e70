package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs named background tasks on fixed intervals; the engine
// uses it for housekeeping like the stale-execution report. A panic in
// a task is logged and the ticker keeps running.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]chan struct{}
	stopped chan struct{}
	logger  *zap.Logger
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker runs fn every interval until the task is removed or the
// scheduler stops. Registering an existing name replaces the task.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn func()) {
	s.mu.Lock()
	if old, ok := s.tickers[name]; ok {
		close(old)
	}
	done := make(chan struct{})
	s.tickers[name] = done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-done:
				return
			case <-s.stopped:
				return
			}
		}
	}()
	s.logger.Info("background task registered",
		zap.String("task", name),
		zap.Duration("interval", interval))
}

func (s *Scheduler) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background task panicked",
				zap.String("task", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

// Remove stops the named task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done, ok := s.tickers[name]; ok {
		close(done)
		delete(s.tickers, name)
	}
}

// Stop stops every task. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}
