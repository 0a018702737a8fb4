// Package scheduler runs recurring background jobs on fixed intervals.
// Jobs run sequentially per schedule; a slow run delays the next tick
// rather than overlapping with it.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/pkg/correlation"
)

// Job is a recurring unit of work. Errors are logged, never fatal; the next
// tick always fires.
type Job func(ctx context.Context) error

type schedule struct {
	name     string
	interval time.Duration
	job      Job
}

// Scheduler drives registered jobs with time.Ticker loops
type Scheduler struct {
	logger    ports.Logger
	schedules []schedule

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New creates an empty scheduler
func New(logger ports.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds a named job with its interval. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, schedule{name: name, interval: interval, job: job})
}

// Start launches one goroutine per registered schedule
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, sc := range s.schedules {
		s.wg.Add(1)
		go s.loop(ctx, sc)
	}
	s.logger.Info("scheduler started", ports.Int("jobs", len(s.schedules)))
}

// Shutdown cancels job contexts and waits for in-flight runs to finish
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, sc schedule) {
	defer s.wg.Done()

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, sc)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, sc schedule) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", ports.String("job", sc.name))
		}
	}()

	runCtx, id := correlation.Ensure(ctx)
	start := time.Now()
	if err := sc.job(runCtx); err != nil {
		s.logger.Error("scheduled job failed",
			ports.String("job", sc.name),
			ports.String("correlation_id", id),
			ports.Err(err))
		return
	}
	s.logger.Debug("scheduled job complete",
		ports.String("job", sc.name),
		ports.String("duration", time.Since(start).String()))
}
