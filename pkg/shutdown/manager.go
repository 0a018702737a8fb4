// Package shutdown coordinates graceful shutdown across components.
// Handlers run in LIFO order so dependencies close after their dependents:
// HTTP servers stop accepting first, then the scheduler, then the worker
// pool drains, and the database pool closes last.
package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/corepay/payment-gateway/internal/domain/ports"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Time taken for graceful shutdown",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	shutdownHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_handler_errors_total",
		Help: "Shutdown handlers that returned an error",
	}, []string{"handler"})
)

// Handler is a named cleanup function invoked during shutdown
type Handler struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Manager runs registered shutdown handlers in reverse registration order
type Manager struct {
	mu       sync.Mutex
	handlers []Handler
	timeout  time.Duration
	logger   ports.Logger
	done     chan struct{}
	once     sync.Once
}

// NewManager creates a shutdown manager with the given overall timeout
func NewManager(timeout time.Duration, logger ports.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a handler. Handlers run LIFO on Shutdown.
func (m *Manager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Fn: fn})
}

// Shutdown runs all handlers in reverse order. Safe to call more than once;
// subsequent calls wait for the first to finish.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		defer close(m.done)

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.mu.Lock()
		handlers := make([]Handler, len(m.handlers))
		copy(handlers, m.handlers)
		m.mu.Unlock()

		for i := len(handlers) - 1; i >= 0; i-- {
			h := handlers[i]
			m.logger.Info("shutting down component", ports.String("component", h.Name))
			if err := h.Fn(ctx); err != nil {
				shutdownHandlerErrors.WithLabelValues(h.Name).Inc()
				m.logger.Error("shutdown handler failed",
					ports.String("component", h.Name),
					ports.Err(err))
			}
		}

		shutdownDuration.Observe(time.Since(start).Seconds())
		m.logger.Info("graceful shutdown complete",
			ports.String("duration", time.Since(start).String()))
	})
	<-m.done
}
