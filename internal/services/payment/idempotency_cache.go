package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/pkg/observability"
	"github.com/corepay/payment-gateway/pkg/timeutil"
)

// IdempotentExecutor layers three defenses between a caller-supplied
// idempotency key and the card processor:
//
//  1. a bounded in-process cache for hot duplicates,
//  2. a durable record per (scope, key) that survives restarts,
//  3. singleflight so concurrent duplicates in one process share a single
//     processor call instead of racing.
//
// Only terminal results are recorded. A decline is terminal and caches like
// a success; a transient failure (timeout, 5xx from the processor, database
// outage) is never cached, so the next submission with the same key retries
// the operation for real.
type IdempotentExecutor struct {
	db     ports.DBPort
	repo   ports.IdempotencyRepository
	logger ports.Logger

	group singleflight.Group

	mu       sync.Mutex
	memory   map[string][]byte
	order    []string
	capacity int
}

// NewIdempotentExecutor creates an executor with the given in-memory
// capacity. Capacity bounds only the hot cache; the durable layer is
// unbounded.
func NewIdempotentExecutor(db ports.DBPort, repo ports.IdempotencyRepository, capacity int, logger ports.Logger) *IdempotentExecutor {
	if capacity < 1 {
		capacity = 1
	}
	return &IdempotentExecutor{
		db:       db,
		repo:     repo,
		logger:   logger,
		memory:   make(map[string][]byte, capacity),
		capacity: capacity,
	}
}

// GetOrCompute returns the recorded result for (scope, key), computing and
// recording it when absent. The bool reports whether the result came from a
// cache layer rather than this call's compute.
func (e *IdempotentExecutor) GetOrCompute(ctx context.Context, scope models.IdempotencyScope, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	cacheKey := fmt.Sprintf("%s:%s", scope, key)

	if result, ok := e.lookupMemory(cacheKey); ok {
		observability.IdempotencyHits.WithLabelValues(string(scope), "memory").Inc()
		return result, true, nil
	}

	if record, err := e.repo.Get(ctx, e.db.GetDB(), scope, key); err == nil && record != nil {
		observability.IdempotencyHits.WithLabelValues(string(scope), "durable").Inc()
		e.storeMemory(cacheKey, record.Result)
		return record.Result, true, nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		e.logger.Warn("idempotency lookup failed, proceeding without cache",
			ports.String("scope", string(scope)),
			ports.Err(err))
	}

	type outcome struct {
		result []byte
		shared bool
	}

	v, err, _ := e.group.Do(cacheKey, func() (interface{}, error) {
		// a concurrent duplicate may have completed while we waited
		if result, ok := e.lookupMemory(cacheKey); ok {
			return outcome{result: result, shared: true}, nil
		}

		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		record := &models.IdempotencyRecord{
			Scope:     scope,
			Key:       key,
			Result:    result,
			CreatedAt: timeutil.Now(),
		}
		surviving, putErr := e.repo.PutIfAbsent(ctx, e.db.GetDB(), record)
		if putErr != nil {
			// the operation itself succeeded; losing the record only costs
			// dedup for this key, so log and return the live result
			e.logger.Error("failed to persist idempotency record",
				ports.String("scope", string(scope)),
				ports.Err(putErr))
			surviving = record
		}

		e.storeMemory(cacheKey, surviving.Result)
		return outcome{result: surviving.Result, shared: false}, nil
	})
	if err != nil {
		return nil, false, err
	}

	o := v.(outcome)
	return o.result, o.shared, nil
}

func (e *IdempotentExecutor) lookupMemory(key string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, ok := e.memory[key]
	return result, ok
}

func (e *IdempotentExecutor) storeMemory(key string, result []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.memory[key]; exists {
		return
	}
	e.memory[key] = result
	e.order = append(e.order, key)
	for len(e.order) > e.capacity {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.memory, oldest)
	}
}
