package querier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/semaphore"

	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/types"
)

// Post sends one JSON-RPC request body and returns the raw response.
// The request timeout is shortened to the context deadline when that comes first.
func Post(ctx context.Context, client *fiber.Client, limiter *semaphore.Weighted, url string, req types.JSONRPCRequest, timeout time.Duration) (body []byte, err error) {
	if limiter == nil {
		return nil, types.NewLimiterNotInitializedError()
	}

	apiMetrics := metrics.GetMetrics().ExternalAPI
	status := "error"
	start := time.Now()
	defer func() {
		apiMetrics.RequestsTotal.WithLabelValues(req.Method, status).Inc()
		apiMetrics.Latency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	semaphoreStart := time.Now()
	if err := limiter.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer limiter.Release(1)
	apiMetrics.SemaphoreWaitDuration.Observe(time.Since(semaphoreStart).Seconds())

	apiMetrics.ConcurrentActive.Inc()
	defer apiMetrics.ConcurrentActive.Dec()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, types.NewTimeoutError(req.Method)
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	code, body, errs := client.Post(url).JSON(req).Timeout(timeout).Bytes()
	if err := errors.Join(errs...); err != nil {
		return nil, types.NewNetworkError(url, err)
	}

	switch code {
	case fiber.StatusOK:
		status = "ok"
		return body, nil
	case fiber.StatusTooManyRequests:
		apiMetrics.RateLimitHitsTotal.WithLabelValues(req.Method).Inc()
		status = "rate_limited"
		return nil, types.NewNetworkError(url, fiber.ErrTooManyRequests)
	default:
		return nil, types.NewNetworkError(url, fmt.Errorf("http response: %d, body: %s", code, string(body)))
	}
}
