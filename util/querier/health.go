package querier

import (
	"sync"
	"time"
)

const (
	// Circuit breaker thresholds
	failureThreshold = 3               // consecutive failures before an endpoint is skipped
	recoveryTimeout  = 1 * time.Minute // time before an unhealthy endpoint is tried first again
)

type endpointHealth struct {
	mu            sync.Mutex
	failures      int
	lastFailureAt time.Time
}

func (h *endpointHealth) healthy(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures < failureThreshold {
		return true
	}
	return now.Sub(h.lastFailureAt) >= recoveryTimeout
}

// Global health tracker keyed by endpoint URL; several queriers may share a node
var (
	healthTrackerMu sync.Mutex
	healthTracker   = make(map[string]*endpointHealth)
)

func getEndpointHealth(endpoint string) *endpointHealth {
	healthTrackerMu.Lock()
	defer healthTrackerMu.Unlock()

	h, exists := healthTracker[endpoint]
	if !exists {
		h = &endpointHealth{}
		healthTracker[endpoint] = h
	}
	return h
}

func recordEndpointSuccess(endpoint string) {
	h := getEndpointHealth(endpoint)
	h.mu.Lock()
	h.failures = 0
	h.lastFailureAt = time.Time{}
	h.mu.Unlock()
}

func recordEndpointFailure(endpoint string) {
	h := getEndpointHealth(endpoint)
	h.mu.Lock()
	h.failures++
	h.lastFailureAt = time.Now()
	h.mu.Unlock()
}

func isEndpointHealthy(endpoint string) bool {
	return getEndpointHealth(endpoint).healthy(time.Now())
}

// findHealthyEndpoint returns the index of the first healthy endpoint, or 0 if none are healthy
func findHealthyEndpoint(endpoints []string) int {
	for i, endpoint := range endpoints {
		if isEndpointHealthy(endpoint) {
			return i
		}
	}
	return 0
}
