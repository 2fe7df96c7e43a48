package querier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func resetHealthTracker() {
	healthTrackerMu.Lock()
	healthTracker = make(map[string]*endpointHealth)
	healthTrackerMu.Unlock()
}

func TestGetEndpointHealth(t *testing.T) {
	resetHealthTracker()

	h1 := getEndpointHealth("https://a.example")
	require.Same(t, h1, getEndpointHealth("https://a.example"))
	require.NotSame(t, h1, getEndpointHealth("https://b.example"))
}

func TestEndpointBecomesUnhealthy(t *testing.T) {
	resetHealthTracker()
	endpoint := "https://flaky.example"

	for i := 0; i < failureThreshold-1; i++ {
		recordEndpointFailure(endpoint)
	}
	require.True(t, isEndpointHealthy(endpoint))

	recordEndpointFailure(endpoint)
	require.False(t, isEndpointHealthy(endpoint))

	// recovers once the timeout passed
	require.True(t, getEndpointHealth(endpoint).healthy(time.Now().Add(recoveryTimeout)))

	recordEndpointSuccess(endpoint)
	require.True(t, isEndpointHealthy(endpoint))
}

func TestFindHealthyEndpoint(t *testing.T) {
	resetHealthTracker()
	endpoints := []string{"https://a.example", "https://b.example", "https://c.example"}
	require.Equal(t, 0, findHealthyEndpoint(endpoints))

	for i := 0; i < failureThreshold; i++ {
		recordEndpointFailure(endpoints[0])
		recordEndpointFailure(endpoints[1])
	}
	require.Equal(t, 2, findHealthyEndpoint(endpoints))

	for i := 0; i < failureThreshold; i++ {
		recordEndpointFailure(endpoints[2])
	}
	require.Equal(t, 0, findHealthyEndpoint(endpoints))
}
