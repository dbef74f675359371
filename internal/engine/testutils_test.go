package engine_test

import (
	"testing"
	"time"
)

// waitForCondition polls cond every 5ms until it returns true or timeout
// elapses, failing the test otherwise. A retry-tolerant polling helper for
// assertions that depend on goroutine scheduling rather than a hard
// synchronization point.
func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
