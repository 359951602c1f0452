package testutil

import (
	"runtime"
	"testing"
	"time"
)

// Baseline records the current goroutine count for AssertNoGoroutineLeaks
func Baseline() int {
	return runtime.NumGoroutine()
}

// AssertNoGoroutineLeaks waits for the goroutine count to settle back to
// baseline plus margin, failing the test if it does not within five seconds.
func AssertNoGoroutineLeaks(t *testing.T, baseline int, margin int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= baseline+margin {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("Goroutine leak: baseline=%d, current=%d, margin=%d", baseline, runtime.NumGoroutine(), margin)
}
