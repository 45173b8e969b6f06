package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/specialistvlad/stalegrid/internal/app"
)

// Test for: consumers of one producer start after it and run in parallel.
func TestDagConcurrency_FanOutExecution(t *testing.T) {
	// --- Arrange ---
	sleeper := newSleeper(100 * time.Millisecond)
	src := sleeperHCL("", map[string][]string{
		"root":   nil,
		"left":   {"root"},
		"middle": {"root"},
		"right":  {"root"},
	})

	// --- Act ---
	runSleepers(t, app.Config{Workers: 3}, src, sleeper)

	// --- Assert ---
	root := sleeper.record(t, "root")
	branches := []app.ExecutionRecord{
		sleeper.record(t, "left"),
		sleeper.record(t, "middle"),
		sleeper.record(t, "right"),
	}
	for _, b := range branches {
		assert.False(t, b.Start.Before(root.End), "branch started before its producer finished")
	}
	assert.True(t, branches[0].Overlaps(branches[1]), "left and middle should run concurrently")
	assert.True(t, branches[1].Overlaps(branches[2]), "middle and right should run concurrently")
	assert.True(t, branches[0].Overlaps(branches[2]), "left and right should run concurrently")
}
