// Package validation implements continuous health tests per NIST SP 800-90B
// Section 4.4 and min-entropy estimators per Section 6. The health tests run
// over every byte delivered by an entropy source and catch catastrophic
// failures (stuck outputs, severe bias) far faster than the periodic
// statistical tests can.
package validation

import (
	"sync"
)

// Default parameters from NIST SP 800-90B for alpha = 2^-40.
const (
	DefaultRepetitionCutoff = 40
	DefaultProportionCutoff = 605
	DefaultProportionWindow = 4096
)

// RepetitionCountTest implements the Repetition Count Test from
// NIST SP 800-90B Section 4.4.1. It fails when a byte value repeats
// cutoff or more consecutive times. Safe for concurrent use.
type RepetitionCountTest struct {
	mu      sync.Mutex
	cutoff  int
	last    byte
	repeats int
	primed  bool
}

// NewRepetitionCountTest returns a repetition count test with the given
// cutoff. Non-positive cutoffs default to DefaultRepetitionCutoff.
func NewRepetitionCountTest(cutoff int) *RepetitionCountTest {
	if cutoff <= 0 {
		cutoff = DefaultRepetitionCutoff
	}
	return &RepetitionCountTest{cutoff: cutoff}
}

// Test feeds one sample byte and reports whether the test still passes.
func (rct *RepetitionCountTest) Test(sample byte) bool {
	rct.mu.Lock()
	defer rct.mu.Unlock()

	if !rct.primed {
		rct.last = sample
		rct.repeats = 1
		rct.primed = true
		return true
	}

	if sample == rct.last {
		rct.repeats++
		return rct.repeats < rct.cutoff
	}

	rct.last = sample
	rct.repeats = 1
	return true
}

// TestBlock feeds a contiguous block, returning false on the first sample
// that trips the cutoff.
func (rct *RepetitionCountTest) TestBlock(samples []byte) bool {
	for _, sample := range samples {
		if !rct.Test(sample) {
			return false
		}
	}
	return true
}

// Reset returns the test to its unprimed state. Typically called after a
// failure before resuming collection.
func (rct *RepetitionCountTest) Reset() {
	rct.mu.Lock()
	defer rct.mu.Unlock()

	rct.last = 0
	rct.repeats = 0
	rct.primed = false
}

// AdaptiveProportionTest implements the Adaptive Proportion Test from
// NIST SP 800-90B Section 4.4.2. It counts how often the first sample of a
// window recurs within that window and fails when the count reaches the
// cutoff. Safe for concurrent use.
type AdaptiveProportionTest struct {
	mu      sync.Mutex
	cutoff  int
	window  int
	first   byte
	matches int
	seen    int
}

// NewAdaptiveProportionTest returns an adaptive proportion test with the
// given cutoff and window size. Non-positive values default to
// DefaultProportionCutoff and DefaultProportionWindow.
func NewAdaptiveProportionTest(cutoff, window int) *AdaptiveProportionTest {
	if cutoff <= 0 {
		cutoff = DefaultProportionCutoff
	}
	if window <= 0 {
		window = DefaultProportionWindow
	}
	return &AdaptiveProportionTest{cutoff: cutoff, window: window}
}

// Test feeds one sample byte. It returns true while the current window is
// still filling; on window completion it reports whether the recurrence
// count stayed below the cutoff and starts a new window.
func (apt *AdaptiveProportionTest) Test(sample byte) bool {
	apt.mu.Lock()
	defer apt.mu.Unlock()

	if apt.seen == 0 {
		apt.first = sample
		apt.matches = 1
	} else if sample == apt.first {
		apt.matches++
	}

	apt.seen++

	if apt.seen >= apt.window {
		passed := apt.matches < apt.cutoff
		apt.seen = 0
		apt.matches = 0
		return passed
	}

	return true
}

// TestBlock feeds a contiguous block, returning false if any completed
// window within it fails.
func (apt *AdaptiveProportionTest) TestBlock(samples []byte) bool {
	for _, sample := range samples {
		if !apt.Test(sample) {
			return false
		}
	}
	return true
}

// Reset discards the current window.
func (apt *AdaptiveProportionTest) Reset() {
	apt.mu.Lock()
	defer apt.mu.Unlock()

	apt.first = 0
	apt.matches = 0
	apt.seen = 0
}
