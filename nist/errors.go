package nist

import (
	"errors"
	"fmt"
)

// ErrRngFailed signals that an external random source could not produce
// output. The frequency tests never raise it themselves; source adapters
// wrap it so callers can distinguish a broken generator from a generator
// that merely produced statistically suspect output.
var ErrRngFailed = errors.New("rng failed")

// InsufficientSampleSizeError reports that a test received fewer bits than
// its statistic requires. Bits carries the observed count so the caller can
// decide whether to gather more data.
type InsufficientSampleSizeError struct {
	Bits int
}

func (e *InsufficientSampleSizeError) Error() string {
	return fmt.Sprintf("insufficient sample size: %d bits", e.Bits)
}

// BadPValueError reports that a computed p-value fell below the pass
// threshold. PValue carries the offending value, which may be NaN.
// A rejection is an ordinary statistical outcome, not a program fault.
type BadPValueError struct {
	PValue float64
}

func (e *BadPValueError) Error() string {
	return fmt.Sprintf("p-value %v below threshold %v", e.PValue, pValueThreshold)
}
