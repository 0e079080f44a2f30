package source

import (
	"encoding/binary"
	"fmt"

	"github.com/ryankurte/rngcheck/internal/metrics"
	"github.com/ryankurte/rngcheck/internal/validation"
	"github.com/ryankurte/rngcheck/nist"
)

// Health test names as used in metric labels.
const (
	healthRepetitionCount    = "repetition_count"
	healthAdaptiveProportion = "adaptive_proportion"
)

// Checked wraps a Source with the NIST SP 800-90B continuous health tests.
// Every byte delivered through Fill or Next32 is fed to a repetition count
// test and an adaptive proportion test; a tripped test fails the read with
// ErrRngFailed. The tripped test is reset afterwards so later assessment
// rounds observe the source fresh rather than staying latched on one
// transient fault.
type Checked struct {
	src Source
	rct *validation.RepetitionCountTest
	apt *validation.AdaptiveProportionTest
}

// NewChecked wraps src with continuous health tests using the SP 800-90B
// default parameters.
func NewChecked(src Source) *Checked {
	return &Checked{
		src: src,
		rct: validation.NewRepetitionCountTest(0),
		apt: validation.NewAdaptiveProportionTest(0, 0),
	}
}

// Fill reads len(p) bytes from the wrapped source and screens them.
func (c *Checked) Fill(p []byte) error {
	if err := c.src.Fill(p); err != nil {
		return err
	}
	return c.screen(p)
}

// Next32 reads one 32-bit word from the wrapped source and screens its
// bytes.
func (c *Checked) Next32() (uint32, error) {
	word, err := c.src.Next32()
	if err != nil {
		return 0, err
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	if err := c.screen(buf[:]); err != nil {
		return 0, err
	}
	return word, nil
}

func (c *Checked) screen(p []byte) error {
	if !c.rct.TestBlock(p) {
		metrics.RecordHealthTestFailure(healthRepetitionCount)
		c.rct.Reset()
		return fmt.Errorf("health check: repetition count exceeded: %w", nist.ErrRngFailed)
	}
	if !c.apt.TestBlock(p) {
		metrics.RecordHealthTestFailure(healthAdaptiveProportion)
		c.apt.Reset()
		return fmt.Errorf("health check: adaptive proportion exceeded: %w", nist.ErrRngFailed)
	}
	return nil
}
