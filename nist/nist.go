// Package nist implements statistical tests from the NIST SP 800-22 battery
// for judging whether a bit stream is distinguishable from ideal randomness.
// It currently provides the Frequency (Monobit) test and the Block Frequency
// test, both operating on a lazy bitseq.Sequence so the same test code runs
// over in-memory buffers and live entropy sources alike.
//
// Each test drains its sequence in a single pass and returns either a
// p-value at or above the 0.01 pass threshold, or a typed error describing
// why the stream was rejected. A failed test is data about the generator,
// not a bug; callers are expected to handle rejections as ordinary results.
package nist

import (
	"math"

	"github.com/ryankurte/rngcheck/bitseq"
)

const (
	// pValueThreshold is the significance level shared by all tests.
	// Comparisons are written as !(p >= pValueThreshold) so a NaN
	// p-value is rejected rather than silently passing.
	pValueThreshold = 0.01

	// minMonobitBits is the smallest sample for which the monobit
	// statistic is meaningful, per the reference procedure.
	minMonobitBits = 100
)

// FrequencyMonobit runs the NIST Frequency (Monobit) test over the given
// bit sequence, draining it fully. It returns the p-value on success. The
// sequence must carry at least 100 bits or an InsufficientSampleSizeError
// is returned; a p-value below the pass threshold is returned inside a
// BadPValueError alongside the value itself.
func FrequencyMonobit(bits bitseq.Sequence) (float64, error) {
	sum := 0
	n := 0

	// Sum 0/1 as -1/+1.
	for {
		bit, ok := bits.Next()
		if !ok {
			break
		}
		n++
		if bit {
			sum++
		} else {
			sum--
		}
	}

	if n < minMonobitBits {
		return 0, &InsufficientSampleSizeError{Bits: n}
	}

	s := math.Abs(float64(sum)) / math.Sqrt(float64(n))
	p := math.Erfc(s / math.Sqrt2)

	if !(p >= pValueThreshold) {
		return p, &BadPValueError{PValue: p}
	}

	return p, nil
}

// FrequencyBlock runs the NIST Block Frequency test over the given bit
// sequence with blockLen bits per block, draining the sequence fully. A
// trailing partial block is discarded and contributes nothing to the
// statistic. When the sequence holds fewer than blockLen bits the
// chi-square statistic degenerates to zero and the test passes with p = 1.
// blockLen must be positive; FrequencyBlock panics otherwise.
func FrequencyBlock(bits bitseq.Sequence, blockLen int) (float64, error) {
	if blockLen <= 0 {
		panic("nist: block length must be positive")
	}

	blocks := 0
	sumSq := 0.0

	for {
		bitsInBlock := 0
		ones := 0

		for bitsInBlock < blockLen {
			bit, ok := bits.Next()
			if !ok {
				break
			}
			bitsInBlock++
			if bit {
				ones++
			}
		}

		// Discard a short block and stop.
		if bitsInBlock < blockLen {
			break
		}

		d := float64(ones)/float64(blockLen) - 0.5
		sumSq += d * d
		blocks++
	}

	x2 := 4 * float64(blockLen) * sumSq
	p := 1 - regularizedGammaP(float64(blocks)/2, x2/2)

	if !(p >= pValueThreshold) {
		return p, &BadPValueError{PValue: p}
	}

	return p, nil
}
