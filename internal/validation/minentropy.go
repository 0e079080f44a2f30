package validation

import (
	"math"
)

// EstimateMCV estimates min-entropy per sample byte using the Most Common
// Value method from NIST SP 800-90B Section 6.3.1. It returns -log2(pmax)
// where pmax is the relative frequency of the most common byte value,
// ranging from 0.0 (all identical) to 8.0 (uniform). Empty input yields 0.0.
func EstimateMCV(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	maxCount := 0
	for _, count := range freq {
		if count > maxCount {
			maxCount = count
		}
	}

	pMax := float64(maxCount) / float64(len(data))
	if pMax >= 1.0 {
		return 0.0
	}

	return -math.Log2(pMax)
}

// EstimateCollision estimates min-entropy using the Collision method from
// NIST SP 800-90B Section 6.3.2. It locates the first repeated byte value
// and computes log2(t) where t is the one-indexed collision position,
// clamped to [0.0, 8.0]. When no collision occurs the function returns 8.0.
// Empty input yields 0.0.
func EstimateCollision(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}
	if len(data) == 1 {
		return 8.0
	}

	var seen [256]bool
	tCollision := 0
	for i, b := range data {
		if seen[b] {
			tCollision = i + 1
			break
		}
		seen[b] = true
	}

	if tCollision == 0 {
		return 8.0
	}
	if tCollision == 2 {
		return 1.0
	}

	estimate := math.Log2(float64(tCollision))
	if estimate > 8.0 {
		estimate = 8.0
	}
	if estimate < 0.0 {
		estimate = 0.0
	}
	return estimate
}

// EstimateMinEntropy returns the lower of the MCV and Collision estimates.
// Following NIST SP 800-90B guidance, the minimum across estimators serves
// as a conservative bound suitable for security applications.
func EstimateMinEntropy(data []byte) float64 {
	mcv := EstimateMCV(data)
	collision := EstimateCollision(data)

	if mcv < collision {
		return mcv
	}
	return collision
}
