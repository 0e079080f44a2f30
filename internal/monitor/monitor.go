// Package monitor runs periodic statistical assessments of an entropy
// source and exposes the outcomes to metrics and reporting.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/ryankurte/rngcheck/bitseq"
	"github.com/ryankurte/rngcheck/internal/clock"
	"github.com/ryankurte/rngcheck/internal/metrics"
	"github.com/ryankurte/rngcheck/internal/source"
	"github.com/ryankurte/rngcheck/internal/validation"
	"github.com/ryankurte/rngcheck/nist"
)

// minEntropySampleBytes is the sample size drawn per round for the
// min-entropy estimate.
const minEntropySampleBytes = 4096

// Test name constants as used in verdicts and metric labels.
const (
	TestMonobit = "frequency_monobit"
	TestBlock   = "frequency_block"
)

// Failure reason constants as used in verdicts and metric labels.
const (
	ReasonRngFailed          = "rng_failed"
	ReasonInsufficientSample = "insufficient_sample"
	ReasonBadPValue          = "bad_p_value"
)

// Verdict is the outcome of a single statistical test run.
type Verdict struct {
	Test       string    `json:"test"`
	Passed     bool      `json:"passed"`
	PValue     float64   `json:"p_value"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	SampleBits int       `json:"sample_bits"`
	BlockLen   int       `json:"block_len,omitempty"`
	Time       time.Time `json:"time"`
}

// MarshalJSON encodes the verdict with a NaN p-value rendered as null,
// since encoding/json rejects NaN outright.
func (v Verdict) MarshalJSON() ([]byte, error) {
	type alias Verdict
	wire := struct {
		alias
		PValue *float64 `json:"p_value"`
	}{alias: alias(v)}
	if !math.IsNaN(v.PValue) {
		wire.PValue = &v.PValue
	}
	return json.Marshal(wire)
}

// Publisher forwards verdicts to an external sink.
type Publisher interface {
	Publish(verdict Verdict) error
}

// Monitor drives the assessment loop against a single entropy source.
type Monitor struct {
	src        source.Source
	sampleBits int
	blockLen   int
	interval   time.Duration

	clockSource clock.Clock
	publisher   Publisher

	mu   sync.Mutex
	last []Verdict

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customises monitor construction.
type Option func(*Monitor)

// WithClock substitutes the time source, used by tests to drive the loop
// deterministically.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clockSource = c
	}
}

// WithPublisher attaches a verdict sink.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) {
		m.publisher = p
	}
}

// New creates a monitor over the given source. sampleBits is the number
// of bits drawn per test per round, blockLen the block frequency block
// length, interval the time between rounds.
func New(src source.Source, sampleBits, blockLen int, interval time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		src:         src,
		sampleBits:  sampleBits,
		blockLen:    blockLen,
		interval:    interval,
		clockSource: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the assessment loop. The first round runs after one
// interval has elapsed. Stop the loop via Close or context cancellation.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		log.Printf("monitor: started (sample=%d bits, block=%d, interval=%s)",
			m.sampleBits, m.blockLen, m.interval)
		for {
			select {
			case <-ctx.Done():
				log.Printf("monitor: stopped")
				return
			case <-m.clockSource.After(m.interval):
				m.RunOnce()
			}
		}
	}()
}

// Close stops the assessment loop and waits for the current round to
// finish.
func (m *Monitor) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// RunOnce draws fresh sample bits for each test, evaluates both frequency
// tests and records the verdicts. It is called by the loop but may also
// be invoked directly for a one-shot assessment.
func (m *Monitor) RunOnce() []Verdict {
	now := m.clockSource.Now()
	verdicts := []Verdict{
		m.runMonobit(now),
		m.runBlock(now),
	}

	metrics.RecordAssessment(now)
	m.estimateMinEntropy()

	for _, v := range verdicts {
		if v.Passed {
			log.Printf("monitor: %s pass (p=%.6f, n=%d)", v.Test, v.PValue, v.SampleBits)
		} else {
			log.Printf("monitor: %s FAIL (%s, p=%v, n=%d): %s",
				v.Test, v.Reason, v.PValue, v.SampleBits, v.Error)
		}
		if m.publisher != nil {
			if err := m.publisher.Publish(v); err != nil {
				log.Printf("monitor: publish failed: %v", err)
				metrics.RecordReportError()
			} else {
				metrics.RecordReportPublished()
			}
		}
	}

	m.mu.Lock()
	m.last = verdicts
	m.mu.Unlock()

	return verdicts
}

// LastVerdicts returns a copy of the most recent round's verdicts, or nil
// if no round has completed yet.
func (m *Monitor) LastVerdicts() []Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	out := make([]Verdict, len(m.last))
	copy(out, m.last)
	return out
}

// estimateMinEntropy draws a fresh byte sample and publishes a
// conservative min-entropy estimate. A read failure only skips the
// estimate; the test verdicts already cover source health.
func (m *Monitor) estimateMinEntropy() {
	sample := make([]byte, minEntropySampleBytes)
	if err := m.src.Fill(sample); err != nil {
		log.Printf("monitor: min-entropy sample read failed: %v", err)
		metrics.RecordSourceReadError()
		return
	}
	metrics.RecordSourceBits(len(sample) * 8)

	estimate := validation.EstimateMinEntropy(sample)
	metrics.SetMinEntropyEstimate(estimate)
	log.Printf("monitor: min-entropy estimate %.3f bits/byte", estimate)
}

func (m *Monitor) runMonobit(now time.Time) Verdict {
	words := source.NewWords(m.src)
	bits := bitseq.FromWords(words, m.sampleBits)
	p, testErr := nist.FrequencyMonobit(bits)
	metrics.RecordSourceBits(m.sampleBits)

	return m.verdict(TestMonobit, 0, now, p, words.Err(), testErr)
}

func (m *Monitor) runBlock(now time.Time) Verdict {
	words := source.NewWords(m.src)
	bits := bitseq.FromWords(words, m.sampleBits)
	p, testErr := nist.FrequencyBlock(bits, m.blockLen)
	metrics.RecordSourceBits(m.sampleBits)

	return m.verdict(TestBlock, m.blockLen, now, p, words.Err(), testErr)
}

// verdict classifies the outcome of one test run. A source read failure
// takes precedence over the statistical outcome: bits that were never
// read say nothing about the generator.
func (m *Monitor) verdict(test string, blockLen int, now time.Time, p float64, srcErr, testErr error) Verdict {
	v := Verdict{
		Test:       test,
		PValue:     p,
		SampleBits: m.sampleBits,
		BlockLen:   blockLen,
		Time:       now,
	}

	if srcErr != nil {
		metrics.RecordSourceReadError()
		v.Reason = ReasonRngFailed
		v.Error = srcErr.Error()
		v.PValue = math.NaN()
		metrics.RecordTestFailure(test, v.Reason, 0, false)
		return v
	}

	if testErr != nil {
		v.Error = testErr.Error()
		var insufficient *nist.InsufficientSampleSizeError
		var badP *nist.BadPValueError
		switch {
		case errors.As(testErr, &insufficient):
			v.Reason = ReasonInsufficientSample
			metrics.RecordTestFailure(test, v.Reason, 0, false)
		case errors.As(testErr, &badP):
			v.Reason = ReasonBadPValue
			metrics.RecordTestFailure(test, v.Reason, p, !math.IsNaN(p))
		default:
			v.Reason = ReasonRngFailed
			metrics.RecordTestFailure(test, v.Reason, 0, false)
		}
		return v
	}

	v.Passed = true
	metrics.RecordTestPass(test, p)
	return v
}
