package source

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tarm/serial"

	"github.com/ryankurte/rngcheck/nist"
)

const stuckCheckBytes = 64

// NewSerial opens a hardware random number generator presented as a serial
// device and returns it as a Source. A short sample is read on open to
// detect a disconnected or stuck generator before the monitor starts
// trusting it; a sample of identical bytes fails with nist.ErrRngFailed.
func NewSerial(device string, baud int, readTimeout time.Duration) (*Reader, error) {
	if device == "" {
		return nil, errors.New("serial source: device required")
	}
	if baud <= 0 {
		return nil, fmt.Errorf("serial source: invalid baud rate %d", baud)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		Size:        8,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", device, err)
	}

	src := NewReader(port)
	if err := checkNotStuck(src); err != nil {
		_ = port.Close()
		return nil, err
	}

	log.Printf("source: serial RNG opened on %s (baud=%d)", device, baud)
	return src, nil
}

// checkNotStuck reads a small sample and rejects a source whose output
// never varies. This cannot prove randomness; it catches the common
// hardware failure mode of a generator repeating one byte forever.
func checkNotStuck(src Source) error {
	sample := make([]byte, stuckCheckBytes)
	if err := src.Fill(sample); err != nil {
		return err
	}

	for _, b := range sample[1:] {
		if b != sample[0] {
			return nil
		}
	}

	return fmt.Errorf("serial source: %w: output stuck at 0x%02x", nist.ErrRngFailed, sample[0])
}
