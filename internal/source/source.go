// Package source provides the entropy sources assessed by the monitor: the
// operating system CSPRNG, hardware generators attached to serial ports,
// and arbitrary io.Readers. Read failures wrap nist.ErrRngFailed so callers
// can distinguish a broken source from statistically suspect output.
package source

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ryankurte/rngcheck/nist"
)

// Source produces raw random output on demand. Fill populates a byte
// buffer; Next32 produces the source's next 32-bit word. Implementations
// need not be safe for concurrent use.
type Source interface {
	Fill(p []byte) error
	Next32() (uint32, error)
}

// OS reads from the operating system CSPRNG via crypto/rand.
type OS struct{}

// Fill populates p with random bytes from the operating system.
func (OS) Fill(p []byte) error {
	if _, err := rand.Read(p); err != nil {
		return fmt.Errorf("os source: %w: %v", nist.ErrRngFailed, err)
	}
	return nil
}

// Next32 returns the next 32-bit word from the operating system CSPRNG.
func (o OS) Next32() (uint32, error) {
	var word [4]byte
	if err := o.Fill(word[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(word[:]), nil
}

// Reader adapts any io.Reader into a Source. Short reads and read errors
// wrap nist.ErrRngFailed.
type Reader struct {
	r io.Reader
}

// NewReader wraps r as a Source.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Fill reads exactly len(p) bytes from the underlying reader.
func (s *Reader) Fill(p []byte) error {
	if _, err := io.ReadFull(s.r, p); err != nil {
		return fmt.Errorf("reader source: %w: %v", nist.ErrRngFailed, err)
	}
	return nil
}

// Next32 reads the next four bytes and returns them as a little-endian
// 32-bit word.
func (s *Reader) Next32() (uint32, error) {
	var word [4]byte
	if err := s.Fill(word[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(word[:]), nil
}

// Words adapts a fallible Source into an infallible bitseq.WordSource by
// capturing the first error, after which every subsequent word is zero.
// Callers run their test, then check Err to decide whether the verdict is
// meaningful. Each Words instance is single-use per test run.
type Words struct {
	src Source
	err error
}

// NewWords wraps src for consumption by bitseq.FromWords.
func NewWords(src Source) *Words {
	return &Words{src: src}
}

// Next32 returns the source's next word, or zero once a read has failed.
func (w *Words) Next32() uint32 {
	if w.err != nil {
		return 0
	}

	word, err := w.src.Next32()
	if err != nil {
		w.err = err
		return 0
	}

	return word
}

// Err reports the first source read failure, or nil.
func (w *Words) Err() error {
	return w.err
}
