// Package bitseq provides lazy bit-level iteration over byte buffers and
// live random word sources. Statistical tests consume bits one at a time
// through the Sequence interface without the producer ever materialising
// the full bit vector.
package bitseq

// Sequence is a finite, forward-only stream of bits. Next returns the next
// bit and true, or false once the sequence is exhausted. Sequences are
// single-use; whether a fresh equivalent sequence can be constructed over
// the same underlying data depends on the implementation.
type Sequence interface {
	Next() (bit bool, ok bool)
}

// ByteSequence iterates over the bits of a byte buffer, least-significant
// bit first within each byte. The buffer is never modified, so a new
// ByteSequence over the same buffer replays the identical bit stream.
type ByteSequence struct {
	buf       []byte
	byteIndex int
	bitIndex  uint
}

// FromBytes returns a ByteSequence yielding 8*len(buf) bits. An empty or
// nil buffer yields an immediately exhausted sequence.
func FromBytes(buf []byte) *ByteSequence {
	return &ByteSequence{buf: buf}
}

// Next returns the next bit of the buffer, or ok=false when all bits have
// been consumed.
func (s *ByteSequence) Next() (bool, bool) {
	if s.byteIndex >= len(s.buf) {
		return false, false
	}

	bit := s.buf[s.byteIndex]&(1<<s.bitIndex) != 0

	if s.bitIndex < 7 {
		s.bitIndex++
	} else {
		s.bitIndex = 0
		s.byteIndex++
	}

	return bit, true
}

// WordSource produces successive 32-bit outputs of a random source. The
// source is assumed infallible at this layer; fallible sources should be
// adapted with a sticky-error wrapper and inspected after consumption.
type WordSource interface {
	Next32() uint32
}

// WordSequence draws bits from successive 32-bit words of a WordSource,
// least-significant bit first within each word. It buffers exactly one
// word of look-ahead and requests a new word only once the buffered bits
// are spent, so a sequence of k bits consumes ceil(k/32) words from the
// source. WordSequence is not restartable: each instance permanently
// advances the underlying source.
type WordSequence struct {
	src       WordSource
	remaining int
	word      uint32
	buffered  int
}

// FromWords returns a WordSequence yielding exactly bits bits from src.
// A non-positive count yields an immediately exhausted sequence and never
// touches the source.
func FromWords(src WordSource, bits int) *WordSequence {
	return &WordSequence{src: src, remaining: bits}
}

// Next returns the next bit drawn from the word source, or ok=false once
// the requested bit count has been produced.
func (s *WordSequence) Next() (bool, bool) {
	if s.remaining <= 0 {
		return false, false
	}

	if s.buffered == 0 {
		s.word = s.src.Next32()
		s.buffered = 32
	}

	bit := s.word&1 == 1
	s.word >>= 1
	s.buffered--
	s.remaining--

	return bit, true
}

// Take returns a Sequence yielding at most n bits of s. It consumes s
// lazily, so bits beyond the cap remain unread in the underlying sequence.
func Take(s Sequence, n int) Sequence {
	return &takeSequence{src: s, remaining: n}
}

type takeSequence struct {
	src       Sequence
	remaining int
}

func (t *takeSequence) Next() (bool, bool) {
	if t.remaining <= 0 {
		return false, false
	}
	t.remaining--
	return t.src.Next()
}
