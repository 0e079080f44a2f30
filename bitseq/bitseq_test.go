package bitseq

import "testing"

func collect(s Sequence) []bool {
	var out []bool
	for {
		bit, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, bit)
	}
}

func TestByteSequenceBitOrder(t *testing.T) {
	t.Parallel()

	buf := []byte{0b0000_0001, 0b0000_0010, 0b0100_0000, 0b1000_0000}
	want := []bool{
		true, false, false, false, false, false, false, false,
		false, true, false, false, false, false, false, false,
		false, false, false, false, false, false, true, false,
		false, false, false, false, false, false, false, true,
	}

	got := collect(FromBytes(buf))
	if len(got) != len(want) {
		t.Fatalf("expected %d bits, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bit %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestByteSequenceLength(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		buf  []byte
	}{
		{name: "nil"},
		{name: "empty", buf: []byte{}},
		{name: "single", buf: []byte{0xA5}},
		{name: "many", buf: make([]byte, 129)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := collect(FromBytes(tc.buf))
			if len(got) != 8*len(tc.buf) {
				t.Fatalf("expected %d bits, got %d", 8*len(tc.buf), len(got))
			}

			// Exhausted sequences must stay exhausted.
			if _, ok := FromBytes(nil).Next(); ok {
				t.Fatalf("expected exhausted sequence to report ok=false")
			}
		})
	}
}

func TestByteSequenceReplayIsIdentical(t *testing.T) {
	t.Parallel()

	buf := []byte{0x12, 0x34, 0x56, 0x78, 0x9A}

	first := collect(FromBytes(buf))
	second := collect(FromBytes(buf))

	if len(first) != len(second) {
		t.Fatalf("replay length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay bit %d differs", i)
		}
	}
}

// countingWordSource records how many words were requested.
type countingWordSource struct {
	words []uint32
	calls int
}

func (s *countingWordSource) Next32() uint32 {
	var w uint32
	if s.calls < len(s.words) {
		w = s.words[s.calls]
	}
	s.calls++
	return w
}

func TestWordSequenceExactBitCount(t *testing.T) {
	t.Parallel()

	for _, k := range []int{0, 1, 31, 32, 33, 64, 65} {
		k := k
		src := &countingWordSource{words: []uint32{0xDEADBEEF, 0x01234567, 0x89ABCDEF}}

		got := collect(FromWords(src, k))
		if len(got) != k {
			t.Fatalf("k=%d: expected %d bits, got %d", k, k, len(got))
		}

		wantCalls := (k + 31) / 32
		if src.calls != wantCalls {
			t.Fatalf("k=%d: expected %d source calls, got %d", k, wantCalls, src.calls)
		}
	}
}

func TestWordSequenceBitOrder(t *testing.T) {
	t.Parallel()

	// 0x80000001: bit 0 set, bits 1..30 clear, bit 31 set.
	src := &countingWordSource{words: []uint32{0x80000001, 0x00000003}}
	got := collect(FromWords(src, 34))

	if !got[0] {
		t.Fatalf("expected bit 0 of first word set")
	}
	for i := 1; i < 31; i++ {
		if got[i] {
			t.Fatalf("expected bit %d clear", i)
		}
	}
	if !got[31] {
		t.Fatalf("expected bit 31 of first word set")
	}
	if !got[32] || !got[33] {
		t.Fatalf("expected first two bits of second word set")
	}
}

func TestWordSequenceNegativeCount(t *testing.T) {
	t.Parallel()

	src := &countingWordSource{words: []uint32{0xFFFFFFFF}}
	if _, ok := FromWords(src, -1).Next(); ok {
		t.Fatalf("expected exhausted sequence for negative count")
	}
	if src.calls != 0 {
		t.Fatalf("expected no source calls, got %d", src.calls)
	}
}

func TestTakeTruncates(t *testing.T) {
	t.Parallel()

	buf := []byte{0xFF, 0xFF}
	got := collect(Take(FromBytes(buf), 10))
	if len(got) != 10 {
		t.Fatalf("expected 10 bits, got %d", len(got))
	}

	// Taking more than available stops at the underlying end.
	got = collect(Take(FromBytes([]byte{0x01}), 100))
	if len(got) != 8 {
		t.Fatalf("expected 8 bits, got %d", len(got))
	}
}
