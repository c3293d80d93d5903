package compress

import (
	"fmt"
	"math/bits"
)

// Run is one maximal run of identical sign bits.
type Run struct {
	Bit bool
	Len uint32
}

// rleEncode collapses a sign bitstream into maximal runs.
func rleEncode(in []bool) []Run {
	if len(in) == 0 {
		return nil
	}
	runs := make([]Run, 0, 16)
	cur := Run{Bit: in[0], Len: 1}
	for _, b := range in[1:] {
		if b == cur.Bit {
			cur.Len++
			continue
		}
		runs = append(runs, cur)
		cur = Run{Bit: b, Len: 1}
	}
	return append(runs, cur)
}

// rleDecode expands runs back into a bitstream of exactly n bits.
func rleDecode(runs []Run, n int) ([]bool, error) {
	out := make([]bool, 0, n)
	for _, r := range runs {
		for i := uint32(0); i < r.Len; i++ {
			out = append(out, r.Bit)
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: runs expand to %d bits, want %d", ErrShapeMismatch, len(out), n)
	}
	return out, nil
}

// eliasGammaBits is the cost in bits of a universal code for a positive
// run length: 2*floor(log2(n)) + 1.
func eliasGammaBits(n uint32) int {
	if n == 0 {
		return 1
	}
	return 2*(bits.Len32(n)-1) + 1
}

// rleBits is the modeled size of the encoded stream: one sign bit plus a
// length code per run.
func rleBits(runs []Run) int {
	total := 0
	for _, r := range runs {
		total += 1 + eliasGammaBits(r.Len)
	}
	return total
}
