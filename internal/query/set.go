package query

import "math/bits"

// set is a bitset over index positions. Because positions follow (time, id)
// order, iterating a set in bit order yields results in query order.
type set []uint64

func newSet(n int) set {
	return make(set, (n+63)/64)
}

func fullSet(n int) set {
	s := newSet(n)
	for i := range s {
		s[i] = ^uint64(0)
	}
	s.trim(n)
	return s
}

// trim clears bits at or beyond n.
func (s set) trim(n int) {
	if r := n % 64; r != 0 && len(s) > 0 {
		s[len(s)-1] &= (uint64(1) << r) - 1
	}
}

func (s set) add(i int) {
	s[i/64] |= 1 << (i % 64)
}

func (s set) has(i int) bool {
	return s[i/64]&(1<<(i%64)) != 0
}

func (s set) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s set) empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

func (s set) intersect(o set) set {
	out := make(set, len(s))
	for i := range s {
		out[i] = s[i] & o[i]
	}
	return out
}

func (s set) union(o set) set {
	out := make(set, len(s))
	for i := range s {
		out[i] = s[i] | o[i]
	}
	return out
}

func (s set) complement(n int) set {
	out := make(set, len(s))
	for i := range s {
		out[i] = ^s[i]
	}
	out.trim(n)
	return out
}

// last returns the highest position in the set, or -1.
func (s set) last() int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != 0 {
			return i*64 + 63 - bits.LeadingZeros64(s[i])
		}
	}
	return -1
}

// positions lists members in ascending order.
func (s set) positions() []int {
	out := make([]int, 0, s.count())
	for i, w := range s {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, i*64+b)
			w &= w - 1
		}
	}
	return out
}
