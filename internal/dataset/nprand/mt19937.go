// Package nprand reproduces the integer stream of NumPy's legacy
// RandomState: MT19937 seeded from a 32-bit integer, bounded integers by
// masked rejection and in-place Fisher-Yates shuffling.
//
// Given the same seed, Shuffle permutes a slice exactly as
// numpy.random.RandomState(seed).shuffle permutes a list of the same length.
package nprand

const (
	stateLen  = 624
	shift     = 397
	matrixA   = 0x9908b0df
	upperMask = 0x80000000
	lowerMask = 0x7fffffff
)

// RandomState is an MT19937 generator. It is not safe for concurrent use.
type RandomState struct {
	key [stateLen]uint32
	pos int
}

// New returns a generator seeded like RandomState(seed).
func New(seed uint32) *RandomState {
	r := &RandomState{}
	r.Seed(seed)
	return r
}

// Seed resets the generator.
func (r *RandomState) Seed(seed uint32) {
	for pos := 0; pos < stateLen; pos++ {
		r.key[pos] = seed
		seed = 1812433253*(seed^(seed>>30)) + uint32(pos) + 1 //nolint:gosec // G115: pos < 624
	}
	r.pos = stateLen
}

func (r *RandomState) generate() {
	k := &r.key
	var y uint32
	i := 0
	for ; i < stateLen-shift; i++ {
		y = (k[i] & upperMask) | (k[i+1] & lowerMask)
		k[i] = k[i+shift] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	}
	for ; i < stateLen-1; i++ {
		y = (k[i] & upperMask) | (k[i+1] & lowerMask)
		k[i] = k[i+shift-stateLen] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	}
	y = (k[stateLen-1] & upperMask) | (k[0] & lowerMask)
	k[stateLen-1] = k[shift-1] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	r.pos = 0
}

// Uint32 returns the next tempered 32-bit output.
func (r *RandomState) Uint32() uint32 {
	if r.pos == stateLen {
		r.generate()
	}
	y := r.key[r.pos]
	r.pos++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// Uint64 combines two outputs, high word first.
func (r *RandomState) Uint64() uint64 {
	hi := uint64(r.Uint32())
	return hi<<32 | uint64(r.Uint32())
}

// Interval returns a uniform integer in [0, max] by masked rejection.
func (r *RandomState) Interval(max uint64) uint64 {
	if max == 0 {
		return 0
	}
	mask := max
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	mask |= mask >> 32

	if max <= 0xffffffff {
		for {
			if v := uint64(r.Uint32()) & mask; v <= max {
				return v
			}
		}
	}
	for {
		if v := r.Uint64() & mask; v <= max {
			return v
		}
	}
}

// Shuffle permutes x in place.
func Shuffle[T any](r *RandomState, x []T) {
	for i := len(x) - 1; i >= 1; i-- {
		j := r.Interval(uint64(i)) //nolint:gosec // G115: i >= 1
		x[i], x[j] = x[j], x[i]
	}
}

// Perm returns a shuffled copy of [0, n).
func (r *RandomState) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	Shuffle(r, p)
	return p
}
