package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{Sequential(), WithWorkers(3), WithWorkers(0)} {
		const n = 1000
		var hits [n]int32
		For(n, func(i int) { atomic.AddInt32(&hits[i], 1) }, cfg)
		for i := range hits {
			assert.Equal(t, int32(1), hits[i], "index %d with %+v", i, cfg)
		}
	}
}

func TestForBatchCoversGrid(t *testing.T) {
	var sum atomic.Int64
	ForBatch(7, 5, func(b, c int) {
		sum.Add(int64(b*10 + c))
	}, WithWorkers(4))

	var want int64
	for b := 0; b < 7; b++ {
		for c := 0; c < 5; c++ {
			want += int64(b*10 + c)
		}
	}
	assert.Equal(t, want, sum.Load())
}

func TestForZero(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}
