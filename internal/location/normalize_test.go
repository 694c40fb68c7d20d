package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	for _, maxVal := range []float64{1, 3, 7, 100, 540, 720, 1919.5} {
		assert.InDelta(t, -10, Normalize(0, maxVal), 1e-9, "lower bound for %v", maxVal)
		assert.InDelta(t, 10, Normalize(maxVal, maxVal), 1e-9, "upper bound for %v", maxVal)
		assert.InDelta(t, 0, Normalize(maxVal/2, maxVal), 1e-9, "midpoint for %v", maxVal)

		prev := Normalize(0, maxVal)
		for i := 1; i <= 100; i++ {
			cur := Normalize(maxVal*float64(i)/100, maxVal)
			assert.Greater(t, cur, prev, "not increasing at step %d for %v", i, maxVal)
			prev = cur
		}
	}
}

func TestNormalizeKnownValues(t *testing.T) {
	tests := []struct {
		n, maxVal, want float64
	}{
		{n: 135, maxVal: 540, want: -5},
		{n: 540, maxVal: 720, want: 5},
		{n: 0.5, maxVal: 1, want: 0},
		{n: 800, maxVal: 400, want: 30},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, Normalize(tc.n, tc.maxVal), 1e-9, "Normalize(%v, %v)", tc.n, tc.maxVal)
	}
}

func TestNormalizeZeroExtent(t *testing.T) {
	assert.Equal(t, 0.0, Normalize(10, 0))
	assert.Equal(t, 0.0, Normalize(10, -4))
}
