package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewDecibel_RejectsNonFinite(t *testing.T) {
	_, err := NewDecibel(math.NaN())
	require.Error(t, err)

	_, err = NewDecibel(math.Inf(1))
	require.Error(t, err)

	_, err = NewDecibel(math.Inf(-1))
	require.Error(t, err)
}

func TestNewDecibel_ClampsFiniteValues(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := rapid.Float64Range(-1e6, 1e6).Draw(t, "d")
		got, err := NewDecibel(d)
		require.NoError(t, err)

		want := d
		if want < MinDecibel {
			want = MinDecibel
		}
		if want > MaxDecibel {
			want = MaxDecibel
		}
		assert.InDelta(t, want, float64(got), 1e-9)
	})
}

func TestDecibel_MinMapsToZeroLinear(t *testing.T) {
	d, err := NewDecibel(MinDecibel)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Linear())
}

func TestDecibel_LinearRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := rapid.Float64Range(MinDecibel+0.01, MaxDecibel).Draw(t, "d")
		dec := ClampDecibel(d)
		amp := dec.Linear()
		back := FromLinear(amp)
		assert.InDelta(t, float64(dec), float64(back), 1e-6)
	})
}
