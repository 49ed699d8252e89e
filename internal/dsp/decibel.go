// Package dsp provides the real-time signal-processing primitives shared by
// the mixer graph and stream manager: decibel values, the lock-free SPSC
// ring, the linear resampler, and the level meter.
package dsp

import (
	"fmt"
	"math"
)

// MinDecibel and MaxDecibel bound every gain value stored in the engine.
// MinDecibel is treated as negative infinity: its linear amplitude is
// exactly zero rather than 10^(MinDecibel/20).
const (
	MinDecibel = -60.0
	MaxDecibel = 18.0
)

// Decibel is a clamped gain value in [MinDecibel, MaxDecibel].
type Decibel float64

// NewDecibel clamps d into [MinDecibel, MaxDecibel]. Non-finite values are
// rejected so a single bad control-plane input can never poison a channel's
// gain.
func NewDecibel(d float64) (Decibel, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("dsp: decibel value %v is not finite", d)
	}
	if d < MinDecibel {
		d = MinDecibel
	}
	if d > MaxDecibel {
		d = MaxDecibel
	}
	return Decibel(d), nil
}

// ClampDecibel is NewDecibel without the finite check, for callers that
// already know the input is finite (e.g. re-deriving a decibel from a
// linear amplitude computed internally).
func ClampDecibel(d float64) Decibel {
	if d < MinDecibel {
		d = MinDecibel
	}
	if d > MaxDecibel {
		d = MaxDecibel
	}
	return Decibel(d)
}

// Linear converts the decibel value to a linear amplitude multiplier.
// MinDecibel maps to exactly 0, never to 10^(MinDecibel/20).
func (d Decibel) Linear() float64 {
	if d <= MinDecibel {
		return 0
	}
	return math.Pow(10, float64(d)/20)
}

// FromLinear converts a linear amplitude (expected >= 0) to a clamped
// Decibel, mapping 0 (and anything tiny enough to floor there) to
// MinDecibel rather than -Inf.
func FromLinear(amp float64) Decibel {
	if amp <= 0 {
		return MinDecibel
	}
	return ClampDecibel(20 * math.Log10(amp))
}
