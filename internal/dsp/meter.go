package dsp

import "math"

// PeakDecayPerSecond is the exponential decay rate applied to the held peak
// between updates, giving the UI a brief "peak hold" rather than a peak
// that snaps back to the current block's level every tick.
const PeakDecayPerSecond = 12.0

// Meter computes RMS level and a decaying peak from successive sample
// blocks. One Meter is held per channel (on the post-gain, pre-sum signal)
// and per bus (on the post-sum signal).
type Meter struct {
	rmsDB  Decibel
	peakDB Decibel
}

// NewMeter returns a Meter at silence.
func NewMeter() *Meter {
	return &Meter{rmsDB: MinDecibel, peakDB: MinDecibel}
}

// Reset zeroes both the RMS and peak readings.
func (m *Meter) Reset() {
	m.rmsDB = MinDecibel
	m.peakDB = MinDecibel
}

// Update computes RMS and peak for block and applies peak decay for the
// elapsed time since the previous update (elapsed in seconds). It must be
// called once per processed block, including silent ones, so the held peak
// decays even when a channel goes quiet.
func (m *Meter) Update(block []float32, elapsedSeconds float64) {
	rms, peak := rmsAndPeak(block)

	decayDB := PeakDecayPerSecond * elapsedSeconds
	decayed := float64(m.peakDB) - decayDB
	peakDB := FromLinear(float64(peak))
	if float64(peakDB) > decayed {
		m.peakDB = peakDB
	} else {
		m.peakDB = ClampDecibel(decayed)
	}

	m.rmsDB = FromLinear(float64(rms))
}

// RMSDecibel returns the most recent RMS level in decibels.
func (m *Meter) RMSDecibel() Decibel { return m.rmsDB }

// PeakDecibel returns the currently held peak in decibels.
func (m *Meter) PeakDecibel() Decibel { return m.peakDB }

// rmsAndPeak computes RMS (sqrt(mean(x^2))) and max(|x|) over block. An
// empty block reports silence for both.
func rmsAndPeak(block []float32) (rms, peak float32) {
	if len(block) == 0 {
		return 0, 0
	}
	var sumSquares float64
	for _, x := range block {
		v := float64(x)
		sumSquares += v * v
		if a := float32(math.Abs(v)); a > peak {
			peak = a
		}
	}
	rms = float32(math.Sqrt(sumSquares / float64(len(block))))
	return rms, peak
}
