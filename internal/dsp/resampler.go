package dsp

import "math"

// Resampler converts interleaved PCM blocks between two fixed sample rates
// using linear interpolation. It carries a fractional phase and the last
// frame of the previous call across invocations so that successive blocks
// align without introducing clicks at block boundaries.
//
// High-quality (FFT / polyphase) resampling is an explicit non-goal; linear
// interpolation is the accepted v1 algorithm for both up- and downsampling.
type Resampler struct {
	srcRate  int
	dstRate  int
	ratio    float64 // dstRate / srcRate
	channels int

	// phase is the source-frame position (relative to the start of the
	// next block passed to Resample) of the next output sample.
	phase     float64
	haveLast  bool
	lastFrame []float32 // last source frame of the previous call, len == channels
}

// NewResampler creates a resampler from srcRate to dstRate for interleaved
// audio with the given channel count (1 or 2 per the stream config in the
// data model).
func NewResampler(srcRate, dstRate, channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	return &Resampler{
		srcRate:   srcRate,
		dstRate:   dstRate,
		ratio:     float64(dstRate) / float64(srcRate),
		channels:  channels,
		lastFrame: make([]float32, channels),
	}
}

// Reset clears the phase and stored last frame. Call this whenever a stream
// is reopened (e.g. after a device reconnect) so the new stream doesn't
// interpolate from stale samples.
func (r *Resampler) Reset() {
	r.phase = 0
	r.haveLast = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputFrames returns the deterministic number of output frames Resample
// would produce for inputFrames input frames, given the resampler's current
// phase. For a fresh resampler (phase == 0) this is exactly
// ceil(inputFrames * dst / src).
func (r *Resampler) OutputFrames(inputFrames int) int {
	if r.srcRate == r.dstRate {
		return inputFrames
	}
	if inputFrames == 0 {
		return 0
	}
	n := int(math.Ceil((float64(inputFrames) - r.phase) * r.ratio))
	if n < 0 {
		n = 0
	}
	return n
}

// Resample converts one interleaved block of inputFrames*channels samples
// from srcRate to dstRate. If srcRate == dstRate it returns the input
// unchanged (identity, no copy).
func (r *Resampler) Resample(input []float32) []float32 {
	if r.srcRate == r.dstRate {
		return input
	}

	channels := r.channels
	inputFrames := len(input) / channels
	if inputFrames == 0 {
		return nil
	}

	outputFrames := r.OutputFrames(inputFrames)
	output := make([]float32, outputFrames*channels)

	pos := r.phase
	for i := 0; i < outputFrames; i++ {
		srcPos := pos + float64(i)/r.ratio
		idx := int(math.Floor(srcPos))
		frac := float32(srcPos - float64(idx))

		for ch := 0; ch < channels; ch++ {
			a := r.frameSample(input, idx, ch, inputFrames)
			b := r.frameSample(input, idx+1, ch, inputFrames)
			output[i*channels+ch] = a + (b-a)*frac
		}
	}

	nextPos := pos + float64(outputFrames)/r.ratio
	r.phase = nextPos - float64(inputFrames)

	copy(r.lastFrame, input[(inputFrames-1)*channels:inputFrames*channels])
	r.haveLast = true

	return output
}

// frameSample returns sample ch of source frame idx, falling back to the
// carried-over last frame from the previous call for idx < 0, and holding
// the final frame for idx >= inputFrames (flat extrapolation rather than
// reading out of bounds).
func (r *Resampler) frameSample(input []float32, idx, ch, inputFrames int) float32 {
	channels := r.channels
	if idx < 0 {
		if r.haveLast {
			return r.lastFrame[ch]
		}
		return input[ch]
	}
	if idx >= inputFrames {
		return input[(inputFrames-1)*channels+ch]
	}
	return input[idx*channels+ch]
}
