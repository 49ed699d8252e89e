package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/troubadour-audio/troubadour/internal/dsp"
)

// minRingFrames is the minimum number of engine frames a stream's ring must
// hold, so the ring tolerates one missed processing tick without an
// overrun or underrun.
const minRingFrames = 4

// StreamConfig is the negotiated format a capture or playback stream opens
// its device with.
type StreamConfig struct {
	SampleRate      uint32
	Channels        uint32
	FramesPerPeriod uint32
}

// CaptureStream owns one input device's malgo capture device and the ring
// its realtime callback writes into. Its callback performs no allocation,
// no locking, and no logging above a rate-limited warning.
type CaptureStream struct {
	deviceID string
	device   *malgo.Device
	ring     *dsp.Ring
	state    atomic.Int32

	mu        sync.Mutex
	lastError error
}

// NewCaptureStream opens a capture stream on deviceID at cfg's native
// format, sizing its ring to at least minRingFrames engine frames.
func NewCaptureStream(ctx *Context, deviceID string, cfg StreamConfig, engineFrameLength int) (*CaptureStream, error) {
	s := &CaptureStream{deviceID: deviceID}
	s.state.Store(int32(StateOpening))

	ring := dsp.NewRing(int(cfg.Channels) * engineFrameLength * minRingFrames)
	s.ring = ring

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = cfg.FramesPerPeriod

	scratch := make([]float32, cfg.FramesPerPeriod*cfg.Channels)
	var overruns atomic.Uint64
	onRecvFrames := func(_, inputSamples []byte, framecount uint32) {
		if s.State() != StateRunning {
			return
		}
		n := int(framecount) * int(cfg.Channels)
		if cap(scratch) < n {
			scratch = make([]float32, n)
		}
		scratch = scratch[:n]
		bytesToFloat32Into(inputSamples, scratch)
		written := ring.Write(scratch)
		if written < len(scratch) {
			logRateLimited(&overruns, "device: capture %s ring overrun, dropping samples", deviceID)
		}
	}

	callbacks := malgo.DeviceCallbacks{Data: onRecvFrames}

	ctx.mu.Lock()
	malgoCtx := ctx.ctx
	ctx.mu.Unlock()
	if malgoCtx == nil {
		s.fail(fmt.Errorf("device: context closed"))
		return nil, s.lastError
	}

	dev, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		s.fail(fmt.Errorf("device: failed to open capture device %s: %w", deviceID, err))
		return nil, s.lastError
	}
	s.device = dev

	if err := dev.Start(); err != nil {
		s.fail(fmt.Errorf("device: failed to start capture device %s: %w", deviceID, err))
		return nil, s.lastError
	}

	s.state.Store(int32(StateRunning))
	return s, nil
}

// Ring returns the device-input ring the engine's processing tick reads
// from.
func (s *CaptureStream) Ring() *dsp.Ring { return s.ring }

// State returns the stream's current lifecycle state.
func (s *CaptureStream) State() State { return State(s.state.Load()) }

// LastError returns the error that caused a Failed transition, if any.
func (s *CaptureStream) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *CaptureStream) fail(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	s.state.Store(int32(StateFailed))
}

// Close transitions the stream through Closing back to Unassigned,
// stopping and releasing the underlying device.
func (s *CaptureStream) Close() {
	s.state.Store(int32(StateClosing))
	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	s.state.Store(int32(StateUnassigned))
}

// PlaybackStream owns one output device's malgo playback device and the
// ring its realtime callback drains, zero-filling any shortfall and
// counting the underrun.
type PlaybackStream struct {
	deviceID string
	device   *malgo.Device
	ring     *dsp.Ring
	state    atomic.Int32

	mu        sync.Mutex
	lastError error
}

// NewPlaybackStream opens a playback stream on deviceID at cfg's native
// format.
func NewPlaybackStream(ctx *Context, deviceID string, cfg StreamConfig, engineFrameLength int) (*PlaybackStream, error) {
	s := &PlaybackStream{deviceID: deviceID}
	s.state.Store(int32(StateOpening))

	ring := dsp.NewRing(int(cfg.Channels) * engineFrameLength * minRingFrames)
	s.ring = ring

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = cfg.FramesPerPeriod

	scratch := make([]float32, cfg.FramesPerPeriod*cfg.Channels)
	var underruns atomic.Uint64
	onSendFrames := func(output, _ []byte, framecount uint32) {
		n := int(framecount) * int(cfg.Channels)
		if cap(scratch) < n {
			scratch = make([]float32, n)
		}
		scratch = scratch[:n]
		read := ring.Read(scratch)
		if read < len(scratch) {
			logRateLimited(&underruns, "device: playback %s ring underrun, filling silence", deviceID)
		}
		for i, v := range scratch {
			binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(v))
		}
	}

	callbacks := malgo.DeviceCallbacks{Data: onSendFrames}

	ctx.mu.Lock()
	malgoCtx := ctx.ctx
	ctx.mu.Unlock()
	if malgoCtx == nil {
		s.fail(fmt.Errorf("device: context closed"))
		return nil, s.lastError
	}

	dev, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		s.fail(fmt.Errorf("device: failed to open playback device %s: %w", deviceID, err))
		return nil, s.lastError
	}
	s.device = dev

	if err := dev.Start(); err != nil {
		s.fail(fmt.Errorf("device: failed to start playback device %s: %w", deviceID, err))
		return nil, s.lastError
	}

	s.state.Store(int32(StateRunning))
	return s, nil
}

// Ring returns the device-output ring the engine's processing tick writes
// into.
func (s *PlaybackStream) Ring() *dsp.Ring { return s.ring }

// State returns the stream's current lifecycle state.
func (s *PlaybackStream) State() State { return State(s.state.Load()) }

// LastError returns the error that caused a Failed transition, if any.
func (s *PlaybackStream) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *PlaybackStream) fail(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	s.state.Store(int32(StateFailed))
}

// Close transitions the stream through Closing back to Unassigned.
func (s *PlaybackStream) Close() {
	s.state.Store(int32(StateClosing))
	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	s.state.Store(int32(StateUnassigned))
}

// bytesToFloat32Into decodes a little-endian f32 byte buffer into a
// caller-owned scratch slice reused across callback invocations, since
// each stream's callback runs on a single dedicated thread and never needs
// to share the buffer.
func bytesToFloat32Into(data []byte, out []float32) {
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
}
