package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/troubadour-audio/troubadour/internal/device"
	"github.com/troubadour-audio/troubadour/internal/dsp"
	"github.com/troubadour-audio/troubadour/internal/metrics"
	"github.com/troubadour-audio/troubadour/internal/mixer"
)

// Config configures the engine's own processing rate and frame length,
// mirroring a device stream config but applied to the engine itself.
type Config struct {
	SampleRate  uint32
	FrameLength int // frames per processing tick
}

// channelBinding tracks the per-channel resampler and stream needed to
// bridge a capture device's native rate and channel count to the engine's
// mono, engine-rate pipeline.
//
// readSamples is the number of native-format interleaved samples to drain
// from the capture ring each tick: FrameLength engine frames' worth,
// translated to the device's channel count and sample rate, so the ring
// is drained at the device's true sample throughput rather than at the
// engine's frame count.
type channelBinding struct {
	deviceID    string
	resampler   *dsp.Resampler
	channels    int
	readSamples int
}

// busBinding is channelBinding's output-side counterpart: channels is the
// playback device's channel count, used to upmix the engine's mono bus
// output before resampling it to the device's native rate and channel
// count, so the ring is filled at the device's true sample throughput.
type busBinding struct {
	deviceID  string
	resampler *dsp.Resampler
	channels  int
}

// ringReadSamples returns the number of device-native interleaved samples
// that together resample to approximately frameLength engine frames: the
// engine's frame count translated from engineRate to srcRate and expanded
// to channels-interleaved samples.
func ringReadSamples(frameLength, channels int, srcRate, engineRate uint32) int {
	if engineRate == 0 {
		return frameLength * channels
	}
	frames := int((uint64(frameLength)*uint64(srcRate) + uint64(engineRate) - 1) / uint64(engineRate))
	if frames < 1 {
		frames = 1
	}
	return frames * channels
}

// downmix averages a channels-interleaved block down to mono. channels <= 1
// returns in unchanged.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// upmix duplicates a mono block across channels, interleaved. channels <= 1
// returns in unchanged.
func upmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)*channels)
	for i, s := range in {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = s
		}
	}
	return out
}

// Engine is the running mixer: the graph, the stream manager, and the
// control-plane bookkeeping (version counter, per-entity device bindings).
// The control thread and the engine's own processing tick both touch the
// graph only while holding mu.
type Engine struct {
	mu    sync.Mutex
	graph *mixer.Graph

	devices *device.Manager
	devCtx  *device.Context

	cfg Config

	version uint64

	channelBindings map[mixer.ChannelId]*channelBinding
	busBindings     map[mixer.BusId]*busBinding

	lastTick time.Time

	metrics       *metrics.Registry
	lastOverruns  map[string]uint64
	lastUnderruns map[string]uint64
}

// New creates an engine with an empty graph containing only the master
// channel, which exists for the engine's entire lifetime.
func New(cfg Config, devCtx *device.Context) (*Engine, error) {
	g := mixer.NewGraph(cfg.FrameLength)

	masterID, err := mixer.NewChannelId(mixer.MasterChannelID)
	if err != nil {
		return nil, fmt.Errorf("engine: invalid master channel id: %w", err)
	}
	master := mixer.NewChannel(masterID, "Master")
	if err := g.AddChannel(master); err != nil {
		return nil, fmt.Errorf("engine: failed to seed master channel: %w", err)
	}

	e := &Engine{
		graph:           g,
		devices:         device.NewManager(devCtx, cfg.FrameLength),
		devCtx:          devCtx,
		cfg:             cfg,
		channelBindings: make(map[mixer.ChannelId]*channelBinding),
		busBindings:     make(map[mixer.BusId]*busBinding),
		lastTick:        time.Now(),
		lastOverruns:    make(map[string]uint64),
		lastUnderruns:   make(map[string]uint64),
	}
	return e, nil
}

// SetMetrics attaches a metrics registry the engine reports per-device
// overrun/underrun counts to on every tick. Passing nil disables reporting.
func (e *Engine) SetMetrics(reg *metrics.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = reg
}

// reportRingCounters adds the delta since the last tick for deviceID's
// overrun/underrun counts to the attached metrics registry, if any.
// Callers must hold mu.
func (e *Engine) reportRingCounters(deviceID string, ring *dsp.Ring) {
	if e.metrics == nil {
		return
	}
	overruns := ring.Overruns()
	if delta := overruns - e.lastOverruns[deviceID]; delta > 0 {
		e.metrics.Overruns.WithLabelValues(deviceID).Add(float64(delta))
	}
	e.lastOverruns[deviceID] = overruns

	underruns := ring.Underruns()
	if delta := underruns - e.lastUnderruns[deviceID]; delta > 0 {
		e.metrics.Underruns.WithLabelValues(deviceID).Add(float64(delta))
	}
	e.lastUnderruns[deviceID] = underruns
}

// nextVersion increments and returns the snapshot version. Callers must
// hold mu.
func (e *Engine) nextVersion() uint64 {
	e.version++
	return e.version
}

// GetSnapshot publishes the current state. It never fails.
func (e *Engine) GetSnapshot() mixer.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Snapshot(e.version)
}

// Tick runs one processing cycle: read every bound input ring, resample to
// the engine rate, evaluate the graph, resample each bus's output to its
// device's rate, and write to that device's output ring.
//
// Tick is called from the single dedicated engine thread; it is the sole
// reader of every input ring and sole writer of every output ring.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(e.lastTick).Seconds()
	e.lastTick = now

	inputs := make(map[mixer.ChannelId][]float32, len(e.channelBindings))
	for chID, binding := range e.channelBindings {
		stream, ok := e.devices.Capture(binding.deviceID)
		if !ok || stream.State() != device.StateRunning {
			continue
		}
		raw := make([]float32, binding.readSamples)
		stream.Ring().Read(raw)
		e.reportRingCounters(binding.deviceID, stream.Ring())
		inputs[chID] = downmix(binding.resampler.Resample(raw), binding.channels)
	}

	outputs := e.graph.Process(inputs, elapsed)

	for busID, buf := range outputs {
		binding, ok := e.busBindings[busID]
		if !ok {
			continue
		}
		stream, ok := e.devices.Playback(binding.deviceID)
		if !ok || stream.State() != device.StateRunning {
			continue
		}
		out := binding.resampler.Resample(upmix(buf, binding.channels))
		mixer.Saturate(out)
		stream.Ring().Write(out)
		e.reportRingCounters(binding.deviceID, stream.Ring())
	}
}

// RunTicker calls Tick at the engine's configured period (frame length
// divided by sample rate) until stop is closed. It blocks in the calling
// goroutine for that whole time.
func (e *Engine) RunTicker(stop <-chan struct{}) {
	period := time.Duration(float64(e.cfg.FrameLength) / float64(e.cfg.SampleRate) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Close tears down every stream and the shared device context.
func (e *Engine) Close() {
	e.devices.CloseAll()
	if err := e.devCtx.Close(); err != nil {
		log.Printf("engine: error closing audio context: %v", err)
	}
}
