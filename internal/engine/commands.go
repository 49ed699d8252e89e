package engine

import (
	"github.com/troubadour-audio/troubadour/internal/device"
	"github.com/troubadour-audio/troubadour/internal/dsp"
	"github.com/troubadour-audio/troubadour/internal/mixer"
)

// Result is returned by every mutating command on success: the version the
// mutation was stamped with. Its effects are visible in any snapshot taken
// at or after that version.
type Result struct {
	Version uint64
}

// AddChannel inserts a channel with defaults: 0dB gain, not muted, not
// solo, no bus membership.
func (e *Engine) AddChannel(id, name string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	if err := mixer.ValidateName(name); err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	if _, exists := e.graph.Channel(chID); exists {
		return Result{}, conflictErrorf("channel %q already exists", id)
	}

	ch := mixer.NewChannel(chID, name)
	if err := e.graph.AddChannel(ch); err != nil {
		return Result{}, conflictErrorf("%v", err)
	}
	return Result{Version: e.nextVersion()}, nil
}

// RemoveChannel deletes a channel, pruning its bus edges (implicit) and
// tearing down its input stream.
func (e *Engine) RemoveChannel(id string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}
	if ch.IsMaster {
		return Result{}, conflictErrorf("the master channel cannot be removed")
	}

	if err := e.graph.RemoveChannel(chID); err != nil {
		return Result{}, conflictErrorf("%v", err)
	}
	e.unbindChannel(chID)
	return Result{Version: e.nextVersion()}, nil
}

// SetChannelName renames a channel.
func (e *Engine) SetChannelName(id, name string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	if err := mixer.ValidateName(name); err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}
	ch.DisplayName = name
	return Result{Version: e.nextVersion()}, nil
}

// SetChannelInputDevice assigns or clears a channel's input device,
// opening or closing the capture stream accordingly.
func (e *Engine) SetChannelInputDevice(id string, deviceID *string, cfg device.StreamConfig) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}

	e.unbindChannel(chID)

	if deviceID == nil || *deviceID == "" {
		ch.InputDevice = ""
		ch.DeviceError = false
		ch.LastError = ""
		return Result{Version: e.nextVersion()}, nil
	}

	stream, err := e.devices.AssignCapture(*deviceID, cfg)
	if err != nil {
		ch.DeviceError = true
		ch.LastError = err.Error()
		if e.metrics != nil {
			e.metrics.DeviceErrors.WithLabelValues(*deviceID).Inc()
		}
		return Result{}, deviceErrorf("%v", err)
	}
	_ = stream

	resampler := dsp.NewResampler(int(cfg.SampleRate), int(e.cfg.SampleRate), int(cfg.Channels))
	e.channelBindings[chID] = &channelBinding{
		deviceID:    *deviceID,
		resampler:   resampler,
		channels:    int(cfg.Channels),
		readSamples: ringReadSamples(e.cfg.FrameLength, int(cfg.Channels), cfg.SampleRate, e.cfg.SampleRate),
	}
	ch.InputDevice = *deviceID
	ch.DeviceError = false
	ch.LastError = ""
	return Result{Version: e.nextVersion()}, nil
}

func (e *Engine) unbindChannel(id mixer.ChannelId) {
	binding, ok := e.channelBindings[id]
	if !ok {
		return
	}
	e.devices.ReleaseCapture(binding.deviceID)
	delete(e.channelBindings, id)
}

// SetChannelBuses replaces a channel's bus membership with busIDs.
func (e *Engine) SetChannelBuses(id string, busIDs []string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}

	set := make(map[mixer.BusId]struct{}, len(busIDs))
	for _, b := range busIDs {
		busID, err := mixer.NewBusId(b)
		if err != nil {
			return Result{}, validationErrorf("%v", err)
		}
		if !e.graph.HasBus(busID) {
			return Result{}, notFoundErrorf("bus %q not found", b)
		}
		set[busID] = struct{}{}
	}

	ch.SetBuses(set)
	return Result{Version: e.nextVersion()}, nil
}

// SetChannelEffects replaces a channel's effects chain with one built from
// configs, in order. The channel's previous chain is reset (clearing any
// filter state) before the new one takes effect.
func (e *Engine) SetChannelEffects(id string, configs []mixer.EffectConfig) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}

	chain, err := mixer.NewEffectChainFromConfigs(configs)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch.Effects.Clear()
	ch.Effects = chain
	return Result{Version: e.nextVersion()}, nil
}

// SetVolume updates a channel's gain, clamping into range.
func (e *Engine) SetVolume(id string, volumeDB float64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}
	dB, err := dsp.NewDecibel(volumeDB)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch.Gain = dB
	return Result{Version: e.nextVersion()}, nil
}

// ToggleMute flips a channel's mute flag.
func (e *Engine) ToggleMute(id string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}
	ch.Muted = !ch.Muted
	return Result{Version: e.nextVersion()}, nil
}

// ToggleSolo flips a channel's solo flag.
func (e *Engine) ToggleSolo(id string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chID, err := mixer.NewChannelId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	ch, ok := e.graph.Channel(chID)
	if !ok {
		return Result{}, notFoundErrorf("channel %q not found", id)
	}
	ch.Solo = !ch.Solo
	return Result{Version: e.nextVersion()}, nil
}

// AddBus inserts a bus with defaults: 0dB gain, not muted.
func (e *Engine) AddBus(id, name string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	busID, err := mixer.NewBusId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	if err := mixer.ValidateName(name); err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	if e.graph.HasBus(busID) {
		return Result{}, conflictErrorf("bus %q already exists", id)
	}
	if err := e.graph.AddBus(mixer.NewBus(busID, name)); err != nil {
		return Result{}, conflictErrorf("%v", err)
	}
	return Result{Version: e.nextVersion()}, nil
}

// RemoveBus deletes a bus; members are silently pruned (bus-in-use is not
// an error).
func (e *Engine) RemoveBus(id string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	busID, err := mixer.NewBusId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	if !e.graph.HasBus(busID) {
		return Result{}, notFoundErrorf("bus %q not found", id)
	}
	if err := e.graph.RemoveBus(busID); err != nil {
		return Result{}, conflictErrorf("%v", err)
	}
	e.unbindBus(busID)
	return Result{Version: e.nextVersion()}, nil
}

func (e *Engine) unbindBus(id mixer.BusId) {
	binding, ok := e.busBindings[id]
	if !ok {
		return
	}
	e.devices.ReleasePlayback(binding.deviceID)
	delete(e.busBindings, id)
}

// SetBusOutputDevice assigns or clears a bus's output device.
func (e *Engine) SetBusOutputDevice(id string, deviceID *string, cfg device.StreamConfig) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	busID, err := mixer.NewBusId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	b, ok := e.graph.Bus(busID)
	if !ok {
		return Result{}, notFoundErrorf("bus %q not found", id)
	}

	e.unbindBus(busID)

	if deviceID == nil || *deviceID == "" {
		b.OutputDevice = ""
		b.DeviceError = false
		b.LastError = ""
		return Result{Version: e.nextVersion()}, nil
	}

	stream, err := e.devices.AssignPlayback(*deviceID, cfg)
	if err != nil {
		b.DeviceError = true
		b.LastError = err.Error()
		if e.metrics != nil {
			e.metrics.DeviceErrors.WithLabelValues(*deviceID).Inc()
		}
		return Result{}, deviceErrorf("%v", err)
	}
	_ = stream

	resampler := dsp.NewResampler(int(e.cfg.SampleRate), int(cfg.SampleRate), int(cfg.Channels))
	e.busBindings[busID] = &busBinding{deviceID: *deviceID, resampler: resampler, channels: int(cfg.Channels)}
	b.OutputDevice = *deviceID
	b.DeviceError = false
	b.LastError = ""
	return Result{Version: e.nextVersion()}, nil
}

// SetBusVolume updates a bus's gain.
func (e *Engine) SetBusVolume(id string, volumeDB float64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	busID, err := mixer.NewBusId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	b, ok := e.graph.Bus(busID)
	if !ok {
		return Result{}, notFoundErrorf("bus %q not found", id)
	}
	dB, err := dsp.NewDecibel(volumeDB)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	b.Gain = dB
	return Result{Version: e.nextVersion()}, nil
}

// ToggleBusMute flips a bus's mute flag.
func (e *Engine) ToggleBusMute(id string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	busID, err := mixer.NewBusId(id)
	if err != nil {
		return Result{}, validationErrorf("%v", err)
	}
	b, ok := e.graph.Bus(busID)
	if !ok {
		return Result{}, notFoundErrorf("bus %q not found", id)
	}
	b.Muted = !b.Muted
	return Result{Version: e.nextVersion()}, nil
}

// LoadSnapshot replaces the entire graph atomically from a previously
// captured mixer.Snapshot, reconciling device streams: every existing
// binding is closed, and a stream is opened for each device assignment in
// the new graph, including assignments that did not change.
func (e *Engine) LoadSnapshot(snap mixer.Snapshot, cfg device.StreamConfig) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newGraph := mixer.NewGraph(e.cfg.FrameLength)

	for _, cs := range snap.Channels {
		chID, err := mixer.NewChannelId(cs.ID)
		if err != nil {
			return Result{}, validationErrorf("%v", err)
		}
		ch := mixer.NewChannel(chID, cs.DisplayName)
		ch.IsMaster = cs.IsMaster
		ch.InputDevice = cs.InputDevice
		dB, err := dsp.NewDecibel(cs.GainDB)
		if err != nil {
			dB = dsp.ClampDecibel(cs.GainDB) // legacy narrower-range presets: clamp, don't reject
		}
		ch.Gain = dB
		ch.Muted = cs.Muted
		ch.Solo = cs.Solo
		if len(cs.Effects) > 0 {
			chain, err := mixer.NewEffectChainFromConfigs(cs.Effects)
			if err != nil {
				return Result{}, validationErrorf("%v", err)
			}
			ch.Effects = chain
		}
		busSet := make(map[mixer.BusId]struct{}, len(cs.BusIDs))
		for _, b := range cs.BusIDs {
			busID, err := mixer.NewBusId(b)
			if err != nil {
				return Result{}, validationErrorf("%v", err)
			}
			busSet[busID] = struct{}{}
		}
		ch.SetBuses(busSet)
		if err := newGraph.AddChannel(ch); err != nil {
			return Result{}, conflictErrorf("%v", err)
		}
	}

	for _, bs := range snap.Buses {
		busID, err := mixer.NewBusId(bs.ID)
		if err != nil {
			return Result{}, validationErrorf("%v", err)
		}
		b := mixer.NewBus(busID, bs.DisplayName)
		b.OutputDevice = bs.OutputDevice
		dB, err := dsp.NewDecibel(bs.GainDB)
		if err != nil {
			dB = dsp.ClampDecibel(bs.GainDB)
		}
		b.Gain = dB
		b.Muted = bs.Muted
		if err := newGraph.AddBus(b); err != nil {
			return Result{}, conflictErrorf("%v", err)
		}
	}

	if err := newGraph.CheckInvariants(); err != nil {
		return Result{}, validationErrorf("%v", err)
	}

	// Reconcile streams: tear down every current binding, then reopen per
	// the new graph's device assignments.
	for id := range e.channelBindings {
		e.unbindChannel(id)
	}
	for id := range e.busBindings {
		e.unbindBus(id)
	}

	e.graph = newGraph

	for _, ch := range e.graph.Channels() {
		if ch.InputDevice == "" {
			continue
		}
		stream, err := e.devices.AssignCapture(ch.InputDevice, cfg)
		if err != nil {
			ch.DeviceError = true
			ch.LastError = err.Error()
			continue
		}
		_ = stream
		resampler := dsp.NewResampler(int(cfg.SampleRate), int(e.cfg.SampleRate), int(cfg.Channels))
		e.channelBindings[ch.ID] = &channelBinding{
			deviceID:    ch.InputDevice,
			resampler:   resampler,
			channels:    int(cfg.Channels),
			readSamples: ringReadSamples(e.cfg.FrameLength, int(cfg.Channels), cfg.SampleRate, e.cfg.SampleRate),
		}
	}
	for _, b := range e.graph.Buses() {
		if b.OutputDevice == "" {
			continue
		}
		stream, err := e.devices.AssignPlayback(b.OutputDevice, cfg)
		if err != nil {
			b.DeviceError = true
			b.LastError = err.Error()
			continue
		}
		_ = stream
		resampler := dsp.NewResampler(int(e.cfg.SampleRate), int(cfg.SampleRate), int(cfg.Channels))
		e.busBindings[b.ID] = &busBinding{deviceID: b.OutputDevice, resampler: resampler, channels: int(cfg.Channels)}
	}

	return Result{Version: e.nextVersion()}, nil
}
