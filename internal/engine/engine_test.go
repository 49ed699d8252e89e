package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/troubadour-audio/troubadour/internal/device"
	"github.com/troubadour-audio/troubadour/internal/mixer"
)

func newTestEngine(t rapid.TB) *Engine {
	t.Helper()
	e, err := New(Config{SampleRate: 48000, FrameLength: 256}, nil)
	require.NoError(t, err)
	return e
}

// deviceConfigForTest is a stream config with no device ids attached to any
// channel/bus in these tests, so LoadSnapshot never attempts to open a real
// malgo device.
func deviceConfigForTest() device.StreamConfig {
	return device.StreamConfig{SampleRate: 48000, Channels: 2, FramesPerPeriod: 256}
}

func TestEngine_SeedsMasterChannel(t *testing.T) {
	e := newTestEngine(t)
	snap := e.GetSnapshot()
	require.Len(t, snap.Channels, 1)
	assert.True(t, snap.Channels[0].IsMaster)
}

func TestEngine_AddChannel(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Version)

	snap := e.GetSnapshot()
	require.Len(t, snap.Channels, 2)
}

func TestEngine_AddChannel_DuplicateIsConflict(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.AddChannel("mic", "Mic Again")
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, engErr.Kind)
}

func TestEngine_AddChannel_InvalidIDIsValidation(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("bad id!", "Bad")
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, engErr.Kind)
}

func TestEngine_RemoveChannel_UnknownIsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RemoveChannel("ghost")
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, engErr.Kind)
}

func TestEngine_RemoveChannel_MasterIsConflict(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RemoveChannel(mixer.MasterChannelID)
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, engErr.Kind)
}

func TestEngine_SetVolume_ClampsOutOfRange(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.SetVolume("mic", 1000)
	require.NoError(t, err)

	snap := e.GetSnapshot()
	found := false
	for _, cs := range snap.Channels {
		if cs.ID == "mic" {
			found = true
			assert.Equal(t, 18.0, cs.GainDB)
		}
	}
	assert.True(t, found)
}

func TestEngine_SetVolume_RejectsNonFinite(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.SetVolume("mic", math.NaN())
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, engErr.Kind)
}

func TestEngine_SetChannelEffects(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.SetChannelEffects("mic", []mixer.EffectConfig{
		{Type: "gain", Params: map[string]float64{"linear": 0.5}},
	})
	require.NoError(t, err)

	snap := e.GetSnapshot()
	for _, cs := range snap.Channels {
		if cs.ID == "mic" {
			require.Len(t, cs.Effects, 1)
			assert.Equal(t, "gain", cs.Effects[0].Type)
		}
	}
}

func TestEngine_SetChannelEffects_UnknownTypeIsValidation(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.SetChannelEffects("mic", []mixer.EffectConfig{{Type: "reverb"}})
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, engErr.Kind)
}

func TestEngine_SetChannelEffects_UnknownChannelIsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SetChannelEffects("ghost", nil)
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, engErr.Kind)
}

func TestRingReadSamples_AccountsForChannelsAndRateRatio(t *testing.T) {
	// Stereo device at the engine's own rate: one frame per channel per
	// engine frame.
	assert.Equal(t, 256*2, ringReadSamples(256, 2, 48000, 48000))

	// Stereo device running at twice the engine rate needs twice as many
	// native frames to cover the same wall-clock tick.
	assert.Equal(t, 256*2*2, ringReadSamples(256, 2, 96000, 48000))
}

func TestDownmixUpmix_RoundTripPreservesMonoSignal(t *testing.T) {
	mono := []float32{1, 2, 3, 4}
	wide := upmix(mono, 2)
	require.Len(t, wide, 8)
	assert.Equal(t, mono, downmix(wide, 2))
}

func TestDownmixUpmix_MonoChannelsIsNoop(t *testing.T) {
	mono := []float32{1, 2, 3}
	assert.Equal(t, mono, downmix(mono, 1))
	assert.Equal(t, mono, upmix(mono, 1))
}

func TestEngine_ToggleMuteAndSolo(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.ToggleMute("mic")
	require.NoError(t, err)
	_, err = e.ToggleSolo("mic")
	require.NoError(t, err)

	snap := e.GetSnapshot()
	for _, cs := range snap.Channels {
		if cs.ID == "mic" {
			assert.True(t, cs.Muted)
			assert.True(t, cs.Solo)
		}
	}
}

func TestEngine_AddBusAndRouteChannel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)
	_, err = e.AddBus("main", "Main")
	require.NoError(t, err)

	_, err = e.SetChannelBuses("mic", []string{"main"})
	require.NoError(t, err)

	snap := e.GetSnapshot()
	for _, cs := range snap.Channels {
		if cs.ID == "mic" {
			assert.Equal(t, []string{"main"}, cs.BusIDs)
		}
	}
}

func TestEngine_SetChannelBuses_UnknownBusIsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)

	_, err = e.SetChannelBuses("mic", []string{"ghost-bus"})
	require.Error(t, err)
	engErr, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, engErr.Kind)
}

func TestEngine_RemoveBus_PrunesRouting(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddChannel("mic", "Mic")
	require.NoError(t, err)
	_, err = e.AddBus("main", "Main")
	require.NoError(t, err)
	_, err = e.SetChannelBuses("mic", []string{"main"})
	require.NoError(t, err)

	_, err = e.RemoveBus("main")
	require.NoError(t, err)

	snap := e.GetSnapshot()
	for _, cs := range snap.Channels {
		if cs.ID == "mic" {
			assert.Empty(t, cs.BusIDs)
		}
	}
}

func TestEngine_ToggleBusMute(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddBus("main", "Main")
	require.NoError(t, err)

	_, err = e.ToggleBusMute("main")
	require.NoError(t, err)

	snap := e.GetSnapshot()
	for _, bs := range snap.Buses {
		if bs.ID == "main" {
			assert.True(t, bs.Muted)
		}
	}
}

// Property 1/2: every successful mutation strictly increases the version,
// and GetSnapshot always reports the latest committed version.
func TestEngine_VersionStrictlyIncreasesOnMutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newTestEngine(t)
		last := e.GetSnapshot().Version

		n := rapid.IntRange(1, 10).Draw(t, "n")
		for i := 0; i < n; i++ {
			name := rapid.StringMatching(`[a-z]{3,8}`).Draw(t, "name")
			res, err := e.AddChannel(name+string(rune('a'+i)), "Ch")
			if err != nil {
				continue
			}
			assert.Greater(t, res.Version, last)
			last = res.Version
			assert.Equal(t, last, e.GetSnapshot().Version)
		}
	})
}

// Scenario 6 — snapshot round-trip: loading a previously captured snapshot
// reproduces the same observable channel/bus configuration.
func TestEngine_LoadSnapshotRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddBus("main", "Main")
	require.NoError(t, err)
	_, err = e.AddChannel("mic", "Mic")
	require.NoError(t, err)
	_, err = e.SetChannelBuses("mic", []string{"main"})
	require.NoError(t, err)
	_, err = e.SetVolume("mic", -6)
	require.NoError(t, err)
	_, err = e.ToggleMute("mic")
	require.NoError(t, err)

	snap := e.GetSnapshot()

	e2 := newTestEngine(t)
	_, err = e2.LoadSnapshot(snap, deviceConfigForTest())
	require.NoError(t, err)

	snap2 := e2.GetSnapshot()
	require.Len(t, snap2.Channels, len(snap.Channels))
	require.Len(t, snap2.Buses, len(snap.Buses))

	byID := make(map[string]mixer.ChannelSnapshot)
	for _, cs := range snap2.Channels {
		byID[cs.ID] = cs
	}
	mic, ok := byID["mic"]
	require.True(t, ok)
	assert.Equal(t, -6.0, mic.GainDB)
	assert.True(t, mic.Muted)
	assert.Equal(t, []string{"main"}, mic.BusIDs)
}

func TestEngine_LoadSnapshot_LegacyOutOfRangeGainIsClamped(t *testing.T) {
	e := newTestEngine(t)
	snap := mixer.Snapshot{
		Channels: []mixer.ChannelSnapshot{
			{ID: mixer.MasterChannelID, DisplayName: "Master", IsMaster: true, GainDB: 0},
			{ID: "legacy", DisplayName: "Legacy", GainDB: -120},
		},
	}
	_, err := e.LoadSnapshot(snap, deviceConfigForTest())
	require.NoError(t, err)

	got := e.GetSnapshot()
	for _, cs := range got.Channels {
		if cs.ID == "legacy" {
			assert.Equal(t, -60.0, cs.GainDB)
		}
	}
}
