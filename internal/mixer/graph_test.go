package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/troubadour-audio/troubadour/internal/dsp"
)

func mustChannelID(t rapid.TB, s string) ChannelId {
	t.Helper()
	id, err := NewChannelId(s)
	require.NoError(t, err)
	return id
}

func mustBusID(t rapid.TB, s string) BusId {
	t.Helper()
	id, err := NewBusId(s)
	require.NoError(t, err)
	return id
}

// Scenario 1 — silent by default.
func TestScenario_SilentByDefault(t *testing.T) {
	g := NewGraph(4)
	mic := NewChannel(mustChannelID(t, "mic"), "Mic")
	require.NoError(t, g.AddChannel(mic))

	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))

	in := map[ChannelId][]float32{mic.ID: {1, 1, 1, 1}}
	out := g.Process(in, 0.01)

	assert.Equal(t, []float32{0, 0, 0, 0}, out[bus.ID])
	assert.InDelta(t, 0.0, float64(mic.Meter().RMSDecibel()), 0.1)
}

// Scenario 2 — unity passthrough.
func TestScenario_UnityPassthrough(t *testing.T) {
	g := NewGraph(4)
	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))

	mic := NewChannel(mustChannelID(t, "mic"), "Mic")
	mic.Buses[bus.ID] = struct{}{}
	require.NoError(t, g.AddChannel(mic))

	in := map[ChannelId][]float32{mic.ID: {0.5, -0.5, 0.5, -0.5}}
	out := g.Process(in, 0.01)

	assert.InDeltaSlice(t, []float32{0.5, -0.5, 0.5, -0.5}, out[bus.ID], 1e-6)
	assert.InDelta(t, -6.02, float64(bus.Meter().PeakDecibel()), 0.1)
}

// Scenario 3 — gain attenuation.
func TestScenario_GainAttenuation(t *testing.T) {
	g := NewGraph(4)
	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))

	mic := NewChannel(mustChannelID(t, "mic"), "Mic")
	mic.Gain = -6
	mic.Buses[bus.ID] = struct{}{}
	require.NoError(t, g.AddChannel(mic))

	in := map[ChannelId][]float32{mic.ID: {1, 1, 1, 1}}
	out := g.Process(in, 0.01)

	for _, v := range out[bus.ID] {
		assert.InDelta(t, 0.5012, v, 0.01)
	}
}

// Scenario 4 — solo isolates.
func TestScenario_SoloIsolates(t *testing.T) {
	g := NewGraph(4)
	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))

	a := NewChannel(mustChannelID(t, "a"), "A")
	a.Buses[bus.ID] = struct{}{}
	a.Solo = true
	require.NoError(t, g.AddChannel(a))

	b := NewChannel(mustChannelID(t, "b"), "B")
	b.Buses[bus.ID] = struct{}{}
	require.NoError(t, g.AddChannel(b))

	in := map[ChannelId][]float32{
		a.ID: {1, 1, 1, 1},
		b.ID: {1, 1, 1, 1},
	}
	out := g.Process(in, 0.01)

	assert.InDeltaSlice(t, []float32{1, 1, 1, 1}, out[bus.ID], 1e-6)
	assert.Equal(t, dsp.Decibel(dsp.MinDecibel), b.Meter().RMSDecibel())
}

// Scenario 5 — mute is hard.
func TestScenario_MuteIsHard(t *testing.T) {
	g := NewGraph(4)
	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))

	a := NewChannel(mustChannelID(t, "a"), "A")
	a.Muted = true
	a.Gain = 18
	a.Buses[bus.ID] = struct{}{}
	require.NoError(t, g.AddChannel(a))

	in := map[ChannelId][]float32{a.ID: {1, 1, 1, 1}}
	out := g.Process(in, 0.01)

	assert.Equal(t, []float32{0, 0, 0, 0}, out[bus.ID])
}

// Property 3: a muted channel contributes exactly 0.0 to every bus.
func TestProperty_MutedChannelContributesZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewGraph(8)
		bus := NewBus(mustBusID(t, "main"), "Main")
		require.NoError(t, g.AddBus(bus))

		ch := NewChannel(mustChannelID(t, "ch"), "Ch")
		ch.Muted = true
		ch.Gain = dsp.Decibel(rapid.Float64Range(-60, 18).Draw(t, "gain"))
		ch.Buses[bus.ID] = struct{}{}
		require.NoError(t, g.AddChannel(ch))

		block := make([]float32, 8)
		for i := range block {
			block[i] = rapid.Float32Range(-1, 1).Draw(t, "sample")
		}

		out := g.Process(map[ChannelId][]float32{ch.ID: block}, 0.01)
		for _, v := range out[bus.ID] {
			assert.Equal(t, float32(0), v)
		}
	})
}

// Property 4: when any channel is soloed (and not muted), every non-solo
// channel contributes exactly 0.0.
func TestProperty_SoloMutesNonSolo(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewGraph(8)
		bus := NewBus(mustBusID(t, "main"), "Main")
		require.NoError(t, g.AddBus(bus))

		soloed := NewChannel(mustChannelID(t, "solo"), "Solo")
		soloed.Solo = true
		soloed.Buses[bus.ID] = struct{}{}
		require.NoError(t, g.AddChannel(soloed))

		other := NewChannel(mustChannelID(t, "other"), "Other")
		other.Buses[bus.ID] = struct{}{}
		require.NoError(t, g.AddChannel(other))

		block := make([]float32, 8)
		for i := range block {
			block[i] = rapid.Float32Range(-1, 1).Draw(t, "sample")
		}

		out := g.Process(map[ChannelId][]float32{
			soloed.ID: make([]float32, 8),
			other.ID:  block,
		}, 0.01)

		for _, v := range out[bus.ID] {
			assert.Equal(t, float32(0), v)
		}
		assert.Equal(t, dsp.Decibel(dsp.MinDecibel), other.Meter().RMSDecibel())
	})
}

// Property 5: for input samples with |x|<=1, a channel with gain g<=0 dB
// routed to one bus produces output bounded by the linear gain.
func TestProperty_GainBoundsOutput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewGraph(8)
		bus := NewBus(mustBusID(t, "main"), "Main")
		require.NoError(t, g.AddBus(bus))

		ch := NewChannel(mustChannelID(t, "ch"), "Ch")
		gainDB := rapid.Float64Range(dsp.MinDecibel, 0).Draw(t, "gain")
		ch.Gain = dsp.Decibel(gainDB)
		ch.Buses[bus.ID] = struct{}{}
		require.NoError(t, g.AddChannel(ch))

		block := make([]float32, 8)
		for i := range block {
			block[i] = rapid.Float32Range(-1, 1).Draw(t, "sample")
		}

		out := g.Process(map[ChannelId][]float32{ch.ID: block}, 0.01)
		bound := float32(ch.Gain.Linear()) + 1e-5
		for _, v := range out[bus.ID] {
			assert.LessOrEqual(t, v, bound)
			assert.GreaterOrEqual(t, v, -bound)
		}
	})
}

func TestGraph_RemoveBusPrunesChannelMembership(t *testing.T) {
	g := NewGraph(4)
	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))

	ch := NewChannel(mustChannelID(t, "ch"), "Ch")
	ch.Buses[bus.ID] = struct{}{}
	require.NoError(t, g.AddChannel(ch))

	require.NoError(t, g.RemoveBus(bus.ID))
	assert.Empty(t, ch.Buses)
	assert.NoError(t, g.CheckInvariants())
}

func TestGraph_RemoveMasterIsRejected(t *testing.T) {
	g := NewGraph(4)
	master := NewChannel(mustChannelID(t, "master"), "Master")
	require.NoError(t, g.AddChannel(master))
	require.Error(t, g.RemoveChannel(master.ID))
}

func TestGraph_DuplicateMasterRejected(t *testing.T) {
	g := NewGraph(4)
	m1 := NewChannel(mustChannelID(t, "master"), "Master")
	require.NoError(t, g.AddChannel(m1))

	m2 := NewChannel(mustChannelID(t, "main-vocal"), "MASTER")
	require.Error(t, g.AddChannel(m2))
}
