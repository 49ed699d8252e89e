package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEffectChainFromConfigs_Gain(t *testing.T) {
	chain, err := NewEffectChainFromConfigs([]EffectConfig{
		{Type: "gain", Params: map[string]float64{"linear": 0.5}},
	})
	require.NoError(t, err)

	buf := []float32{1, 1, 1, 1}
	chain.Process(buf)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, buf)
	assert.Equal(t, []EffectConfig{{Type: "gain", Params: map[string]float64{"linear": 0.5}}}, chain.Configs())
}

func TestNewEffectChainFromConfigs_UnknownTypeErrors(t *testing.T) {
	_, err := NewEffectChainFromConfigs([]EffectConfig{{Type: "reverb"}})
	require.Error(t, err)
}

func TestChannel_EffectsAppliedDuringProcess(t *testing.T) {
	g := NewGraph(4)
	mic := NewChannel(mustChannelID(t, "mic"), "Mic")
	chain, err := NewEffectChainFromConfigs([]EffectConfig{
		{Type: "gain", Params: map[string]float64{"linear": 0.25}},
	})
	require.NoError(t, err)
	mic.Effects = chain
	require.NoError(t, g.AddChannel(mic))

	bus := NewBus(mustBusID(t, "main"), "Main")
	require.NoError(t, g.AddBus(bus))
	mic.SetBuses(map[BusId]struct{}{bus.ID: {}})

	in := map[ChannelId][]float32{mic.ID: {1, 1, 1, 1}}
	out := g.Process(in, 0.01)
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.25}, out[bus.ID])
}
