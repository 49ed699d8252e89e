package mixer

import (
	"strings"

	"github.com/troubadour-audio/troubadour/internal/dsp"
)

// Channel is an input-side strip: gain, mute, solo, an effects chain, and a
// set of buses it is routed to. It is also the shape of the master channel
// (IsMaster). The mixer graph processes the master channel like any other
// channel: it is not mixed as a bus, and no bus output is summed into it.
type Channel struct {
	ID          ChannelId
	DisplayName string
	InputDevice string // empty if unassigned
	Gain        dsp.Decibel
	Muted       bool
	Solo        bool
	IsMaster    bool

	Effects *EffectChain
	Buses   map[BusId]struct{}

	meter *dsp.Meter

	// DeviceError/LastError surface a failed input-device stream without
	// tearing down the channel entity itself.
	DeviceError bool
	LastError   string
}

// NewChannel constructs a channel with default settings: 0 dB gain, not
// muted, not solo, no bus membership.
func NewChannel(id ChannelId, displayName string) *Channel {
	return &Channel{
		ID:          id,
		DisplayName: displayName,
		Gain:        0,
		Effects:     NewEffectChain(),
		Buses:       make(map[BusId]struct{}),
		meter:       dsp.NewMeter(),
		IsMaster:    id.value == MasterChannelID || strings.EqualFold(displayName, "master"),
	}
}

// Meter returns the channel's level meter (post-gain, pre-sum signal).
func (c *Channel) Meter() *dsp.Meter { return c.meter }

// RoutedTo reports whether the channel is a member of bus b.
func (c *Channel) RoutedTo(b BusId) bool {
	_, ok := c.Buses[b]
	return ok
}

// SetBuses replaces the channel's bus membership wholesale.
func (c *Channel) SetBuses(buses map[BusId]struct{}) {
	c.Buses = buses
}

// Clone returns a deep copy suitable for inclusion in an immutable
// snapshot: mutating the returned Channel never affects the live graph.
func (c *Channel) Clone() *Channel {
	cp := *c
	cp.Buses = make(map[BusId]struct{}, len(c.Buses))
	for b := range c.Buses {
		cp.Buses[b] = struct{}{}
	}
	// Effects chain and meter are not deep-cloned into the snapshot value;
	// snapshot readers consume Observables() for metering, not the live
	// chain.
	return &cp
}

// Observables captures the point-in-time metering for a channel.
type Observables struct {
	LevelDecibel dsp.Decibel
	PeakDecibel  dsp.Decibel
}

// Observables returns the channel's current level/peak.
func (c *Channel) Observables() Observables {
	return Observables{LevelDecibel: c.meter.RMSDecibel(), PeakDecibel: c.meter.PeakDecibel()}
}
