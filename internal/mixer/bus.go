package mixer

import "github.com/troubadour-audio/troubadour/internal/dsp"

// Bus is a named summing point: it collects contributions from every
// channel routed to it, applies its own gain/mute, and (if it has an
// assigned output device) is delivered to hardware. A bus with no output
// device is still summed and metered, but its output is discarded.
type Bus struct {
	ID           BusId
	DisplayName  string
	OutputDevice string // empty if unassigned
	Gain         dsp.Decibel
	Muted        bool

	meter *dsp.Meter

	DeviceError bool
	LastError   string
}

// NewBus constructs a bus with defaults: 0 dB gain, not muted.
func NewBus(id BusId, displayName string) *Bus {
	return &Bus{
		ID:          id,
		DisplayName: displayName,
		Gain:        0,
		meter:       dsp.NewMeter(),
	}
}

// Meter returns the bus's level meter (post-sum signal).
func (b *Bus) Meter() *dsp.Meter { return b.meter }

// Clone returns a copy suitable for inclusion in an immutable snapshot.
func (b *Bus) Clone() *Bus {
	cp := *b
	return &cp
}

// Observables returns the bus's current level/peak.
func (b *Bus) Observables() Observables {
	return Observables{LevelDecibel: b.meter.RMSDecibel(), PeakDecibel: b.meter.PeakDecibel()}
}
