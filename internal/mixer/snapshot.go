package mixer

// ChannelSnapshot is the immutable, serializable view of one channel at the
// moment a Snapshot was taken.
type ChannelSnapshot struct {
	ID          string
	DisplayName string
	InputDevice string
	GainDB      float64
	Muted       bool
	Solo        bool
	IsMaster    bool
	BusIDs      []string
	Effects     []EffectConfig
	Observables Observables
	DeviceError bool
	LastError   string
}

// BusSnapshot is the immutable, serializable view of one bus.
type BusSnapshot struct {
	ID           string
	DisplayName  string
	OutputDevice string
	GainDB       float64
	Muted        bool
	Observables  Observables
	DeviceError  bool
	LastError    string
}

// Snapshot is an immutable value capturing the graph's entire observable
// state at one instant, versioned by a monotonically increasing counter
// a given version's contents never change once published.
type Snapshot struct {
	Version  uint64
	Channels []ChannelSnapshot
	Buses    []BusSnapshot
}

// Snapshot copies the live graph into an immutable value. version is
// supplied by the caller (the control surface owns the version counter so
// it can be incremented exactly once per committed command).
func (g *Graph) Snapshot(version uint64) Snapshot {
	snap := Snapshot{
		Version:  version,
		Channels: make([]ChannelSnapshot, 0, len(g.channelOrder)),
		Buses:    make([]BusSnapshot, 0, len(g.busOrder)),
	}

	for _, id := range g.channelOrder {
		ch := g.channels[id]
		busIDs := make([]string, 0, len(ch.Buses))
		for b := range ch.Buses {
			busIDs = append(busIDs, b.String())
		}
		snap.Channels = append(snap.Channels, ChannelSnapshot{
			ID:          ch.ID.String(),
			DisplayName: ch.DisplayName,
			InputDevice: ch.InputDevice,
			GainDB:      float64(ch.Gain),
			Muted:       ch.Muted,
			Solo:        ch.Solo,
			IsMaster:    ch.IsMaster,
			BusIDs:      busIDs,
			Effects:     ch.Effects.Configs(),
			Observables: ch.Observables(),
			DeviceError: ch.DeviceError,
			LastError:   ch.LastError,
		})
	}

	for _, id := range g.busOrder {
		b := g.buses[id]
		snap.Buses = append(snap.Buses, BusSnapshot{
			ID:           b.ID.String(),
			DisplayName:  b.DisplayName,
			OutputDevice: b.OutputDevice,
			GainDB:       float64(b.Gain),
			Muted:        b.Muted,
			Observables:  b.Observables(),
			DeviceError:  b.DeviceError,
			LastError:    b.LastError,
		})
	}

	return snap
}

// CheckInvariants verifies the graph-level structural invariants: every
// channel's routed buses exist, and at most one channel is the master. It's
// used by the graph tests and by load-snapshot validation.
func (g *Graph) CheckInvariants() error {
	masters := 0
	for _, id := range g.channelOrder {
		ch := g.channels[id]
		if ch.IsMaster {
			masters++
		}
		for busID := range ch.Buses {
			if !g.HasBus(busID) {
				return errBusNotFound(busID)
			}
		}
	}
	if masters > 1 {
		return errMultipleMasters(masters)
	}
	return nil
}
