package mixer

import (
	"fmt"
	"time"

	"github.com/troubadour-audio/troubadour/internal/dsp"
)

// Graph owns the table of channels and buses and the routing edges implied
// by each channel's bus membership, and implements the single-pass
// per-tick processing algorithm: solo evaluation, per-channel audibility,
// effects and gain, metering, per-bus summing, and final bus gain/mute.
//
// Graph is not safe for concurrent use; callers (the control thread and the
// engine's processing tick) serialize access through a mutex held outside
// this type.
type Graph struct {
	channels map[ChannelId]*Channel
	buses    map[BusId]*Bus

	// order preserves insertion order for deterministic snapshot listings.
	channelOrder []ChannelId
	busOrder     []BusId

	// busBuffers are the pre-allocated, reused per-bus output buffers;
	// Process never allocates one per tick.
	busBuffers map[BusId][]float32
	// scratch is a single reusable per-channel scratch buffer; since
	// Process handles one channel at a time there is no need for one per
	// channel.
	scratch []float32

	frameLength int
}

// NewGraph creates an empty graph whose per-tick buffers are sized for
// frameLength samples. Every bus buffer is mono: frameLength floats, with
// no interleaved stereo layout.
func NewGraph(frameLength int) *Graph {
	return &Graph{
		channels:    make(map[ChannelId]*Channel),
		buses:       make(map[BusId]*Bus),
		busBuffers:  make(map[BusId][]float32),
		frameLength: frameLength,
	}
}

// AddChannel inserts a channel. Returns Conflict-shaped error if the id
// already exists.
func (g *Graph) AddChannel(ch *Channel) error {
	if _, exists := g.channels[ch.ID]; exists {
		return fmt.Errorf("mixer: channel %q already exists", ch.ID)
	}
	if ch.IsMaster {
		for _, id := range g.channelOrder {
			if g.channels[id].IsMaster {
				return fmt.Errorf("mixer: a master channel already exists")
			}
		}
	}
	g.channels[ch.ID] = ch
	g.channelOrder = append(g.channelOrder, ch.ID)
	return nil
}

// RemoveChannel deletes a channel and prunes it from bus membership (which
// is implicit: the channel simply stops existing, so no bus-side state
// needs updating). Returns an error if id is absent or is the master.
func (g *Graph) RemoveChannel(id ChannelId) error {
	ch, ok := g.channels[id]
	if !ok {
		return fmt.Errorf("mixer: channel %q not found", id)
	}
	if ch.IsMaster {
		return fmt.Errorf("mixer: the master channel cannot be removed")
	}
	delete(g.channels, id)
	for i, oid := range g.channelOrder {
		if oid == id {
			g.channelOrder = append(g.channelOrder[:i], g.channelOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Channel returns the channel with the given id, if any.
func (g *Graph) Channel(id ChannelId) (*Channel, bool) {
	ch, ok := g.channels[id]
	return ch, ok
}

// Channels returns all channels in insertion order.
func (g *Graph) Channels() []*Channel {
	out := make([]*Channel, 0, len(g.channelOrder))
	for _, id := range g.channelOrder {
		out = append(out, g.channels[id])
	}
	return out
}

// AddBus inserts a bus. Returns an error if the id already exists.
func (g *Graph) AddBus(b *Bus) error {
	if _, exists := g.buses[b.ID]; exists {
		return fmt.Errorf("mixer: bus %q already exists", b.ID)
	}
	g.buses[b.ID] = b
	g.busOrder = append(g.busOrder, b.ID)
	return nil
}

// RemoveBus deletes a bus and prunes it from every channel's membership.
// A bus still referenced by channels is not an error: members are silently
// pruned.
func (g *Graph) RemoveBus(id BusId) error {
	if _, ok := g.buses[id]; !ok {
		return fmt.Errorf("mixer: bus %q not found", id)
	}
	delete(g.buses, id)
	delete(g.busBuffers, id)
	for i, oid := range g.busOrder {
		if oid == id {
			g.busOrder = append(g.busOrder[:i], g.busOrder[i+1:]...)
			break
		}
	}
	for _, ch := range g.channels {
		delete(ch.Buses, id)
	}
	return nil
}

// Bus returns the bus with the given id, if any.
func (g *Graph) Bus(id BusId) (*Bus, bool) {
	b, ok := g.buses[id]
	return b, ok
}

// Buses returns all buses in insertion order.
func (g *Graph) Buses() []*Bus {
	out := make([]*Bus, 0, len(g.busOrder))
	for _, id := range g.busOrder {
		out = append(out, g.buses[id])
	}
	return out
}

// HasBus reports whether id names a bus currently in the graph; used to
// validate a channel's requested bus-membership set before committing it.
func (g *Graph) HasBus(id BusId) bool {
	_, ok := g.buses[id]
	return ok
}

// Process runs one engine tick: for every (channelID, inputBuffer) pair in
// inputs, it evaluates audibility, runs the channel's effects chain and
// gain, updates its meter, and sums the result into every bus it is routed
// to; then applies each bus's own gain/mute and updates its meter.
//
// elapsedSeconds is the wall-clock time since the previous tick, used to
// drive peak-meter decay. It returns a map from BusId to that bus's newly
// summed output buffer — owned by the graph and valid until the next call
// to Process.
func (g *Graph) Process(inputs map[ChannelId][]float32, elapsedSeconds float64) map[BusId][]float32 {
	anySolo := false
	for _, ch := range g.channels {
		if ch.Solo && !ch.Muted {
			anySolo = true
			break
		}
	}

	for _, id := range g.busOrder {
		buf := g.busBuffer(id)
		for i := range buf {
			buf[i] = 0
		}
	}

	for chID, in := range inputs {
		ch, ok := g.channels[chID]
		if !ok {
			// A device arrival may race channel creation; silently ignore.
			continue
		}

		audible := !ch.Muted && (!anySolo || ch.Solo)
		if !audible {
			ch.Meter().Update(nil, elapsedSeconds)
			continue
		}

		if cap(g.scratch) < len(in) {
			g.scratch = make([]float32, len(in))
		}
		scratch := g.scratch[:len(in)]
		copy(scratch, in)

		ch.Effects.Process(scratch)

		linear := float32(ch.Gain.Linear())
		for i := range scratch {
			scratch[i] *= linear
		}

		ch.Meter().Update(scratch, elapsedSeconds)

		for busID := range ch.Buses {
			buf := g.busBuffer(busID)
			n := len(scratch)
			if n > len(buf) {
				n = len(buf)
			}
			for i := 0; i < n; i++ {
				buf[i] += scratch[i]
			}
		}
	}

	// Channels present in the graph but absent from inputs contribute
	// silence; still decay their meter.
	for _, id := range g.channelOrder {
		if _, present := inputs[id]; !present {
			g.channels[id].Meter().Update(nil, elapsedSeconds)
		}
	}

	outputs := make(map[BusId][]float32, len(g.busOrder))
	for _, id := range g.busOrder {
		b := g.buses[id]
		buf := g.busBuffer(id)

		if b.Muted {
			for i := range buf {
				buf[i] = 0
			}
		} else {
			linear := float32(b.Gain.Linear())
			for i := range buf {
				buf[i] *= linear
			}
		}

		b.Meter().Update(buf, elapsedSeconds)
		outputs[id] = buf
	}

	return outputs
}

// busBuffer returns the bus's reused output buffer, (re)allocating it only
// if the frame length changed.
func (g *Graph) busBuffer(id BusId) []float32 {
	buf, ok := g.busBuffers[id]
	if !ok || len(buf) != g.frameLength {
		buf = make([]float32, g.frameLength)
		g.busBuffers[id] = buf
	}
	return buf
}

// Saturate clips samples to [-1, 1] in place. Internal bus sums may exceed
// that range; this is applied only at the point of writing to an output
// device stream.
func Saturate(buf []float32) {
	for i, v := range buf {
		if v > 1 {
			buf[i] = 1
		} else if v < -1 {
			buf[i] = -1
		}
	}
}

// Now returns the current wall-clock time (time.Now).
func Now() time.Time { return time.Now() }
