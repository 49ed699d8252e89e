// Package device implements the per-device stream manager: it owns, per
// device id, at most one capture or playback stream, wires each to a
// dsp.Ring, and runs the per-device realtime callbacks via malgo.
package device

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// State is a stream's position in the per-device state machine:
// Unassigned -> Opening -> Running -> (Closing -> Unassigned) |
// (Failed -> Unassigned).
type State int

const (
	StateUnassigned State = iota
	StateOpening
	StateRunning
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "unassigned"
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Info describes one enumerated audio device.
type Info struct {
	ID            string
	Name          string
	MaxChannels   int
	SampleRates   []uint32
	IsDefault     bool
	IsPlaybackDir bool // true for playback devices, false for capture
}

// Context wraps the process-wide malgo context used for both enumeration
// and stream creation, shared across every stream instead of opened once
// per stream.
type Context struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewContext initializes the shared malgo context.
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: failed to initialize audio context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// Close releases the shared context. Callers must ensure every stream has
// already been closed: playback streams before capture streams before
// device handles.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	return err
}

// ListCaptureDevices enumerates input devices.
func (c *Context) ListCaptureDevices() ([]Info, error) {
	return c.listDevices(malgo.Capture)
}

// ListPlaybackDevices enumerates output devices.
func (c *Context) ListPlaybackDevices() ([]Info, error) {
	return c.listDevices(malgo.Playback)
}

func (c *Context) listDevices(kind malgo.DeviceType) ([]Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil, fmt.Errorf("device: context closed")
	}

	infos, err := c.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("device: failed to enumerate devices: %w", err)
	}

	out := make([]Info, 0, len(infos))
	for _, d := range infos {
		out = append(out, Info{
			ID:            d.ID.String(),
			Name:          d.Name(),
			IsPlaybackDir: kind == malgo.Playback,
		})
	}
	return out, nil
}

// overrunLogInterval rate-limits realtime-path warnings so a sustained
// overrun/underrun doesn't flood the log: only every Nth occurrence is
// printed.
const overrunLogInterval = 100

// logRateLimited logs format at most once per overrunLogInterval calls,
// counted by counter. Safe to call from a realtime audio callback since it
// never blocks beyond the atomic increment.
func logRateLimited(counter *atomic.Uint64, format string, args ...any) {
	n := counter.Add(1)
	if n%overrunLogInterval == 0 {
		log.Printf(format, args...)
	}
}
