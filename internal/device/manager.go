package device

import (
	"fmt"
	"sync"
)

// Manager owns at most one capture stream and one playback stream per
// device id, keyed by the engine's per-channel/per-bus device
// assignments.
//
// Manager is safe for concurrent use: AssignCapture/AssignPlayback/Release
// are called from the control thread while the engine thread only calls
// the Capture/Playback accessors, which return stable pointers once
// assigned.
type Manager struct {
	ctx *Context

	mu        sync.Mutex
	captures  map[string]*CaptureStream
	playbacks map[string]*PlaybackStream

	engineFrameLength int
}

// NewManager creates a stream manager bound to ctx, sizing new streams'
// rings for engineFrameLength-sample engine ticks.
func NewManager(ctx *Context, engineFrameLength int) *Manager {
	return &Manager{
		ctx:               ctx,
		captures:          make(map[string]*CaptureStream),
		playbacks:         make(map[string]*PlaybackStream),
		engineFrameLength: engineFrameLength,
	}
}

// AssignCapture opens (or reopens) a capture stream for deviceID, closing
// any previous stream first.
func (m *Manager) AssignCapture(deviceID string, cfg StreamConfig) (*CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.captures[deviceID]; ok {
		existing.Close()
		delete(m.captures, deviceID)
	}

	s, err := NewCaptureStream(m.ctx, deviceID, cfg, m.engineFrameLength)
	if err != nil {
		return nil, fmt.Errorf("device: assign capture %s: %w", deviceID, err)
	}
	m.captures[deviceID] = s
	return s, nil
}

// AssignPlayback opens (or reopens) a playback stream for deviceID.
func (m *Manager) AssignPlayback(deviceID string, cfg StreamConfig) (*PlaybackStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.playbacks[deviceID]; ok {
		existing.Close()
		delete(m.playbacks, deviceID)
	}

	s, err := NewPlaybackStream(m.ctx, deviceID, cfg, m.engineFrameLength)
	if err != nil {
		return nil, fmt.Errorf("device: assign playback %s: %w", deviceID, err)
	}
	m.playbacks[deviceID] = s
	return s, nil
}

// ReleaseCapture tears down the capture stream for deviceID, if any.
func (m *Manager) ReleaseCapture(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.captures[deviceID]; ok {
		s.Close()
		delete(m.captures, deviceID)
	}
}

// ReleasePlayback tears down the playback stream for deviceID, if any.
func (m *Manager) ReleasePlayback(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.playbacks[deviceID]; ok {
		s.Close()
		delete(m.playbacks, deviceID)
	}
}

// Capture returns the capture stream for deviceID, if assigned.
func (m *Manager) Capture(deviceID string) (*CaptureStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.captures[deviceID]
	return s, ok
}

// Playback returns the playback stream for deviceID, if assigned.
func (m *Manager) Playback(deviceID string) (*PlaybackStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.playbacks[deviceID]
	return s, ok
}

// CloseAll tears down every stream. Playback streams are closed before
// capture streams before the shared context.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.playbacks {
		s.Close()
		delete(m.playbacks, id)
	}
	for id, s := range m.captures {
		s.Close()
		delete(m.captures, id)
	}
}
