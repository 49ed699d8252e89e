// Package config handles everything that crosses a process boundary as
// text: the TOML snapshot/app-config codec, preset-directory management,
// and the layered application configuration (flags over file over
// defaults).
package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/troubadour-audio/troubadour/internal/dsp"
	"github.com/troubadour-audio/troubadour/internal/mixer"
)

// AppConfig is the engine-wide and audio-stream settings persisted
// alongside a snapshot's channels/buses.
type AppConfig struct {
	App   AppSection   `toml:"app"`
	Audio AudioSection `toml:"audio"`
}

// AppSection mirrors the [app] table: engine-wide settings.
type AppSection struct {
	PreferredRate          uint32  `toml:"preferred_rate"`
	FramesPerBlock         int     `toml:"frames_per_block"`
	MeterDecay             float64 `toml:"meter_decay"`
	PresetDirectory        string  `toml:"preset_directory"`
	AutoSaveIntervalSecond int     `toml:"auto_save_interval_seconds"`
	MetricsAddr            string  `toml:"metrics_addr"`
}

// AudioSection mirrors the [audio] table: preferred devices and default
// stream config.
type AudioSection struct {
	InputDevice  string `toml:"input_device"`
	OutputDevice string `toml:"output_device"`
	Rate         uint32 `toml:"rate"`
	Channels     uint32 `toml:"channels"`
	Format       string `toml:"format"`
	BufferSize   int    `toml:"buffer_size"`
}

// fileChannel is the [[mixer.channels]] row shape: field names match the
// persisted-format's external contract exactly (id, name, volume_db, muted,
// solo, input_device, bus_ids), independent of ChannelSnapshot's Go field
// names.
type fileChannel struct {
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	VolumeDB    float64  `toml:"volume_db"`
	Muted       bool     `toml:"muted"`
	Solo        bool     `toml:"solo"`
	IsMaster    bool     `toml:"is_master"`
	InputDevice string   `toml:"input_device"`
	BusIDs      []string `toml:"bus_ids"`
}

// fileBus is the [[mixer.buses]] row shape.
type fileBus struct {
	ID           string  `toml:"id"`
	Name         string  `toml:"name"`
	VolumeDB     float64 `toml:"volume_db"`
	Muted        bool    `toml:"muted"`
	OutputDevice string  `toml:"output_device"`
}

// document is the on-disk shape: [app]/[audio] tables plus the
// [[mixer.channels]]/[[mixer.buses]] arrays of tables.
type document struct {
	App   AppSection    `toml:"app"`
	Audio AudioSection  `toml:"audio"`
	Mixer mixerDocument `toml:"mixer"`
}

type mixerDocument struct {
	Channels []fileChannel `toml:"channels"`
	Buses    []fileBus     `toml:"buses"`
}

// Encode serializes a snapshot and its app configuration into the
// persisted TOML document described by the external interface contract.
func Encode(snap mixer.Snapshot, cfg AppConfig) ([]byte, error) {
	doc := document{App: cfg.App, Audio: cfg.Audio}

	for _, cs := range snap.Channels {
		doc.Mixer.Channels = append(doc.Mixer.Channels, fileChannel{
			ID:          cs.ID,
			Name:        cs.DisplayName,
			VolumeDB:    cs.GainDB,
			Muted:       cs.Muted,
			Solo:        cs.Solo,
			IsMaster:    cs.IsMaster,
			InputDevice: cs.InputDevice,
			BusIDs:      cs.BusIDs,
		})
	}
	for _, bs := range snap.Buses {
		doc.Mixer.Buses = append(doc.Mixer.Buses, fileBus{
			ID:           bs.ID,
			Name:         bs.DisplayName,
			VolumeDB:     bs.GainDB,
			Muted:        bs.Muted,
			OutputDevice: bs.OutputDevice,
		})
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config: failed to encode snapshot: %w", err)
	}
	return out, nil
}

// Decode parses a persisted TOML document back into a snapshot (version 0,
// since a loaded file predates any engine's version counter) and its app
// configuration. Out-of-range legacy volume_db values (files saved under a
// narrower -60..+6 era) are clamped into [-60, +18] rather than rejected.
func Decode(data []byte) (mixer.Snapshot, AppConfig, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return mixer.Snapshot{}, AppConfig{}, fmt.Errorf("config: failed to parse document: %w", err)
	}

	snap := mixer.Snapshot{
		Channels: make([]mixer.ChannelSnapshot, 0, len(doc.Mixer.Channels)),
		Buses:    make([]mixer.BusSnapshot, 0, len(doc.Mixer.Buses)),
	}

	for _, fc := range doc.Mixer.Channels {
		snap.Channels = append(snap.Channels, mixer.ChannelSnapshot{
			ID:          fc.ID,
			DisplayName: fc.Name,
			GainDB:      float64(dsp.ClampDecibel(fc.VolumeDB)),
			Muted:       fc.Muted,
			Solo:        fc.Solo,
			IsMaster:    fc.IsMaster,
			InputDevice: fc.InputDevice,
			BusIDs:      fc.BusIDs,
		})
	}
	for _, fb := range doc.Mixer.Buses {
		snap.Buses = append(snap.Buses, mixer.BusSnapshot{
			ID:           fb.ID,
			DisplayName:  fb.Name,
			GainDB:       float64(dsp.ClampDecibel(fb.VolumeDB)),
			Muted:        fb.Muted,
			OutputDevice: fb.OutputDevice,
		})
	}

	cfg := AppConfig{App: doc.App, Audio: doc.Audio}
	return snap, cfg, nil
}
