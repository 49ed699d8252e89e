package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultAppConfig returns the built-in defaults layered underneath any
// config file and flags.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		App: AppSection{
			PreferredRate:          48000,
			FramesPerBlock:         256,
			MeterDecay:             12.0,
			PresetDirectory:        "presets",
			AutoSaveIntervalSecond: 30,
			MetricsAddr:            "",
		},
		Audio: AudioSection{
			Rate:       48000,
			Channels:   2,
			Format:     "f32",
			BufferSize: 1024,
		},
	}
}

// BindFlags registers every AppConfig field as a flag on fs, defaulting to
// DefaultAppConfig's values. Call Load afterward to layer a config file and
// the parsed flags on top of those defaults.
func BindFlags(fs *pflag.FlagSet) {
	d := DefaultAppConfig()
	fs.Uint32("preferred-rate", d.App.PreferredRate, "engine sample rate in Hz")
	fs.Int("frames-per-block", d.App.FramesPerBlock, "engine frames processed per tick")
	fs.Float64("meter-decay", d.App.MeterDecay, "peak meter decay rate in dB/s")
	fs.String("preset-directory", d.App.PresetDirectory, "directory containing saved presets")
	fs.Int("auto-save-interval-seconds", d.App.AutoSaveIntervalSecond, "seconds between automatic config saves, 0 disables")
	fs.String("metrics-addr", d.App.MetricsAddr, "address to serve /metrics on, empty disables")

	fs.String("input-device", d.Audio.InputDevice, "preferred default input device id")
	fs.String("output-device", d.Audio.OutputDevice, "preferred default output device id")
	fs.Uint32("rate", d.Audio.Rate, "default stream sample rate in Hz")
	fs.Uint32("channels", d.Audio.Channels, "default stream channel count")
	fs.String("format", d.Audio.Format, "default stream sample format")
	fs.Int("buffer-size", d.Audio.BufferSize, "default stream buffer size in frames")
}

// Load builds an AppConfig by layering, from lowest to highest precedence:
// DefaultAppConfig, an optional config file at configPath (TOML; skipped if
// configPath is empty or the file doesn't exist), and any flags in fs the
// caller actually set on the command line.
func Load(configPath string, fs *pflag.FlagSet) (AppConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")

	d := DefaultAppConfig()
	v.SetDefault("app.preferred_rate", d.App.PreferredRate)
	v.SetDefault("app.frames_per_block", d.App.FramesPerBlock)
	v.SetDefault("app.meter_decay", d.App.MeterDecay)
	v.SetDefault("app.preset_directory", d.App.PresetDirectory)
	v.SetDefault("app.auto_save_interval_seconds", d.App.AutoSaveIntervalSecond)
	v.SetDefault("app.metrics_addr", d.App.MetricsAddr)
	v.SetDefault("audio.input_device", d.Audio.InputDevice)
	v.SetDefault("audio.output_device", d.Audio.OutputDevice)
	v.SetDefault("audio.rate", d.Audio.Rate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.format", d.Audio.Format)
	v.SetDefault("audio.buffer_size", d.Audio.BufferSize)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
				return AppConfig{}, fmt.Errorf("config: failed to read %s: %w", configPath, err)
			}
		}
	}

	cfg := AppConfig{
		App: AppSection{
			PreferredRate:          v.GetUint32("app.preferred_rate"),
			FramesPerBlock:         v.GetInt("app.frames_per_block"),
			MeterDecay:             v.GetFloat64("app.meter_decay"),
			PresetDirectory:        v.GetString("app.preset_directory"),
			AutoSaveIntervalSecond: v.GetInt("app.auto_save_interval_seconds"),
			MetricsAddr:            v.GetString("app.metrics_addr"),
		},
		Audio: AudioSection{
			InputDevice:  v.GetString("audio.input_device"),
			OutputDevice: v.GetString("audio.output_device"),
			Rate:         v.GetUint32("audio.rate"),
			Channels:     v.GetUint32("audio.channels"),
			Format:       v.GetString("audio.format"),
			BufferSize:   v.GetInt("audio.buffer_size"),
		},
	}

	applyChangedFlags(&cfg, fs)
	return cfg, nil
}

// applyChangedFlags overlays onto cfg only the flags the caller explicitly
// set, so an unset flag never clobbers a value that came from the config
// file.
func applyChangedFlags(cfg *AppConfig, fs *pflag.FlagSet) {
	if fs == nil {
		return
	}
	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("preferred-rate") {
		cfg.App.PreferredRate, _ = fs.GetUint32("preferred-rate")
	}
	if changed("frames-per-block") {
		cfg.App.FramesPerBlock, _ = fs.GetInt("frames-per-block")
	}
	if changed("meter-decay") {
		cfg.App.MeterDecay, _ = fs.GetFloat64("meter-decay")
	}
	if changed("preset-directory") {
		cfg.App.PresetDirectory, _ = fs.GetString("preset-directory")
	}
	if changed("auto-save-interval-seconds") {
		cfg.App.AutoSaveIntervalSecond, _ = fs.GetInt("auto-save-interval-seconds")
	}
	if changed("metrics-addr") {
		cfg.App.MetricsAddr, _ = fs.GetString("metrics-addr")
	}
	if changed("input-device") {
		cfg.Audio.InputDevice, _ = fs.GetString("input-device")
	}
	if changed("output-device") {
		cfg.Audio.OutputDevice, _ = fs.GetString("output-device")
	}
	if changed("rate") {
		cfg.Audio.Rate, _ = fs.GetUint32("rate")
	}
	if changed("channels") {
		cfg.Audio.Channels, _ = fs.GetUint32("channels")
	}
	if changed("format") {
		cfg.Audio.Format, _ = fs.GetString("format")
	}
	if changed("buffer-size") {
		cfg.Audio.BufferSize, _ = fs.GetInt("buffer-size")
	}
}
