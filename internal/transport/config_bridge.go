package transport

import (
	"github.com/troubadour-audio/troubadour/internal/config"
	"github.com/troubadour-audio/troubadour/internal/mixer"
)

func decodeConfig(data []byte) (mixer.Snapshot, config.AppConfig, error) {
	return config.Decode(data)
}

func encodeConfig(snap mixer.Snapshot) ([]byte, error) {
	return config.Encode(snap, defaultPresetConfig())
}

func defaultPresetConfig() config.AppConfig {
	return config.DefaultAppConfig()
}
