package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/troubadour-audio/troubadour/internal/mixer"
)

// presetExt is the file extension every preset is saved and looked up
// under.
const presetExt = ".toml"

// PresetDirectory manages a directory of named presets: each preset is one
// TOML document in the format Encode/Decode produce, named
// "<preset-name>.toml".
type PresetDirectory struct {
	dir string
}

// NewPresetDirectory opens dir, creating it if absent.
func NewPresetDirectory(dir string) (*PresetDirectory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: failed to create preset directory %s: %w", dir, err)
	}
	return &PresetDirectory{dir: dir}, nil
}

// List returns the preset-name stems of every file directly inside the
// directory.
func (p *PresetDirectory) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("config: failed to list presets: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	return names, nil
}

// Load decodes the named preset.
func (p *PresetDirectory) Load(name string) (mixer.Snapshot, AppConfig, error) {
	data, err := os.ReadFile(p.path(name))
	if err != nil {
		return mixer.Snapshot{}, AppConfig{}, fmt.Errorf("config: failed to read preset %s: %w", name, err)
	}
	return Decode(data)
}

// Save encodes snap/cfg and writes it under name, overwriting any existing
// preset with the same name.
func (p *PresetDirectory) Save(name string, snap mixer.Snapshot, cfg AppConfig) error {
	data, err := Encode(snap, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.path(name), data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write preset %s: %w", name, err)
	}
	return nil
}

// Delete removes the named preset.
func (p *PresetDirectory) Delete(name string) error {
	if err := os.Remove(p.path(name)); err != nil {
		return fmt.Errorf("config: failed to delete preset %s: %w", name, err)
	}
	return nil
}

func (p *PresetDirectory) path(name string) string {
	return filepath.Join(p.dir, name+presetExt)
}

// Watcher watches the preset directory for filesystem changes, emitting an
// invalidation signal on every create/write/remove/rename event.
type Watcher struct {
	fsw         *fsnotify.Watcher
	Invalidated chan struct{}
}

// WatchPresetDirectory starts watching dir. Callers must call Close to
// release the underlying inotify/kqueue handle.
func WatchPresetDirectory(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to start preset directory watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: failed to watch preset directory %s: %w", dir, err)
	}

	w := &Watcher{fsw: fsw, Invalidated: make(chan struct{}, 1)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&relevant == 0 {
				continue
			}
			select {
			case w.Invalidated <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config: preset directory watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
