// Command troubadourd runs the mixer engine as a long-lived process: it
// opens the shared audio context, starts the processing tick, serves
// Prometheus metrics, watches the preset directory, and dispatches
// commands read as newline-delimited JSON on stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/troubadour-audio/troubadour/internal/config"
	"github.com/troubadour-audio/troubadour/internal/device"
	"github.com/troubadour-audio/troubadour/internal/engine"
	"github.com/troubadour-audio/troubadour/internal/metrics"
	"github.com/troubadour-audio/troubadour/internal/transport"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "troubadourd",
		Short: "Virtual audio mixer engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, cmd.Flags())
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	config.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		log.Printf("troubadourd: %v", err)
		os.Exit(1)
	}
}

func serve(configPath string, fs *pflag.FlagSet) error {
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	devCtx, err := device.NewContext()
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	eng, err := engine.New(engine.Config{
		SampleRate:  cfg.App.PreferredRate,
		FrameLength: cfg.App.FramesPerBlock,
	}, devCtx)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer eng.Close()

	registry := metrics.NewRegistry()
	eng.SetMetrics(registry)
	metricsServer := registry.Start(cfg.App.MetricsAddr)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("troubadourd: metrics server shutdown: %v", err)
		}
	}()

	presets, err := config.NewPresetDirectory(cfg.App.PresetDirectory)
	if err != nil {
		return fmt.Errorf("failed to open preset directory: %w", err)
	}
	watcher, err := config.WatchPresetDirectory(cfg.App.PresetDirectory)
	if err != nil {
		return fmt.Errorf("failed to watch preset directory: %w", err)
	}
	defer watcher.Close()
	go func() {
		for range watcher.Invalidated {
			log.Printf("troubadourd: preset directory changed")
		}
	}()

	streamCfg := device.StreamConfig{
		SampleRate:      cfg.Audio.Rate,
		Channels:        cfg.Audio.Channels,
		FramesPerPeriod: uint32(cfg.App.FramesPerBlock),
	}
	server := &transport.Server{
		Engine:  eng,
		DevCtx:  devCtx,
		Presets: presets,
		Stream:  streamCfg,
	}

	stop := make(chan struct{})
	go eng.RunTicker(stop)
	defer close(stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	commandsDone := make(chan struct{})
	go serveCommands(server, os.Stdin, os.Stdout, commandsDone)

	log.Printf("troubadourd: running (sample rate %d Hz, %d frames/tick)", cfg.App.PreferredRate, cfg.App.FramesPerBlock)

	select {
	case <-sigChan:
		log.Println("troubadourd: shutting down")
	case <-commandsDone:
		log.Println("troubadourd: command stream closed, shutting down")
	}
	return nil
}

// serveCommands reads one JSON request per line from in and writes one JSON
// response per line to out, until in is closed.
func serveCommands(server *transport.Server, in *os.File, out *os.File, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := server.DispatchJSON(line)
		fmt.Fprintln(out, string(resp))
	}
}
