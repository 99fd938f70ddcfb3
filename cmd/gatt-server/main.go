// Command gatt-server runs a BLE GATT peripheral on a BlueZ adapter: it
// powers the adapter, advertises the configured service and serves the
// default profile until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gatt-peripheral/internal/config"
	"github.com/chaz8081/gatt-peripheral/internal/server"
	"github.com/chaz8081/gatt-peripheral/internal/stack/bluez"
	"github.com/chaz8081/gatt-peripheral/internal/stack/tinygo"
)

// shutdownTimeout bounds Deinit on exit.
const shutdownTimeout = 5 * time.Second

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/gatt-peripheral/config.yaml)")
	status := flag.Bool("status", false, "start, print a JSON state snapshot, and exit")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "init-config: %v\n", err)
			os.Exit(1)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Default config written to %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := run(cfg, logger, *status); err != nil {
		slog.Error("[BLE] exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, statusOnly bool) error {
	svc, err := cfg.Service()
	if err != nil {
		return fmt.Errorf("service_uuid: %w", err)
	}
	advCfg, err := cfg.AdvConfig()
	if err != nil {
		return fmt.Errorf("advertising: %w", err)
	}

	ctrl := bluez.New(cfg.Adapter, logger.With("component", "controller"))
	host := tinygo.New(cfg.Adapter, logger.With("component", "stack"))
	srv, err := server.New(ctrl, host, server.Options{
		DeviceName:  cfg.DeviceName,
		ServiceUUID: svc,
		Bonding:     cfg.Bonding,
		MaxProfiles: cfg.MaxProfiles,
		LocalMTU:    cfg.LocalMTU,
		Advertising: advCfg,
	}, logger)
	if err != nil {
		return err
	}

	// The loop outlives the signal so Deinit can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go srv.Run(loopCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	printBanner(cfg)

	if err := srv.Init(loopCtx); err != nil {
		shutdown(srv)
		return err
	}

	if statusOnly {
		if err := srv.Sync(loopCtx); err != nil {
			return err
		}
		snap, err := srv.Snapshot(loopCtx)
		if err != nil {
			return err
		}
		out, err := snap.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		shutdown(srv)
		return nil
	}

	slog.Info("[BLE] ready, Ctrl+C to quit", "device_name", cfg.DeviceName, "service", svc)

	sig := <-sigCh
	slog.Info("[BLE] shutting down", "signal", sig.String())
	shutdown(srv)
	return nil
}

// shutdown logs a final snapshot and tears the server down.
func shutdown(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if snap, err := srv.Snapshot(ctx); err == nil {
		slog.Info("[BLE] final state", "snapshot", snap)
	}
	if err := srv.Deinit(ctx); err != nil {
		slog.Warn("[BLE] deinit", "error", err)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		fmt.Fprintf(os.Stderr, "Config loaded from %s\n", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	fmt.Fprintln(os.Stderr, "No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "=== gatt-server ===")
	fmt.Fprintf(os.Stderr, "  Device:   %s (adapter %s)\n", cfg.DeviceName, cfg.Adapter)
	fmt.Fprintf(os.Stderr, "  Service:  %s\n", cfg.ServiceUUID)
	fmt.Fprintf(os.Stderr, "  Profiles: up to %d\n", cfg.MaxProfiles)
	fmt.Fprintf(os.Stderr, "  MTU:      %d\n", cfg.LocalMTU)
	fmt.Fprintf(os.Stderr, "  Bonding:  %t\n", cfg.Bonding)
	fmt.Fprintf(os.Stderr, "  Log:      %s\n", cfg.LogLevel)
	fmt.Fprintln(os.Stderr, "===================")
}
