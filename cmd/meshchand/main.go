// Package main runs the channel table daemon: it loads the persisted channel file, arms the
// crypto engine for the primary channel and serves the admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/api"
	"github.com/radio-control/meshchan/internal/audit"
	"github.com/radio-control/meshchan/internal/auth"
	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/config"
	"github.com/radio-control/meshchan/internal/cryptoengine"
	"github.com/radio-control/meshchan/internal/logging"
	"github.com/radio-control/meshchan/internal/mesh"
	"github.com/radio-control/meshchan/internal/store"
	"github.com/radio-control/meshchan/internal/telemetry"
)

// Version of the daemon.
const Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "meshchand: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Step 1: configuration and logging
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log.WithField("version", Version).Info("Starting meshchand")

	params, err := cfg.Node.Params()
	if err != nil {
		return err
	}

	// Step 2: channel storage
	st, err := openStore(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("Error closing channel store")
		}
	}()

	// Step 3: channel table
	ctx := context.Background()
	table := channels.NewTable(params, channels.WithPersister(st), channels.WithLogger(log))
	if err := table.Load(ctx); err != nil {
		// Defaults are in effect; keep running so the node stays reachable.
		log.WithError(err).Error("Channel file could not be loaded")
	}
	log.WithFields(logrus.Fields{
		"channels": table.NumChannels(),
		"primary":  table.GetName(table.PrimaryIndex()),
		"region":   params.Region,
		"preset":   params.Preset,
	}).Info("Channel table ready")
	if table.HasDefaultChannel() {
		log.Warn("A channel uses the public default key")
	}

	// Step 4: crypto engine and selector
	engine := cryptoengine.New()
	defer engine.Close()
	selector := channels.NewSelector(table, engine, channels.WithSelectorLogger(log))
	codec := mesh.NewCodec(table, selector, engine, log)
	if err := codec.SelfTest(ctx, table.PrimaryIndex()); err != nil {
		return fmt.Errorf("crypto self-test on primary channel: %w", err)
	}
	log.Debug("Crypto self-test passed")

	// Step 5: audit, auth and events
	auditLogger, err := audit.NewLogger(cfg.Audit, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	authMiddleware, err := newAuthMiddleware(cfg.Admin.Auth, log)
	if err != nil {
		return err
	}

	hub := telemetry.NewHub(cfg.Events, snapshotFunc(table), log)
	defer hub.Stop()

	// Step 6: admin API
	server := api.NewServer(cfg.Admin, table, hub, auditLogger, authMiddleware, log)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Admin.Addr); err != nil {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case err := <-serverErr:
			return err
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				reload(configPath, cfg, table, auditLogger, log)
				continue
			}
			log.WithField("signal", sig.String()).Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := server.Stop(shutdownCtx)
			cancel()
			return err
		}
	}
}

func openStore(cfg config.StorageConfig, log logrus.FieldLogger) (*store.BadgerStore, error) {
	if cfg.InMemory {
		log.Warn("Channel store is in memory, changes are lost on restart")
		return store.OpenInMemory(log)
	}
	return store.Open(cfg.Path, log)
}

func newAuthMiddleware(cfg config.AuthConfig, log logrus.FieldLogger) (*auth.Middleware, error) {
	if cfg.Disabled {
		log.Warn("Admin API authentication is disabled")
		return auth.NewDisabledMiddleware(api.WriteAuthError), nil
	}
	verifier, err := auth.NewVerifierFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	return auth.NewMiddleware(verifier, api.WriteAuthError, log), nil
}

// snapshotFunc builds the state sent to each event subscriber on connect.
func snapshotFunc(table *channels.Table) telemetry.SnapshotFunc {
	return func() map[string]interface{} {
		list := table.Channels()
		out := make([]map[string]interface{}, 0, len(list))
		for _, ch := range list {
			out = append(out, map[string]interface{}{
				"index": ch.Index,
				"name":  table.GetName(ch.Index),
				"role":  ch.Role.String(),
				"hash":  table.Hash(ch.Index),
			})
		}
		return map[string]interface{}{
			"channels": out,
			"primary":  table.PrimaryIndex(),
			"active":   table.ActiveIndex(),
		}
	}
}

// reload re-reads the node section and rotates the audit file. Other sections need a restart.
func reload(configPath string, current *config.Config, table *channels.Table, auditLogger *audit.Logger, log logrus.FieldLogger) {
	if err := auditLogger.Rotate(); err != nil {
		log.WithError(err).Warn("Audit log rotation failed")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Error("Reload failed, keeping current configuration")
		return
	}
	if cfg.Node == current.Node {
		log.Info("Reload: radio configuration unchanged")
		return
	}
	params, err := cfg.Node.Params()
	if err != nil {
		log.WithError(err).Error("Reload failed, keeping current configuration")
		return
	}
	table.OnConfigChanged(params)
	current.Node = cfg.Node
	log.WithFields(logrus.Fields{"region": params.Region, "preset": params.Preset}).Info("Radio configuration reloaded")
}
