package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetd/fleet-server/internal/api"
	"github.com/fleetd/fleet-server/internal/config"
	"github.com/fleetd/fleet-server/internal/engine"
	"github.com/fleetd/fleet-server/internal/events"
	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/jobs"
	"github.com/fleetd/fleet-server/internal/pki"
	"github.com/fleetd/fleet-server/internal/storage"
	"github.com/fleetd/fleet-server/internal/vpn"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/fleet-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Encryption service for stored secrets and certificate material
	cryptoSvc, err := crypto.NewService(cfg.Encryption.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid encryption key")
	}

	// Certificate authority
	authority, err := pki.NewLocalAuthority(cfg.Server.Name, 2*365*24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize certificate authority")
	}

	// Config template renderer
	templates, err := loadTemplates(cfg.Fleet.ConfigTemplateDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config templates")
	}
	gen, err := generator.NewTemplateGenerator(templates)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse config templates")
	}

	// Optional NATS event publishing
	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = events.Connect(&cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without events")
			publisher = nil
		} else {
			defer publisher.Close()
		}
	} else {
		log.Info().Msg("NATS not configured, running without event publishing")
	}

	// Communication engine
	identity := engine.NewIdentityResolver(store, engine.IdentitySource(cfg.Fleet.RouterIdentitySource))
	addressManager := vpn.NewPrefixManager(cfg.Fleet.VPNSubnetPrefixBits)

	base := engine.Base{
		Store:       store,
		Identity:    identity,
		Reinstall:   engine.NewReinstallEngine(gen),
		Certs:       engine.NewCertificateRenewalEngine(store, authority, cryptoSvc, cfg.Fleet.CertificatesAutoRenewDaysBefore),
		Secrets:     engine.NewSecretRotationEngine(store, cryptoSvc),
		Variables:   engine.NewVariableResolver(store, cryptoSvc, addressManager),
		VPNLicensed: cfg.Fleet.VPNLicensed,
		ExternalURL: cfg.Fleet.ExternalURL,
		Logger:      log.Logger,
	}
	if publisher != nil {
		base.Publisher = publisher
	}

	dispatcher := engine.NewDispatcher(store, base)

	// Certificate expiry sweep
	var sweep *jobs.CertificateSweep
	if cfg.Fleet.CertificateSweepSchedule != "" {
		sweep = jobs.NewCertificateSweep(store, cfg.Fleet.CertificateSweepSchedule, cfg.Fleet.CertificatesAutoRenewDaysBefore)
		if err := sweep.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start certificate sweep")
		}
		defer sweep.Stop()
	}

	// REST API + device communication server
	apiServer := api.NewRESTServer(cfg, store, dispatcher, identity)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// loadTemplates reads every template body from the configured directory,
// keyed by file name without extension. A missing directory yields an empty
// set, which only disables config pushes.
func loadTemplates(dir string) (map[string]string, error) {
	templates := make(map[string]string)
	if dir == "" {
		return templates, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.Warn().Str("dir", dir).Msg("Config template directory not found")
		return templates, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		templates[name] = string(data)
	}
	return templates, nil
}
