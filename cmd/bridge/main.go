package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenPendantBridge/internal/cncjs"
	"github.com/KevinKickass/OpenPendantBridge/internal/config"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant/hiddev"
	"github.com/KevinKickass/OpenPendantBridge/internal/storage"
	"github.com/KevinKickass/OpenPendantBridge/internal/system"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file (empty: defaults only)")
	xhcrcPath := flag.String("xhcrc", "", "optional legacy .xhcrc file layered over the config")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *xhcrcPath != "" {
		rc, err := config.LoadXHCRC(*xhcrcPath)
		if err != nil {
			log.Fatalf("Failed to load xhcrc: %v", err)
		}
		rc.Apply(cfg)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid config after xhcrc: %v", err)
		}
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			log.Fatalf("Failed to encode config: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	// Logger initialisieren
	var logger *zap.Logger
	if cfg.Logging.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("cncjs", fmt.Sprintf("%s:%d", cfg.CNCjs.Host, cfg.CNCjs.Port)),
		zap.Bool("dry_run", cfg.Actions.DryRun))

	ctx := context.Background()

	// PostgreSQL nur wenn das Journal aktiviert ist
	var db *storage.PostgresClient
	if cfg.Database.Enabled {
		db, err = storage.NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logger.Info("Database connected successfully")
	}

	lifecycle := system.NewLifecycleManager(db, cfg, defaultDependencies(), logger)

	if err := lifecycle.Start(ctx); err != nil {
		logger.Fatal("Failed to start bridge", zap.Error(err))
	}

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := lifecycle.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
			os.Exit(1)
		}
	case <-lifecycle.Done():
	}

	if err := lifecycle.Err(); err != nil {
		logger.Error("Bridge stopped with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Pendant bridge stopped successfully")
}

// defaultDependencies opens the real HID pendant and CNCjs connection.
func defaultDependencies() system.Dependencies {
	return system.Dependencies{
		OpenPendant: func(cfg config.PendantConfig, logger *zap.Logger) (system.PendantDevice, error) {
			dev, err := hiddev.Open(cfg.VendorID, cfg.ProductID, cfg.ReadTimeout, logger)
			if err != nil {
				return nil, err
			}
			return dev, nil
		},
		DialCNCjs: func(ctx context.Context, cfg cncjs.Config, handler cncjs.Handler, logger *zap.Logger) (system.ControllerClient, error) {
			client, err := cncjs.Dial(ctx, cfg, handler, logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}
