// vidqr server: a TCP front end over a registry of text-to-QR-video
// stores, each backed by its own data directory.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"time"

	"github.com/vidqr/vidqr/pkg/config"
	"github.com/vidqr/vidqr/pkg/embed"
	"github.com/vidqr/vidqr/pkg/kernel"
	"github.com/vidqr/vidqr/pkg/logging"
	"github.com/vidqr/vidqr/pkg/pipeline"
	"github.com/vidqr/vidqr/pkg/server"
	"github.com/vidqr/vidqr/pkg/shutdown"
	"github.com/vidqr/vidqr/pkg/store"
	"github.com/vidqr/vidqr/pkg/version"
)

func main() {
	configFile := flag.String("config", "", "Config file path (YAML)")
	addr := flag.String("addr", "", "Server address (override config)")
	dataDir := flag.String("data", "", "Data directory (override config)")
	vectorDim := flag.Int("dim", 0, "Vector dimension (override config)")
	logLevel := flag.String("log-level", "", "Log level (override config)")
	idleTTL := flag.Duration("idle-ttl", store.DefaultIdleTTL, "Idle store eviction timeout")
	idleSweep := flag.Duration("idle-sweep-interval", time.Minute, "Idle store sweep interval")
	flag.Parse()

	var cfg config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			logging.Error("Failed to load config: %v", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataDir != "" {
		cfg.Server.BaseDir = *dataDir
	}
	if *vectorDim != 0 {
		cfg.Server.Dim = *vectorDim
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	}); err != nil {
		logging.Error("Failed to initialize logger: %v", err)
		os.Exit(1)
	}
	log := logging.WithPrefix("main")

	baseDir, err := config.SanitizeDataDir(cfg.Server.BaseDir)
	if err != nil {
		log.Error("Invalid data directory: %v", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		log.Error("Failed to create data directory: %v", err)
		os.Exit(1)
	}

	log.Info("vidqr v%s starting...", version.Version)
	log.Info("  Address:    %s", cfg.Server.Addr)
	log.Info("  Data dir:   %s", baseDir)
	log.Info("  Vector dim: %d", cfg.Server.Dim)
	log.Info("  Log level:  %s", cfg.Logging.Level)

	storeKernel := kernelFor(cfg.Index.Kernel, cfg.Server.Dim)
	cfgFor := func(dir string) store.Config {
		sc := store.DefaultConfig(cfg.Server.Dim)
		sc.Kernel = storeKernel
		sc.ChunkConfig = cfg.ToChunkConfig()
		sc.HNSWConfig = cfg.HNSWConfig()
		sc.FlatCrossover = cfg.Index.FlatCrossover
		sc.BuildParams = pipeline.BuildParams{
			Width:   cfg.Video.Width,
			Height:  cfg.Video.Height,
			FPS:     cfg.Video.FPS,
			Version: cfg.QR.Version,
			ECC:     cfg.ECCLevel(),
		}
		return sc
	}

	manager := store.NewManager(baseDir, cfgFor, embed.Hash(cfg.Server.Dim))
	manager.SetIdleTTL(*idleTTL)
	manager.StartIdleSweep(*idleSweep)
	log.Info("  Idle TTL:   %s (sweep every %s)", *idleTTL, *idleSweep)

	srvCfg := server.Config{
		MaxFrameSize: cfg.Security.MaxFrameSize,
		IdleTimeout:  cfg.Security.IdleTimeout,
		RateLimit:    cfg.Security.RateLimit,
		RateBurst:    cfg.Security.RateBurst,
	}
	if cfg.TLS.Enabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			log.Error("Failed to load TLS cert/key: %v", err)
			os.Exit(1)
		}
		srvCfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		log.Info("  TLS:        enabled")
	} else {
		log.Warn("Running without TLS")
	}

	srv := server.New(manager, srvCfg)
	if err := srv.Start(cfg.Server.Addr); err != nil {
		log.Error("Failed to start server: %v", err)
		os.Exit(1)
	}
	log.Info("Server ready, listening on %s", srv.Addr())

	shutdownHandler := shutdown.NewHandler()
	shutdownHandler.SetTimeout(30 * time.Second)

	shutdownHandler.Register("server", 10, func(ctx context.Context) error {
		srv.Stop()
		return nil
	})
	shutdownHandler.Register("idle-sweep", 20, func(ctx context.Context) error {
		manager.StopIdleSweep()
		return nil
	})
	shutdownHandler.Register("stores", 30, func(ctx context.Context) error {
		return manager.CloseAll()
	})
	shutdownHandler.Register("metrics-snapshot", 40, func(ctx context.Context) error {
		snap := store.Metrics.Snapshot()
		log.Info("Final metrics: %d counters, %d gauges, %d histograms",
			len(snap.Counters), len(snap.Gauges), len(snap.Histograms))
		return nil
	})

	shutdownHandler.Start()
	shutdownHandler.Wait()
	log.Info("Server stopped")
}

func kernelFor(name string, dim int) kernel.Kernel {
	switch name {
	case "dot":
		return kernel.NewDot(dim)
	case "l2":
		return kernel.NewL2(dim)
	default:
		return kernel.NewCosine(dim)
	}
}
