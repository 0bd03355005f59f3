// Package main provides the recall retrieval daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/config"
	"github.com/marulab/recall/internal/contextbuild"
	"github.com/marulab/recall/internal/embedding"
	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/internal/retriever"
	"github.com/marulab/recall/internal/server"
	"github.com/marulab/recall/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Config file path (default: ~/.recall/recall.yaml)")
	dataDir := flag.String("data-dir", "", "Data directory override")
	addr := flag.String("addr", "", "HTTP listen address override")
	saveEvery := flag.Duration("save-interval", 5*time.Minute, "Snapshot save interval (0 disables)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg := loadConfig(*configPath)
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && !*debug {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	ix, err := index.Open(ctx, cfg.Index, cfg.IndexDir())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open index")
	}
	log.Info().
		Str("version", Version).
		Int("documents", ix.Len()).
		Str("indexType", string(cfg.Index.Type)).
		Msg("Index ready")

	provider := embedding.NewHTTPProvider(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Index.Dimension)
	batcher := embedding.NewBatcher(provider, cfg.Embedding.BatchSize, cfg.Embedding.Workers)
	ret := retriever.New(ix, provider, cfg.Retriever)
	assembler := contextbuild.New(ix, contextbuild.NewTiktokenCounter())

	// Re-save when the snapshot is deleted out from under us.
	manifest := filepath.Join(cfg.IndexDir(), "index.json")
	snapWatcher, err := watcher.New(manifest, func() {
		if err := ix.Save(context.Background()); err != nil {
			log.Error().Err(err).Msg("Snapshot re-save failed")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot watcher unavailable")
	} else {
		if err := snapWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Snapshot watcher failed to start")
		}
		defer snapWatcher.Stop()
	}

	if *saveEvery > 0 {
		go periodicSave(ctx, ix, *saveEvery)
	}

	svc := server.New(ix, ret, assembler, batcher, cfg.Context.TokenBudget, cfg.Context.BudgetRatio, cfg.Context.Compression)
	if err := svc.Serve(ctx, cfg.HTTPAddr); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	// Final snapshot on the way out.
	if err := ix.Save(context.Background()); err != nil {
		log.Error().Err(err).Msg("Final snapshot failed")
	}
}

func loadConfig(path string) config.Config {
	if path == "" {
		path = filepath.Join(config.Default().DataDir, "recall.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load config")
	}
	return cfg
}

func periodicSave(ctx context.Context, ix *index.Index, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ix.Save(ctx); err != nil {
				log.Error().Err(err).Msg("Periodic snapshot failed")
			}
		}
	}
}
