// Package main provides offline maintenance commands for a recall snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/config"
	"github.com/marulab/recall/internal/index"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: ~/.recall/recall.yaml)")
	dataDir := flag.String("data-dir", "", "Data directory override")
	stats := flag.Bool("stats", false, "Print index statistics")
	rebuild := flag.Bool("rebuild", false, "Rebuild the index, reclaiming deleted vectors")
	save := flag.Bool("save", false, "Write a fresh snapshot")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if !*stats && !*rebuild && !*save {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -stats, -rebuild and/or -save")
		flag.Usage()
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		path = filepath.Join(config.Default().DataDir, "recall.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	ctx := context.Background()
	ix, err := index.Open(ctx, cfg.Index, cfg.IndexDir())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open index")
	}

	if *rebuild {
		if err := ix.Rebuild(ctx); err != nil {
			log.Fatal().Err(err).Msg("Rebuild failed")
		}
		fmt.Println("rebuild complete")
	}

	if *rebuild || *save {
		if err := ix.Save(ctx); err != nil {
			log.Fatal().Err(err).Msg("Save failed")
		}
		fmt.Println("snapshot saved")
	}

	if *stats {
		out, err := json.MarshalIndent(ix.Stats(), "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode stats")
		}
		fmt.Println(string(out))
	}
}
