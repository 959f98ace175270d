package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairdoc-ai/fairdoc/config"
	"github.com/fairdoc-ai/fairdoc/internal/agent/telemetry"
	"github.com/fairdoc-ai/fairdoc/internal/extract"
	"github.com/fairdoc-ai/fairdoc/internal/pipeline"
	"github.com/fairdoc-ai/fairdoc/internal/runstate"
	"github.com/fairdoc-ai/fairdoc/internal/search"
	srv "github.com/fairdoc-ai/fairdoc/internal/server"
	"github.com/fairdoc-ai/fairdoc/internal/store"
	"github.com/fairdoc-ai/fairdoc/provider"
)

func processCMD() *cobra.Command {
	var cfgPath string
	var process = &cobra.Command{
		Use:   "process [pdf files or directories]",
		Short: "Extract FAIR metadata from PDF documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			paths, err := collectPDFs(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no PDF files found in %s", strings.Join(args, ", "))
			}

			ctx := cmd.Context()
			p, telem, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}

			var failed int
			for _, path := range paths {
				rec, err := p.Run(ctx, path)
				if err != nil {
					failed++
					log.Printf("processing %s failed: %v", path, err)
					continue
				}
				log.Printf("processed %s: %d metadata fields, %d provenance entries",
					rec.Filename, len(rec.Metadata), len(rec.Provenance))
			}
			snap := telem.Snapshot()
			log.Printf("llm usage: %d request(s), %d input tokens, %d output tokens, cost $%.4f",
				snap.LLMRequests, snap.InputTokens, snap.OutputTokens, snap.TotalCost)

			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(paths))
			}
			return nil
		},
	}
	process.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return process
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, *telemetry.Telemetry, error) {
	if err := srv.Migrate("file://migrations", cfg.Storage.Postgres, "up", 0); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	st, err := store.New(cfg.Storage.Postgres)
	if err != nil {
		return nil, nil, err
	}

	idx, err := search.NewIndex(cfg.Storage.Qdrant, log.New(log.Writer(), "[QDRANT] ", log.LstdFlags))
	if err != nil {
		return nil, nil, err
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	telem := telemetry.New(cfg.Telemetry)
	llm, err := provider.New(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	instrumented := provider.Instrument(llm, cfg.LLM.Model, telem)

	deps := pipeline.Deps{
		Extractor: extract.NewSidecarClient(cfg.Extract),
		Store:     st,
		Ledger:    st,
		Vectors:   idx,
		Embedder:  instrumented,
	}
	if cfg.Storage.Redis.Host != "" {
		status, err := runstate.Connect(ctx, cfg.Storage.Redis)
		if err != nil {
			log.Printf("redis unavailable, run status disabled: %v", err)
		} else {
			deps.Status = status
		}
	}

	logger := log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	p, err := pipeline.New(cfg, instrumented, deps, telem, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, telem, nil
}

func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return paths, nil
}
