package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ragbridge/config"
	"ragbridge/loader/extract"
	"ragbridge/pipeline"
	"ragbridge/store"
)

// app holds what the subcommands share. The pipeline is only built by the
// commands that talk to providers.
type app struct {
	cfg   *config.Config
	store store.VectorStorer
}

func NewRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loader",
		Short:         "Feed documents into a ragbridge collection",
		Long:          `Watches a folder for PDF and text files, or ingests files given on the command line, into a vector store collection.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
		RunE: makeWatchRunner(a),
	}

	rootCmd.PersistentFlags().String("config", "", "YAML config file (overrides RAG_CONFIG_FILE)")
	rootCmd.PersistentFlags().String("collection", "", "Target collection (overrides LOADER_COLLECTION)")

	rootCmd.AddCommand(
		NewWatchCmd(a),
		NewIngestCmd(a),
		NewChunksCmd(a),
	)
	return rootCmd
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	if a.cfg != nil {
		return nil
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("RAG_CONFIG_FILE", path); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if collection, _ := cmd.Flags().GetString("collection"); collection != "" {
		cfg.Loader.Collection = collection
	}
	slog.SetDefault(config.NewLogger(cfg.Log, os.Stderr))
	a.cfg = cfg
	return nil
}

func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	p, st, err := pipeline.Build(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	return p, nil
}

func (a *app) margins() extract.Margins {
	return extract.Margins{Top: a.cfg.Loader.CropTop, Bottom: a.cfg.Loader.CropBottom}
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
