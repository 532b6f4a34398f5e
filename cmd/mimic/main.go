// Package main is the entry point for the mimic CLI, which trains Markov
// sentence models, stores them in SQLite and serves them over HTTP.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CTAG07/mimic/pkg/markov"
)

// Set at build time via ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// app carries the state shared by all subcommands once the config is loaded.
type app struct {
	configPath string
	config     *Config
	logger     *slog.Logger
}

// openStore opens the configured database, ensures the schema exists and
// returns a ready Store together with a function that releases both.
func (a *app) openStore() (*markov.Store, func(), error) {
	db, err := initDB(a.config.Server.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err = markov.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup markov schema: %w", err)
	}
	store, err := markov.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store.SetLogger(a.logger)

	return store, func() {
		store.Close()
		if err := db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}, nil
}

func (a *app) newBuilder() *markov.Builder {
	b := markov.NewBuilder(nil)
	b.SetLogger(a.logger)
	return b
}

// newRootCmd builds the mimic command tree.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "mimic",
		Short: "Train and serve Markov chain sentence generators",
		Long: `mimic builds first-order Markov chain models from plain text, stores them
in a SQLite database and generates new sentences from them, either from the
command line, through text templates or through an HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.config = config
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: parseLogLevel(config.Server.LogLevel),
			}))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "config file")

	rootCmd.AddCommand(
		newTrainCmd(a),
		newGenerateCmd(a),
		newModelsCmd(a),
		newRemoveCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newPruneCmd(a),
		newRenderCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
