// Package cli implements the fileflow command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fileflow/internal/fileflow/ingest"
	"fileflow/internal/fileflow/metrics"
	"fileflow/internal/fileflow/pipeline"
	"fileflow/internal/fileflow/router"
	"fileflow/internal/fileflow/storage"
	"fileflow/internal/fileflow/tempfile"
	"fileflow/pkg/config"
	"fileflow/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fileflow",
	Short: "File ingestion toolkit: processing pipeline, storage routing and temp file lifecycle",
	Long: `fileflow ingests files through a configurable processing pipeline
(virus scan, checksum, compression, encryption, thumbnails), routes each
upload to the best storage backend, and manages the temporary holding
area for in-flight uploads.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (optional)")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newBackendsCmd())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// stack holds the wired application components a command operates on.
type stack struct {
	cfg      *config.Config
	logger   *logger.Logger
	registry *storage.Registry
	router   *router.Router
	temps    *tempfile.Manager
	service  *ingest.Service
}

// close releases the stack's background resources.
func (s *stack) close() {
	s.temps.Stop()
}

// buildStack loads configuration and wires the full component graph.
func buildStack() (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	output := os.Stdout
	if cfg.Logging.Output == "stderr" {
		output = os.Stderr
	}
	log := logger.NewWithConfig(logger.Config{
		Level:  level,
		Output: output,
		Format: cfg.Logging.Format,
	})

	registry, err := storage.NewRegistryFromConfig(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	rt := router.New(cfg.Router, registry, log)

	var observer *metrics.Observer
	if cfg.Metrics.Enabled {
		observer, err = metrics.NewObserver(cfg.Metrics.Namespace, nil)
		if err != nil {
			return nil, err
		}
	}

	temps, err := tempfile.New(cfg.TempFile, observer, log)
	if err != nil {
		return nil, err
	}

	pl, err := pipeline.New(cfg.Pipeline, log)
	if err != nil {
		temps.Stop()
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		logger:   log,
		registry: registry,
		router:   rt,
		temps:    temps,
		service:  ingest.NewService(cfg.Pipeline, rt, temps, pl, registry, observer, log),
	}, nil
}
