package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coolbeans/lagen/pkg/config"
	"github.com/coolbeans/lagen/pkg/metrics"
	"github.com/coolbeans/lagen/pkg/register"
	"github.com/coolbeans/lagen/pkg/resolver"
	"github.com/coolbeans/lagen/pkg/storage"
)

// app holds everything a command needs, built once from the loaded settings.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *storage.FileStore
	entries  storage.EntryStore
	database *sql.DB
}

func openApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		settings.DataDir = dataDir
	}

	logger, err := settings.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFileStore(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}

	registry := prometheus.NewRegistry()
	application := &app{
		settings: settings,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
		store:    store,
	}

	switch settings.Storage.Entries {
	case config.EntriesSQLite:
		database, err := storage.OpenSQLite(settings.EntriesDatabasePath())
		if err != nil {
			return nil, err
		}
		entries, err := storage.NewSQLiteEntryStore(database)
		if err != nil {
			database.Close()
			return nil, err
		}
		application.database = database
		application.entries = entries
	default:
		application.entries = storage.NewFileEntryStore(settings.DataDir)
	}

	return application, nil
}

// close releases the entry database and exports metrics when configured.
func (application *app) close() error {
	var exportErr error
	if textfile := application.settings.Metrics.Textfile; textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, application.registry); err != nil {
			exportErr = fmt.Errorf("failed to write metrics to %s: %w", textfile, err)
		}
	}
	if application.database != nil {
		if err := application.database.Close(); err != nil && exportErr == nil {
			exportErr = fmt.Errorf("failed to close entry database: %w", err)
		}
	}
	return exportErr
}

func (application *app) registerClient() *register.Client {
	registerConfig := application.settings.RegisterConfig()
	registerConfig.Metrics = application.metrics
	registerConfig.Logger = application.logger
	return register.NewClient(registerConfig)
}

func (application *app) resolver() *resolver.Resolver {
	return resolver.New(application.registerClient(), application.store, application.entries,
		resolver.WithLogger(application.logger))
}

// withApp opens the app for the duration of run.
func withApp(cmd *cobra.Command, run func(application *app) error) (err error) {
	application, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := application.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return run(application)
}
