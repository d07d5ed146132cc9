package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"assetmig-go/internal/config"
	"assetmig-go/internal/logs"
	"assetmig-go/internal/processlock"
	"assetmig-go/internal/shutdown"
	"assetmig-go/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultConfigFile = "assetmig.yaml"
	journalFile       = "journal.jsonl"
	failureBackups    = 5
)

// app holds what every command of one run shares
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	runID      string
	journal    *logs.Journal
	shutdown   *shutdown.Coordinator
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, configPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}

	logger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	journalPath := ""
	if cfg.Logging.EnableFile {
		journalPath = filepath.Join(logs.GetLogDir(cfg.Logging), journalFile)
	}
	journal, err := logs.NewJournal(cfg.Logging, journalPath, runID)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		runID:      runID,
		journal:    journal,
		shutdown:   shutdown.NewCoordinator(logger),
	}
	a.shutdown.RegisterCloser("journal", shutdown.PhaseLogs, journal.Close)
	a.shutdown.RegisterFunc("logger", shutdown.PhaseLogs, func(context.Context) error {
		// stderr cannot be synced on every platform
		_ = logger.Sync()
		return nil
	})
	return a, nil
}

// loadConfig reads the given file, falling back to assetmig.yaml in the
// working directory and then to defaults
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return config.DefaultConfig(), "", nil
		}
		path = defaultConfigFile
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (a *app) close() error {
	return a.shutdown.Shutdown(context.Background())
}

// requireConfig fails commands that need jobs when no file was found
func (a *app) requireConfig() error {
	if a.configPath == "" {
		return fmt.Errorf("no configuration: pass --config or create %s", defaultConfigFile)
	}
	return nil
}

// openTree opens a tree database and registers it for closing
func (a *app) openTree(path string, readOnly bool) (*storage.Manager, error) {
	if path == "" {
		return nil, errors.New("no tree database: set original_db/rewrite_db or pass --db")
	}
	m, err := storage.OpenManager(path, &storage.Options{
		ReadOnly: readOnly,
		Timeout:  a.cfg.DBTimeout.Duration(),
	}, a.logger.Named("storage").Sugar())
	if err != nil {
		return nil, err
	}
	a.shutdown.RegisterCloser("tree "+path, shutdown.PhaseStorage, m.Close)
	return m, nil
}

// lockTree takes the PID lock of a tree database for the rest of the run
func (a *app) lockTree(path string) error {
	lock := processlock.New(path, a.logger)
	if err := lock.Acquire(); err != nil {
		return err
	}
	a.shutdown.RegisterCloser("lock "+path, shutdown.PhaseLocks, lock.Release)
	return nil
}

// openWritableTree locks then opens a tree for mutation
func (a *app) openWritableTree(path string) (*storage.Manager, error) {
	if path == "" {
		return nil, errors.New("no tree database: set rewrite_db or pass --db")
	}
	if err := a.lockTree(path); err != nil {
		return nil, err
	}
	return a.openTree(path, false)
}

// failureSink rotates a job's failure log and returns the recorder every
// failure of this run goes to
func (a *app) failureSink(job *config.Job) (*logs.FailureLog, logs.Tee, error) {
	path := a.cfg.FailureLogPath(job)
	if err := logs.BackupAndClearFailureLog(path, failureBackups); err != nil {
		a.logger.Warn("Failed to rotate failure log", zap.String("path", path), zap.Error(err))
	}
	failures, err := logs.NewFailureLog(path)
	if err != nil {
		return nil, nil, err
	}
	return failures, logs.Tee{failures, a.journal}, nil
}

// jobsFromArgs resolves job names; no names selects every job
func (a *app) jobsFromArgs(names []string) ([]*config.Job, error) {
	if err := a.requireConfig(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		if len(a.cfg.Jobs) == 0 {
			return nil, fmt.Errorf("%s declares no jobs", a.configPath)
		}
		return a.cfg.Jobs, nil
	}
	jobs := make([]*config.Job, 0, len(names))
	for _, name := range names {
		j, err := a.cfg.Job(name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// dbFlag returns --db when given, else fallback
func dbFlag(cmd *cobra.Command, fallback string) string {
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		return db
	}
	return fallback
}

// withApp builds the run, executes fn and always shuts down
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
