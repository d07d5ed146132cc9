package logs

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"assetmig-go/internal/config"

	"go.uber.org/zap"
)

// Journal records the events of migration runs as JSON lines so runs can be
// compared after the fact. Every line carries the run id.
type Journal struct {
	logger  *zap.Logger
	enabled bool
	started time.Time
}

// NewJournal opens a JSON journal at path. An empty path disables it.
func NewJournal(logConfig *config.LogConfig, path, runID string) (*Journal, error) {
	if path == "" {
		return &Journal{enabled: false}, nil
	}
	if logConfig == nil {
		logConfig = config.DefaultLogConfig()
	}

	fileLogConfig := &config.LogConfig{
		EnableFile: true,
		Filename:   filepath.Base(path),
		LogDir:     filepath.Dir(path),
		MaxSize:    logConfig.MaxSize,
		MaxBackups: logConfig.MaxBackups,
		MaxAge:     logConfig.MaxAge,
		Compress:   logConfig.Compress,
		JSONFormat: true, // Always use JSON format for journals
	}

	fileCore, err := createFileCore(fileLogConfig, zap.InfoLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file core: %w", err)
	}

	return &Journal{
		logger:  zap.New(fileCore).With(zap.String("run_id", runID)),
		enabled: true,
		started: time.Now(),
	}, nil
}

// Start records the beginning of an operation on a job
func (j *Journal) Start(op, job, cachePath string) {
	if !j.enabled {
		return
	}
	j.logger.Info("start",
		zap.String("op", op),
		zap.String("job", job),
		zap.String("cache_file", cachePath))
}

// Record implements the failure sink
func (j *Journal) Record(kind, asset, prop string, err error) {
	if !j.enabled {
		return
	}
	j.logger.Warn("failure",
		zap.String("kind", kind),
		zap.String("asset", asset),
		zap.String("property", prop),
		zap.Error(err))
}

// Finish records the outcome of an operation. counts holds the result
// counters, e.g. assets_applied.
func (j *Journal) Finish(op, job string, counts map[string]int, err error) {
	if !j.enabled {
		return
	}
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("job", job),
		zap.Duration("elapsed", time.Since(j.started)),
	}
	for _, k := range sortedKeys(counts) {
		fields = append(fields, zap.Int(k, counts[k]))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	j.logger.Info("finish", fields...)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close flushes the journal
func (j *Journal) Close() error {
	if !j.enabled {
		return nil
	}
	_ = j.logger.Sync()
	return nil
}

// IsEnabled returns whether the journal writes anything
func (j *Journal) IsEnabled() bool {
	return j.enabled
}

// Recorder is anything that accepts migration failures
type Recorder interface {
	Record(kind, asset, property string, err error)
}

// Tee forwards each failure to every recorder in order
type Tee []Recorder

// Record implements Recorder
func (t Tee) Record(kind, asset, prop string, err error) {
	for _, r := range t {
		if r != nil {
			r.Record(kind, asset, prop, err)
		}
	}
}
