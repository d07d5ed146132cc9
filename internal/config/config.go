package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/migration"
	"assetmig-go/internal/property"
)

const (
	defaultCacheDir = string(cachefile.DefaultDir)
)

// Duration is a wrapper around time.Duration that can be marshaled to/from JSON
type Duration time.Duration

// MarshalJSON implements json.Marshaler interface
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler interface
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler so viper decoding accepts
// "5s" style strings
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the main configuration structure
type Config struct {
	// CacheDir holds the cache files of every job
	CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`

	// OriginalDB is the tree extracted from; RewriteDB the tree applied to.
	// They may name the same file.
	OriginalDB string `json:"original_db" mapstructure:"original_db"`
	RewriteDB  string `json:"rewrite_db" mapstructure:"rewrite_db"`

	// DBTimeout bounds the wait for another process holding a tree open
	DBTimeout Duration `json:"db_timeout" mapstructure:"db_timeout"`

	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`

	Jobs []*Job `json:"jobs" mapstructure:"jobs"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable_file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable_console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log_dir"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max_size"`         // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max_backups"`   // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max_age"`           // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json_format"`
}

// Job is one extract/apply pairing: a set of assets, the properties managed
// on them and where their cache file lives
type Job struct {
	Name   string `json:"name" mapstructure:"name"`
	Family string `json:"family,omitempty" mapstructure:"family"`
	Aspect string `json:"aspect,omitempty" mapstructure:"aspect"`

	// File overrides the conventional <family>_<aspect>.json name
	File string `json:"file,omitempty" mapstructure:"file"`

	Assets     migration.AssetSet   `json:"assets" mapstructure:"assets"`
	Properties property.Descriptors `json:"properties" mapstructure:"properties"`

	// Reparent is the class the job's assets move to between extract and apply
	Reparent string `json:"reparent,omitempty" mapstructure:"reparent"`

	// LogFile overrides <cache_dir>/<name>_failures.log
	LogFile string `json:"log_file,omitempty" mapstructure:"log_file"`
}

// DefaultLogConfig returns the logging defaults
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:         "info",
		EnableFile:    false,
		EnableConsole: true,
		Filename:      "assetmig.log",
		MaxSize:       10, // 10MB
		MaxBackups:    5,  // 5 backup files
		MaxAge:        30, // 30 days
		Compress:      true,
		JSONFormat:    false, // Use console format for readability
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheDir:  defaultCacheDir,
		DBTimeout: Duration(DefaultDBTimeout),
		Logging:   DefaultLogConfig(),
		Jobs:      []*Job{},
	}
}

// Validate fills defaults and checks the job list
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.DBTimeout.Duration() <= 0 {
		c.DBTimeout = Duration(DefaultDBTimeout)
	}
	if c.RewriteDB == "" {
		c.RewriteDB = c.OriginalDB
	}

	// Ensure Logging config is not nil
	if c.Logging == nil {
		c.Logging = DefaultLogConfig()
	}
	if c.Logging.Filename == "" {
		c.Logging.Filename = "assetmig.log"
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i, job := range c.Jobs {
		if job == nil {
			return fmt.Errorf("job %d is empty", i)
		}
		if err := job.Validate(); err != nil {
			return err
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true
	}
	return nil
}

// Validate fills job defaults and checks the property declarations
func (j *Job) Validate() error {
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if strings.TrimSpace(j.Family) == "" {
		j.Family = j.Name
	}
	if len(j.Properties) == 0 {
		return fmt.Errorf("job %s: no properties declared", j.Name)
	}
	j.Properties.SetDefaults()
	if err := j.Properties.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	return nil
}

// Job returns the named job
func (c *Config) Job(name string) (*Job, error) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, nil
		}
	}
	return nil, fmt.Errorf("job %q is not configured", name)
}

// JobNames lists the configured jobs in file order
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		names = append(names, j.Name)
	}
	return names
}

// CachePath resolves the cache file of a job
func (c *Config) CachePath(j *Job) string {
	if j.File != "" {
		if filepath.IsAbs(j.File) {
			return j.File
		}
		return filepath.Join(c.CacheDir, j.File)
	}
	return cachefile.Dir(c.CacheDir).Path(j.Family, j.Aspect)
}

// FailureLogPath resolves the failure log of a job
func (c *Config) FailureLogPath(j *Job) string {
	if j.LogFile != "" {
		if filepath.IsAbs(j.LogFile) {
			return j.LogFile
		}
		return filepath.Join(c.CacheDir, j.LogFile)
	}
	return filepath.Join(c.CacheDir, j.Name+"_failures.log")
}

// JobForCache finds the job whose cache file is path
func (c *Config) JobForCache(path string) *Job {
	clean := filepath.Clean(path)
	for _, j := range c.Jobs {
		if filepath.Clean(c.CachePath(j)) == clean {
			return j
		}
	}
	return nil
}
