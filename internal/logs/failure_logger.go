package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// FailureLog appends one categorized line per migration failure to a job's
// failure log for later human review. It satisfies the failure sink of the
// extractor and the applier.
type FailureLog struct {
	mu    sync.Mutex
	path  string
	count int
	err   error
}

// NewFailureLog creates the log's directory. The file itself is created on
// the first failure.
func NewFailureLog(path string) (*FailureLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create failure log directory: %w", err)
	}
	return &FailureLog{path: path}, nil
}

// Path returns the log file path
func (l *FailureLog) Path() string { return l.path }

// Record writes one entry:
//
//	timestamp [LEVEL] kind | asset | property | error | hints
func (l *FailureLog) Record(kind, asset, prop string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	level := "WARN"
	if kind == "SaveFailed" {
		level = "ERROR"
	}

	line := fmt.Sprintf("%s\t[%s]\t%s | %s | %s | %s | %s\n",
		time.Now().Format(timestampLayout), level, kind, asset, prop,
		oneLine(msg), strings.Join(categorizeFailure(kind, msg), "; "))

	f, openErr := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if openErr != nil {
		l.err = fmt.Errorf("failed to open failure log: %w", openErr)
		return
	}
	defer f.Close()

	if _, writeErr := f.WriteString(line); writeErr != nil {
		l.err = fmt.Errorf("failed to write to failure log: %w", writeErr)
		return
	}
	l.count++
}

// Count returns the number of entries written by this log
func (l *FailureLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Err returns the last write error, if any
func (l *FailureLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "/")
}

// categorizeFailure suggests what to look at for a failure kind
func categorizeFailure(kind, errMsg string) []string {
	errStr := strings.ToLower(errMsg)

	switch kind {
	case "AssetLoadFailed":
		return []string{"Check the asset path exists in the original tree"}
	case "PropertyMissing":
		return []string{
			"Check the property name spelling",
			"Declare an alias when the field was renamed",
		}
	case "SerializationFailed":
		return []string{"The value cannot be cached; drop the property from the job"}
	case "DuplicateAsset":
		return []string{"Two assets share a short name; narrow the asset set"}
	case "AssetMissing":
		return []string{
			"The asset was renamed or deleted after extraction",
			"Fix the path entry in the cache file",
		}
	case "PropertyMissingOnNewParent":
		return []string{"The new parent class does not expose this property; add an alias or remap it"}
	case "ValueResolutionFailed":
		switch {
		case strings.Contains(errStr, "tag"):
			return []string{"Register the gameplay tag in the rewrite tree"}
		case strings.Contains(errStr, "enum"):
			return []string{"Check the enum variant or its display name"}
		case strings.Contains(errStr, "class"):
			return []string{"Re-create or rename the referenced class"}
		case strings.Contains(errStr, "struct"):
			return []string{"Register the struct type in the rewrite tree"}
		}
		return []string{"Check the referenced asset still exists"}
	case "TypeMismatch":
		return []string{"Declare the property kind in the job or fix the cached value"}
	case "DuplicateProperty":
		return []string{"Remove one spelling of the property from the cache entry"}
	case "SaveFailed":
		return []string{"Check the tree database is writable and not locked by another run"}
	case "ValueMismatch":
		return []string{"The tree differs from the cache; run apply again or check for later edits"}
	case "ReparentFailed":
		return []string{"Check the new parent class exists in the rewrite tree"}
	}
	return []string{"No suggestion for this failure"}
}

// FailureEntry is one parsed failure log line
type FailureEntry struct {
	Time     time.Time
	Level    string
	Kind     string
	Asset    string
	Property string
	Error    string
	Hints    string
}

// ReadFailureLog parses a failure log. A missing file yields no entries.
func ReadFailureLog(path string) ([]FailureEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	var entries []FailureEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if e, ok := parseFailureLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read failure log: %w", err)
	}
	return entries, nil
}

func parseFailureLine(line string) (FailureEntry, bool) {
	head := strings.SplitN(line, "\t", 3)
	if len(head) != 3 {
		return FailureEntry{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, head[0], time.Local)
	if err != nil {
		return FailureEntry{}, false
	}
	fields := strings.SplitN(head[2], " | ", 5)
	if len(fields) != 5 {
		return FailureEntry{}, false
	}
	return FailureEntry{
		Time:     ts,
		Level:    strings.Trim(head[1], "[]"),
		Kind:     fields[0],
		Asset:    fields[1],
		Property: fields[2],
		Error:    fields[3],
		Hints:    fields[4],
	}, true
}

// CountByKind tallies entries per failure kind
func CountByKind(entries []FailureEntry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Kind]++
	}
	return counts
}

// BackupAndClearFailureLog moves the previous run's entries into a
// timestamped backup beside the log, keeping the last keep backups.
func BackupAndClearFailureLog(path string, keep int) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read log for backup: %w", err)
	}

	if len(content) > 0 {
		timestamp := time.Now().Format("20060102-150405.000")
		if err := os.WriteFile(backupName(path, timestamp), content, 0644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		if err := cleanOldBackups(path, keep); err != nil {
			return err
		}
	}

	if err := os.Truncate(path, 0); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return fmt.Errorf("failed to clear log: %w (remove: %v)", err, rmErr)
		}
	}
	return nil
}

func backupName(path, stamp string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup." + stamp + ext
}

// cleanOldBackups removes old backup files, keeping only the most recent N backups
func cleanOldBackups(path string, keepCount int) error {
	files, err := filepath.Glob(backupName(path, "*"))
	if err != nil {
		return fmt.Errorf("failed to list backup files: %w", err)
	}

	// timestamps sort lexically
	sort.Strings(files)

	for i := 0; i < len(files)-keepCount; i++ {
		if err := os.Remove(files[i]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old backup %s: %w", files[i], err)
		}
	}
	return nil
}

// ClearFailureLog removes a failure log
func ClearFailureLog(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear failure log: %w", err)
	}
	return nil
}
