package processlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const pidSuffix = ".pid"

// ErrLocked is returned when another live process holds the lock
var ErrLocked = errors.New("tree database is in use by another run")

// ProcessLock keeps two mutating runs off the same tree database. The lock
// is a PID file beside the database.
type ProcessLock struct {
	pidFile string
	logger  *zap.Logger
}

// New creates a lock for the database at dbPath
func New(dbPath string, logger *zap.Logger) *ProcessLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessLock{
		pidFile: dbPath + pidSuffix,
		logger:  logger,
	}
}

// Path returns the PID file path
func (p *ProcessLock) Path() string { return p.pidFile }

// Acquire attempts to acquire the process lock
func (p *ProcessLock) Acquire() error {
	if _, err := os.Stat(p.pidFile); err == nil {
		pid, err := p.readPID()
		switch {
		case err != nil:
			p.logger.Warn("Failed to read PID file, removing stale lock",
				zap.String("pid_file", p.pidFile),
				zap.Error(err))
			os.Remove(p.pidFile)
		case pid == os.Getpid():
			return nil
		case isProcessRunning(pid):
			return fmt.Errorf("%w (PID: %d, lock: %s)", ErrLocked, pid, p.pidFile)
		default:
			p.logger.Warn("Removing stale PID file from dead process",
				zap.Int("pid", pid),
				zap.String("pid_file", p.pidFile))
			os.Remove(p.pidFile)
		}
	}

	if err := p.writePID(); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w (lock: %s)", ErrLocked, p.pidFile)
		}
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	p.logger.Debug("Process lock acquired",
		zap.Int("pid", os.Getpid()),
		zap.String("pid_file", p.pidFile))
	return nil
}

// Release releases the process lock. Releasing a lock held by another
// process is a no-op.
func (p *ProcessLock) Release() error {
	pid, err := p.readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
	} else if pid != os.Getpid() {
		return nil
	}

	if err := os.Remove(p.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	p.logger.Debug("Process lock released",
		zap.Int("pid", os.Getpid()),
		zap.String("pid_file", p.pidFile))
	return nil
}

// readPID reads the PID from the PID file
func (p *ProcessLock) readPID() (int, error) {
	data, err := os.ReadFile(p.pidFile)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}
	return pid, nil
}

// writePID creates the PID file exclusively so two racing runs cannot both
// win
func (p *ProcessLock) writePID() error {
	if err := os.MkdirAll(filepath.Dir(p.pidFile), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(p.pidFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(p.pidFile)
		return err
	}
	return f.Close()
}

// isProcessRunning checks if a process with the given PID is running
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so we need to send a signal
	return process.Signal(syscall.Signal(0)) == nil
}
