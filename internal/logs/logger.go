package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"assetmig-go/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels accepted in configuration
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// DefaultLogDir is used when the configuration names no log directory
const DefaultLogDir = "logs"

// SetupLogger builds the process logger: a console core on stderr and, when
// enabled, a rotating file core.
func SetupLogger(logConfig *config.LogConfig) (*zap.Logger, error) {
	if logConfig == nil {
		logConfig = config.DefaultLogConfig()
	}

	level, err := ParseLevel(logConfig.Level)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if logConfig.EnableConsole {
		cores = append(cores, createConsoleCore(level))
	}
	if logConfig.EnableFile {
		fileCore, err := createFileCore(logConfig, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create file log core: %w", err)
		}
		cores = append(cores, fileCore)
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// ParseLevel converts a configured level name
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LogLevelTrace, LogLevelDebug:
		return zap.DebugLevel, nil
	case LogLevelInfo, "":
		return zap.InfoLevel, nil
	case LogLevelWarn, "warning":
		return zap.WarnLevel, nil
	case LogLevelError:
		return zap.ErrorLevel, nil
	}
	return zap.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

func createConsoleCore(level zapcore.Level) zapcore.Core {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	)
}

// createFileCore writes through lumberjack so long runs rotate instead of
// growing one file
func createFileCore(logConfig *config.LogConfig, level zapcore.Level) (zapcore.Core, error) {
	logDir := GetLogDir(logConfig)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logConfig.Filename),
		MaxSize:    logConfig.MaxSize,
		MaxBackups: logConfig.MaxBackups,
		MaxAge:     logConfig.MaxAge,
		Compress:   logConfig.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if logConfig.JSONFormat {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(writer), level), nil
}

// GetLogDir returns the directory file logs are written to
func GetLogDir(logConfig *config.LogConfig) string {
	if logConfig != nil && logConfig.LogDir != "" {
		return logConfig.LogDir
	}
	return DefaultLogDir
}
