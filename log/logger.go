/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field hold data of a specific field.
type Field = logf.Field

// CloseFunc flushes and closes the asynchronous writer of the logger.
type CloseFunc logf.ChannelWriterCloseFunc

// LogFunc allows logging a message with a bound level.
// nolint: revive
type LogFunc = logf.LogFunc

// Field constructors.
var (
	// Error returns a new Field with the given error. Key is 'error'.
	Error = logf.Error
	// NamedError returns a new Field with the given key and error.
	NamedError = logf.NamedError

	String   = logf.String
	Bytes    = logf.Bytes
	Int      = logf.Int
	Int64    = logf.Int64
	Float64  = logf.Float64
	Duration = logf.Duration
	Bool     = logf.Bool
	Time     = logf.Time

	// Any chooses the best representation of the value by its type.
	Any = logf.Any
)

// FieldLogger is an interface for loggers which writes logs in structured format.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}

// LogfAdapter adapts logf.Logger to FieldLogger interface.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a new logger that logs nothing.
// Components of this module use it when no logger is passed.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger creates a new logger writing entries asynchronously.
// CloseFunc must be called before the application exits, otherwise the last entries may be lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, outputWriter(cfg)),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(toLogfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// Skip the frame of LogfAdapter.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{logger}, CloseFunc(closeFunc)
}

// With returns a new logger with the given additional fields.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// Debug logs message at "debug" level.
func (l *LogfAdapter) Debug(s string, fields ...Field) {
	l.Logger.Debug(s, fields...)
}

// Info logs message at "info" level.
func (l *LogfAdapter) Info(s string, fields ...Field) {
	l.Logger.Info(s, fields...)
}

// Warn logs message at "warn" level.
func (l *LogfAdapter) Warn(s string, fields ...Field) {
	l.Logger.Warn(s, fields...)
}

// Error logs message at "error" level.
func (l *LogfAdapter) Error(s string, fields ...Field) {
	l.Logger.Error(s, fields...)
}

// Debugf formats and logs message at "debug" level. Formatting is skipped if the level is disabled.
func (l *LogfAdapter) Debugf(format string, args ...interface{}) {
	l.printf(LevelDebug, format, args)
}

// Infof formats and logs message at "info" level.
func (l *LogfAdapter) Infof(format string, args ...interface{}) {
	l.printf(LevelInfo, format, args)
}

// Warnf formats and logs message at "warn" level.
func (l *LogfAdapter) Warnf(format string, args ...interface{}) {
	l.printf(LevelWarn, format, args)
}

// Errorf formats and logs message at "error" level.
func (l *LogfAdapter) Errorf(format string, args ...interface{}) {
	l.printf(LevelError, format, args)
}

func (l *LogfAdapter) printf(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(logFunc LogFunc) {
		logFunc(fmt.Sprintf(format, args...))
	})
}

// AtLevel calls fn with a LogFunc bound to the level if the level is enabled.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(toLogfLevel(level), fn)
}

// WithLevel returns a new logger which additionally drops entries below the level.
// The level may only be raised this way.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(toLogfLevel(level))}
}

func toLogfLevel(level Level) logf.Level {
	switch level {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}

func outputWriter(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputFile:
		rotation := cfg.File.Rotation
		return &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(rotation.MaxSize / 1024 / 1024), // megabytes
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
		}
	case OutputStderr:
		return os.Stderr
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	var errEncoder logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		errEncoder = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: errEncoder,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  errEncoder,
	}))
}

// expandFilePath replaces {{starttime}} and {{pid}} placeholders in the log file path.
func expandFilePath(path string, startTime time.Time) string {
	return strings.NewReplacer(
		"{{starttime}}", startTime.Format("200601021504"),
		"{{pid}}", strconv.Itoa(os.Getpid()),
	).Replace(path)
}
