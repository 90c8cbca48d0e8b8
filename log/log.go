// Package log is the process wide structured logger. It wraps a zerolog
// logger that can be swapped at runtime with Init.
package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

// levels lists the accepted level names, most verbose first.
var levels = []struct {
	name  string
	level zerolog.Level
}{
	{LogLevelDebug, zerolog.DebugLevel},
	{LogLevelInfo, zerolog.InfoLevel},
	{LogLevelWarn, zerolog.WarnLevel},
	{LogLevelError, zerolog.ErrorLevel},
}

var (
	current zerolog.Logger
	mu      sync.RWMutex
)

func init() {
	// $LOG_LEVEL lets tests raise verbosity without touching code.
	Init(cmp.Or(os.Getenv("LOG_LEVEL"), LogLevelError), "stderr", nil)
}

// Logger returns a copy of the global zerolog logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	return &l
}

// warnWriter drops everything below the warning level.
type warnWriter struct {
	io.Writer
}

func (w warnWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Write(p)
}

func console(out io.Writer, color bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: RFC3339Milli, NoColor: !color}
}

// newWriter builds the log sink for output. A path ending in .json gets raw
// JSON lines while the console copy goes to stdout.
func newWriter(output string, errorOutput io.Writer) (io.Writer, error) {
	var sinks []io.Writer
	switch output {
	case "stdout":
		sinks = append(sinks, console(os.Stdout, true))
	case "stderr":
		sinks = append(sinks, console(os.Stderr, true))
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("cannot create log output: %w", err)
		}
		if strings.HasSuffix(output, ".json") {
			sinks = append(sinks, f, console(os.Stdout, true))
		} else {
			sinks = append(sinks, console(f, true))
		}
	}
	if errorOutput != nil {
		sinks = append(sinks, warnWriter{console(errorOutput, false)})
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return zerolog.MultiLevelWriter(sinks...), nil
}

// Init replaces the global logger. Output may be "stdout", "stderr" or a file
// path. If errorOutput is not nil, warnings and errors are also written there
// without colors. Init panics on an unknown level or an unusable output.
func Init(level, output string, errorOutput io.Writer) {
	lvl := zerolog.NoLevel
	for _, l := range levels {
		if l.name == level {
			lvl = l.level
		}
	}
	if lvl == zerolog.NoLevel {
		panic(fmt.Sprintf("invalid log level: %q", level))
	}
	out, err := newWriter(output, errorOutput)
	if err != nil {
		panic(err.Error())
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// the caller is two frames above the helpers of this package
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}
	l := zerolog.New(out).With().Timestamp().Caller().Logger().Level(lvl)
	mu.Lock()
	current = l
	mu.Unlock()
	l.Info().Msgf("logger initialized at level %s with output %s", level, output)
}

// Level returns the name of the current log level.
func Level() string {
	lvl := Logger().GetLevel()
	for _, l := range levels {
		if l.level == lvl {
			return l.name
		}
	}
	return LogLevelError
}

// Debug sends a debug level log message
func Debug(args ...any) {
	Logger().Debug().Msg(fmt.Sprint(args...))
}

// Info sends an info level log message
func Info(args ...any) {
	Logger().Info().Msg(fmt.Sprint(args...))
}

// Warn sends a warn level log message
func Warn(args ...any) {
	Logger().Warn().Msg(fmt.Sprint(args...))
}

// Error sends an error level log message
func Error(args ...any) {
	Logger().Error().Msg(fmt.Sprint(args...))
}

// Fatal logs the message with the current stack and exits.
func Fatal(args ...any) {
	Logger().Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
}

func Debugf(template string, args ...any) {
	Logger().Debug().Msgf(template, args...)
}

func Infof(template string, args ...any) {
	Logger().Info().Msgf(template, args...)
}

func Warnf(template string, args ...any) {
	Logger().Warn().Msgf(template, args...)
}

func Errorf(template string, args ...any) {
	Logger().Error().Msgf(template, args...)
}

// Fatalf logs the formatted message with the current stack and exits.
func Fatalf(template string, args ...any) {
	Logger().Fatal().Msgf(template+"\n"+string(debug.Stack()), args...)
}

// Debugw logs msg at debug level with alternating key-value fields.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().Fields(keyvalues).Msg(msg)
}

// Infow logs msg at info level with alternating key-value fields.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().Fields(keyvalues).Msg(msg)
}

// Warnw logs msg at warning level with alternating key-value fields.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().Fields(keyvalues).Msg(msg)
}

// Errorw logs msg at error level with err attached.
func Errorw(err error, msg string) {
	Logger().Error().Err(err).Msg(msg)
}
