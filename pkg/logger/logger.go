package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level defines log levels.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	PanicLevel
	NoLevel
	Disabled
	TraceLevel Level = -1
)

const (
	// DirectionField shows the direction of a message: → out, ← in, x closed.
	DirectionField = "d"
	// ClientField holds a short id of a connected peer or socket.
	ClientField = "c"
	// SessionField holds a session id.
	SessionField = "sid"
	// RequestField holds a tunnel request correlation id.
	RequestField = "rid"
)

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return zerolog.LevelTraceValue
	case DebugLevel:
		return zerolog.LevelDebugValue
	case InfoLevel:
		return zerolog.LevelInfoValue
	case WarnLevel:
		return zerolog.LevelWarnValue
	case ErrorLevel:
		return zerolog.LevelErrorValue
	case FatalLevel:
		return zerolog.LevelFatalValue
	case PanicLevel:
		return zerolog.LevelPanicValue
	case Disabled:
		return "disabled"
	case NoLevel:
		return ""
	}
	return strconv.Itoa(int(l))
}

var pid = os.Getpid()

type Logger struct {
	logger *zerolog.Logger
}

// New makes a JSON logger for machine consumption.
func New(isDebug bool) *Logger {
	setLevel(isDebug)
	logger := zerolog.New(os.Stderr).With().Timestamp().Int("pid", pid).Logger()
	return &Logger{logger: &logger}
}

// NewConsole makes a human-readable logger.
// The tag param is a short process label (e.g. "e" for edge, "m" for media).
func NewConsole(isDebug bool, tag string, noColor bool) *Logger {
	setLevel(isDebug)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.0000", NoColor: noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			"pid",
			zerolog.LevelFieldName,
			"s",
			DirectionField,
			ClientField,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"s", DirectionField, ClientField, "pid"},
	}
	if output.NoColor {
		output.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%v", i)
		}
	}
	logger := zerolog.New(output).With().
		Str("pid", fmt.Sprintf("%4x", pid)).
		Str("s", tag).
		Str(DirectionField, " ").
		Str(ClientField, " ").
		Timestamp().Logger()
	return &Logger{logger: &logger}
}

// NewWriter makes a plain logger over w, mostly for tests.
func NewWriter(w io.Writer) *Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{logger: &logger}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

func setLevel(isDebug bool) {
	level := zerolog.InfoLevel
	if isDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// GetLevel returns the current Level of l.
func (l *Logger) GetLevel() Level { return Level(l.logger.GetLevel()) }

// With creates a child logger with the field added to its context.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Level creates a child logger with the minimum accepted level set to level.
func (l *Logger) Level(level zerolog.Level) zerolog.Logger { return l.logger.Level(level) }

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }

// Info starts a new message with info level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Info() *zerolog.Event { return l.logger.Info() }

// Warn starts a new message with warn level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Warn() *zerolog.Event { return l.logger.Warn() }

// Error starts a new message with error level.
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called by the Msg method.
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }

// WithLevel starts a new message with level.
func (l *Logger) WithLevel(level zerolog.Level) *zerolog.Event { return l.logger.WithLevel(level) }

// Printf sends a log event using debug level and no extra field.
func (l *Logger) Printf(format string, v ...any) { l.logger.Printf(format, v...) }

// Extend adds some additional context to the existing logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

// Tagged is a shortcut for Extend with a single string field.
func (l *Logger) Tagged(key, value string) *Logger { return l.Extend(l.With().Str(key, value)) }
