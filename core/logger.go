package core

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger interface for structured logging.
// Implementations can provide custom logging behavior; the default backend
// is zerolog writing to stderr.
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// =============================================================================
// Named logger registry
// =============================================================================

// namedLogger is the stable handle GetLogger returns. The backend can be
// swapped at runtime (SetLoggerBackend), which is how tests capture the
// error records the fiber trampoline emits.
type namedLogger struct {
	name    string
	backend atomic.Value // backendBox
}

// backendBox keeps the atomic.Value stores monomorphic while the wrapped
// Logger implementations vary.
type backendBox struct {
	l Logger
}

func (l *namedLogger) impl() Logger           { return l.backend.Load().(backendBox).l }
func (l *namedLogger) Debug(m string, f ...Field) { l.impl().Debug(m, f...) }
func (l *namedLogger) Info(m string, f ...Field)  { l.impl().Info(m, f...) }
func (l *namedLogger) Warn(m string, f ...Field)  { l.impl().Warn(m, f...) }
func (l *namedLogger) Error(m string, f ...Field) { l.impl().Error(m, f...) }

var (
	loggerMu       sync.Mutex
	loggerRegistry = make(map[string]*namedLogger)
)

// GetLogger returns the logger registered under name, creating it with the
// default zerolog backend on first use. The returned handle is stable: a
// later SetLoggerBackend for the same name redirects it.
func GetLogger(name string) Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l, ok := loggerRegistry[name]; ok {
		return l
	}
	l := &namedLogger{name: name}
	l.backend.Store(backendBox{l: NewZerologLogger(os.Stderr, name)})
	loggerRegistry[name] = l
	return l
}

// SetLoggerBackend replaces the backend of the named logger.
func SetLoggerBackend(name string, backend Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	l, ok := loggerRegistry[name]
	if !ok {
		l = &namedLogger{name: name}
		loggerRegistry[name] = l
	}
	l.backend.Store(backendBox{l: backend})
}

// =============================================================================
// zerolog backend
// =============================================================================

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a Logger writing structured records to w.
// Fiber creation and dispatch-loop diagnostics are logged at debug level,
// which this backend suppresses by default; raise the level with zerolog's
// own controls when tracing them. Scheduler stop and worker exit records
// are logged at info level and do appear.
func NewZerologLogger(w io.Writer, name string) Logger {
	zl := zerolog.New(w).Level(zerolog.InfoLevel).With().
		Timestamp().
		Str("logger", name).
		Logger()
	return &zerologLogger{zl: zl}
}

func emit(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	e.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

// NopLogger discards everything. Useful as a SchedulerConfig.Logger in
// benchmarks.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
