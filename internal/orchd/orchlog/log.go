// Package orchlog provides structured logging for the orchestrator
// daemon: a leveled, categorized logger that writes to a file and fans
// entries out to anyone subscribed for live tailing.
package orchlog

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/eventbus"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Category groups related log messages by daemon subsystem.
type Category string

const (
	CatService   Category = "service"
	CatScheduler Category = "scheduler"
	CatAgent     Category = "agent"
	CatVerify    Category = "verify"
	CatGraphite  Category = "graphite"
	CatGit       Category = "git"
	CatStore     Category = "store"
	CatConfig    Category = "config"
	CatReview    Category = "review"
	CatReadyGate Category = "readygate"
)

// Logger is a mutex-guarded file logger with pub/sub fan-out.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	enabled  bool
	minLevel Level
	broker   *eventbus.Broker[string]
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init opens path for appending and installs it as the global logger.
// Returns a cleanup function that closes the file.
func Init(path string) (func(), error) {
	var initErr error
	once.Do(func() {
		defaultLogger, initErr = newLogger(path)
	})
	if initErr != nil {
		return nil, initErr
	}
	if defaultLogger == nil {
		return nil, fmt.Errorf("logger initialization failed or already attempted")
	}
	return func() {
		if defaultLogger != nil && defaultLogger.file != nil {
			_ = defaultLogger.file.Close()
		}
	}, nil
}

func newLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{
		file:     f,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   eventbus.NewBroker[string](),
	}, nil
}

// SetEnabled toggles logging on or off.
func SetEnabled(enabled bool) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.enabled = enabled
		defaultLogger.mu.Unlock()
	}
}

// SetMinLevel sets the minimum level that will be emitted.
func SetMinLevel(level Level) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.minLevel = level
		defaultLogger.mu.Unlock()
	}
}

func Debug(cat Category, msg string, fields ...any) { logAt(LevelDebug, cat, msg, fields...) }
func Info(cat Category, msg string, fields ...any)  { logAt(LevelInfo, cat, msg, fields...) }
func Warn(cat Category, msg string, fields ...any)  { logAt(LevelWarn, cat, msg, fields...) }
func Error(cat Category, msg string, fields ...any) { logAt(LevelError, cat, msg, fields...) }

// ErrorErr logs at error level with err's message appended as a field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	logAt(LevelError, cat, msg, fields...)
}

func logAt(level Level, cat Category, msg string, fields ...any) {
	if defaultLogger == nil || !defaultLogger.enabled {
		return
	}
	if level < defaultLogger.minLevel {
		return
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02T15:04:05")
	entry := fmt.Sprintf("%s [%s] [%s] %s", timestamp, level, cat, msg)

	for i := 0; i+1 < len(fields); i += 2 {
		entry += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		entry += fmt.Sprintf(" %v=<missing>", fields[len(fields)-1])
	}
	entry += "\n"

	if defaultLogger.file != nil {
		_, _ = defaultLogger.file.WriteString(entry)
	}
	if defaultLogger.broker != nil {
		defaultLogger.broker.Publish(level.String(), entry)
	}
}

// LogEvent is a single published log line.
type LogEvent = eventbus.Event[string]

// Subscribe returns a channel of log lines, useful for a `tail`-style
// CLI or a future status endpoint. The channel closes when ctx is done.
func Subscribe(ctx context.Context) <-chan LogEvent {
	if defaultLogger == nil || defaultLogger.broker == nil {
		ch := make(chan LogEvent)
		close(ch)
		return ch
	}
	return defaultLogger.broker.Subscribe(ctx)
}
