package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level orders log severities. Messages below the configured level are dropped.
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
	default:
		return "ERROR"
	}
}

// ParseLevel maps a level name to a Level. Unknown names yield LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes component-tagged lines to the run log file.
// All components of one process share a file named after the run ID:
// <dir>/<run-id>-notepress.log
type Logger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	openOnce  sync.Once
	openErr   error
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once

	// logDir is resolved on first use.
	logDir   string
	initOnce sync.Once
	initErr  error

	minLevel = LevelDebug
	levelMu  sync.RWMutex
)

// Configure sets the log directory and minimum level. The directory only
// takes effect if no logger has written yet.
func Configure(dir string, level Level) {
	if dir != "" {
		logDir = dir
	}
	levelMu.Lock()
	minLevel = level
	levelMu.Unlock()
}

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".notepress", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger creates a logger for a component and opens the run log file.
//
// If the log directory or file cannot be opened it returns a logger writing
// to stderr together with the error, so callers can keep going.
func NewLogger(component string) (*Logger, error) {
	l := Component(component)
	l.ensureOpen()
	return l, l.openErr
}

// Component returns a logger whose file is opened on first write. Package
// level loggers use it so that Configure, called from main, still applies.
func Component(component string) *Logger {
	return &Logger{runID: getRunID(), component: component}
}

func (l *Logger) ensureOpen() {
	l.openOnce.Do(func() {
		if err := initLogDirectory(); err != nil {
			l.fallback(err)
			return
		}
		l.logPath = filepath.Join(logDir, fmt.Sprintf("%s-notepress.log", l.runID))
		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			l.logPath = ""
			l.fallback(fmt.Errorf("failed to open log file: %w", err))
			return
		}
		l.file = file
		l.logger = log.New(file, "", 0)
	})
}

func (l *Logger) fallback(err error) {
	l.openErr = err
	l.logger = log.New(os.Stderr, "", 0)
	l.logger.Printf("[%s] [%s] [WARN] file logging unavailable (%v), using stderr",
		time.Now().Format("2006-01-02 15:04:05.000"), l.component, err)
}

func (l *Logger) write(level Level, message string) {
	levelMu.RLock()
	threshold := minLevel
	levelMu.RUnlock()
	if level < threshold {
		return
	}
	l.ensureOpen()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) Debugf(format string, v ...interface{}) { l.write(LevelDebug, fmt.Sprintf(format, v...)) }
func (l *Logger) Infof(format string, v ...interface{})  { l.write(LevelInfo, fmt.Sprintf(format, v...)) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.write(LevelWarn, fmt.Sprintf(format, v...)) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.write(LevelError, fmt.Sprintf(format, v...)) }

// Writer returns the underlying destination.
func (l *Logger) Writer() io.Writer {
	l.ensureOpen()
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// RunID returns the identifier shared by every logger of this process.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath is empty for stderr loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetRunID returns the process-wide run identifier.
func GetRunID() string {
	return getRunID()
}
