// Package logger is the component-tagged logging facade used across picochat.
//
// Call sites name a component ("sync", "realtime", "api", ...) and an
// optional field map; the facade turns those into structured zap entries.
// Console output goes to stderr, and EnableFileLogging adds a rotating JSON
// file sink.
package logger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps a config string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	for lvl, name := range levelNames {
		if strings.EqualFold(name, s) {
			return lvl
		}
	}
	return INFO
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu         sync.RWMutex
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	current    = INFO
	consoleCor = newConsoleCore()
	fileCore   zapcore.Core
	fileSink   *lumberjack.Logger
	base       = zap.New(consoleCor)
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
}

func newConsoleCore() zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(os.Stderr),
		level,
	)
}

func rebuild() {
	cores := []zapcore.Core{consoleCor}
	if fileCore != nil {
		cores = append(cores, fileCore)
	}
	base = zap.New(zapcore.NewTee(cores...))
}

// SetLevel changes the minimum level for every sink.
func SetLevel(l LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current = l
	level.SetLevel(l.zapLevel())
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// EnableFileLogging mirrors every entry as JSON into path, rotated by size.
func EnableFileLogging(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if fileSink != nil {
		fileSink.Close()
	}
	fileSink = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	fileCore = zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(fileSink), level)
	rebuild()
	return nil
}

func DisableFileLogging() {
	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		fileSink.Close()
		fileSink = nil
	}
	fileCore = nil
	rebuild()
}

// Sync flushes buffered entries. Safe to call on shutdown.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

// replaceConsole swaps the console sink; tests use it to observe output.
func replaceConsole(core zapcore.Core) {
	mu.Lock()
	defer mu.Unlock()
	consoleCor = core
	rebuild()
}

func logMessage(l LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	lg := base
	mu.RUnlock()

	zfields := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zfields = append(zfields, zap.String("component", component))
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zfields = append(zfields, zap.Any(k, fields[k]))
	}

	switch l {
	case DEBUG:
		lg.Debug(message, zfields...)
	case INFO:
		lg.Info(message, zfields...)
	case WARN:
		lg.Warn(message, zfields...)
	case ERROR:
		lg.Error(message, zfields...)
	case FATAL:
		lg.Fatal(message, zfields...)
	}
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }

func DebugF(message string, fields map[string]any) { logMessage(DEBUG, "", message, fields) }

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) { logMessage(INFO, "", message, nil) }

func InfoC(component, message string) { logMessage(INFO, component, message, nil) }

func InfoF(message string, fields map[string]any) { logMessage(INFO, "", message, fields) }

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) { logMessage(WARN, "", message, nil) }

func WarnC(component, message string) { logMessage(WARN, component, message, nil) }

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) { logMessage(ERROR, "", message, nil) }

func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}

func Fatal(message string) { logMessage(FATAL, "", message, nil) }

func FatalCF(component, message string, fields map[string]any) {
	logMessage(FATAL, component, message, fields)
}
