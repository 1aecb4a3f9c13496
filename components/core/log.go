package core

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a leveled printer over the process-wide zap logger.
type Logger struct {
	level zapcore.Level
}

// Printf logs a formatted message, a trailing newline is dropped.
func (l *Logger) Printf(format string, args ...any) {
	sugar.Load().Logf(l.level, strings.TrimSuffix(format, "\n"), args...)
}

// Println logs operands separated by spaces.
func (l *Logger) Println(args ...any) {
	sugar.Load().Logln(l.level, args...)
}

var (
	// LogDbg logs debug events, disabled by default.
	LogDbg = &Logger{level: zapcore.DebugLevel}
	// LogInf logs informational events.
	LogInf = &Logger{level: zapcore.InfoLevel}
	// LogWrn logs warning events.
	LogWrn = &Logger{level: zapcore.WarnLevel}
	// LogErr logs error events.
	LogErr = &Logger{level: zapcore.ErrorLevel}
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar atomic.Pointer[zap.SugaredLogger]

	fileMu  sync.Mutex
	logFile *os.File
)

func init() {
	sugar.Store(newSugar(zapcore.Lock(os.Stderr), false))
}

// SetLogFile setups a log file for all loggers.
//
// Remarks:
//   - The previously set log file is closed.
func SetLogFile(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	return swapLogOutput(newSugar(zapcore.Lock(file), true), file)
}

// CloseLogFile switches all loggers back to stderr and closes the log file.
func CloseLogFile() error {
	return swapLogOutput(newSugar(zapcore.Lock(os.Stderr), false), nil)
}

// SetLogLevel changes the minimal level of the logged events.
//
// Examples:
//   - "debug", "info", "warn", "error".
func SetLogLevel(name string) error {
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return err
	}

	level.SetLevel(lvl)

	return nil
}

// Sync flushes buffered log entries.
func Sync() error {
	return sugar.Load().Sync()
}

func swapLogOutput(next *zap.SugaredLogger, file *os.File) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	prev := sugar.Swap(next)

	prevFile := logFile
	logFile = file

	if prevFile == nil {
		return nil
	}

	_ = prev.Sync()

	return prevFile.Close()
}

func newSugar(ws zapcore.WriteSyncer, utc bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	if utc {
		cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format("2006/01/02 15:04:05.000000"))
		}
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), ws, level)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}
