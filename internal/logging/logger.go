// Package logging provides categorized structured logging for polyglot.
// Every subsystem logs through its own category so output can be filtered
// by component. Logging is a silent no-op until Initialize is called, which
// keeps library packages and tests quiet by default.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, flag and config resolution
	CategoryConfig    Category = "config"    // Configuration discovery and parsing
	CategoryCatalog   Category = "catalog"   // Project catalog construction
	CategoryLocator   Category = "locator"   // Source tree walk and manifest matching
	CategoryContainer Category = "container" // Image resolution, container lifecycle, exec
	CategorySource    Category = "source"    // Per-source build/run
	CategoryHarness   Category = "harness"   // run/download/test orchestration
	CategoryReport    Category = "report"    // Report generation
	CategoryTestRun   Category = "testrun"   // External test runner integration
	CategoryWatch     Category = "watch"     // File watching
)

// Options configures the root logger.
type Options struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// JSON selects zap's JSON encoder instead of the console encoder.
	JSON bool
	// Output receives log lines. Defaults to os.Stderr.
	Output io.Writer
	// Categories optionally disables individual categories (false = off).
	Categories map[string]bool
}

// Logger is a category-scoped logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	root     *zap.Logger
	loggers  = make(map[Category]*Logger)
	disabled = make(map[Category]bool)
)

// Initialize builds the root zap logger. It may be called again to
// reconfigure; previously returned loggers are invalidated.
func Initialize(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), zap.NewAtomicLevelAt(level))

	mu.Lock()
	if root != nil {
		_ = root.Sync()
	}
	root = zap.New(core)
	loggers = make(map[Category]*Logger)
	disabled = make(map[Category]bool)
	for cat, enabled := range opts.Categories {
		if !enabled {
			disabled[Category(cat)] = true
		}
	}
	mu.Unlock()

	BootDebug("logging initialized at level %s", level)
	return nil
}

// ParseLevel maps a textual level to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger before Initialize or when the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}
	if root == nil || disabled[category] {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}
	l := &Logger{
		category: category,
		sugar:    root.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Zap exposes the underlying zap logger for a category, for callers that
// want typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Reset drops the root logger, returning the package to no-op mode.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
	root = nil
	loggers = make(map[Category]*Logger)
	disabled = make(map[Category]bool)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Config logs to the config category
func Config(format string, args ...interface{}) { Get(CategoryConfig).Info(format, args...) }

// ConfigDebug logs debug to the config category
func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }

// ConfigWarn logs a warning to the config category
func ConfigWarn(format string, args ...interface{}) { Get(CategoryConfig).Warn(format, args...) }

// Catalog logs to the catalog category
func Catalog(format string, args ...interface{}) { Get(CategoryCatalog).Info(format, args...) }

// CatalogDebug logs debug to the catalog category
func CatalogDebug(format string, args ...interface{}) { Get(CategoryCatalog).Debug(format, args...) }

// CatalogWarn logs a warning to the catalog category
func CatalogWarn(format string, args ...interface{}) { Get(CategoryCatalog).Warn(format, args...) }

// Locator logs to the locator category
func Locator(format string, args ...interface{}) { Get(CategoryLocator).Info(format, args...) }

// LocatorDebug logs debug to the locator category
func LocatorDebug(format string, args ...interface{}) { Get(CategoryLocator).Debug(format, args...) }

// LocatorWarn logs a warning to the locator category
func LocatorWarn(format string, args ...interface{}) { Get(CategoryLocator).Warn(format, args...) }

// Container logs to the container category
func Container(format string, args ...interface{}) { Get(CategoryContainer).Info(format, args...) }

// ContainerDebug logs debug to the container category
func ContainerDebug(format string, args ...interface{}) {
	Get(CategoryContainer).Debug(format, args...)
}

// ContainerWarn logs a warning to the container category
func ContainerWarn(format string, args ...interface{}) {
	Get(CategoryContainer).Warn(format, args...)
}

// ContainerError logs an error to the container category
func ContainerError(format string, args ...interface{}) {
	Get(CategoryContainer).Error(format, args...)
}

// Source logs to the source category
func Source(format string, args ...interface{}) { Get(CategorySource).Info(format, args...) }

// SourceDebug logs debug to the source category
func SourceDebug(format string, args ...interface{}) { Get(CategorySource).Debug(format, args...) }

// Harness logs to the harness category
func Harness(format string, args ...interface{}) { Get(CategoryHarness).Info(format, args...) }

// HarnessDebug logs debug to the harness category
func HarnessDebug(format string, args ...interface{}) { Get(CategoryHarness).Debug(format, args...) }

// HarnessWarn logs a warning to the harness category
func HarnessWarn(format string, args ...interface{}) { Get(CategoryHarness).Warn(format, args...) }

// Report logs to the report category
func Report(format string, args ...interface{}) { Get(CategoryReport).Info(format, args...) }

// TestRun logs to the testrun category
func TestRun(format string, args ...interface{}) { Get(CategoryTestRun).Info(format, args...) }

// TestRunDebug logs debug to the testrun category
func TestRunDebug(format string, args ...interface{}) { Get(CategoryTestRun).Debug(format, args...) }

// Watch logs to the watch category
func Watch(format string, args ...interface{}) { Get(CategoryWatch).Info(format, args...) }

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debug(format, args...) }

// WatchError logs an error to the watch category
func WatchError(format string, args ...interface{}) { Get(CategoryWatch).Error(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
