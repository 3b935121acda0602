package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"ApkDisguise/pkg/config"
)

// Logger is the process-wide logger. init points it at stderr.
var Logger zerolog.Logger

var (
	logMu            sync.Mutex
	persistentLogger *PersistentLogger
)

// ParseLogLevel maps a config string to a zerolog level, defaulting to info
func ParseLogLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// LogConfig controls where logs go
type LogConfig struct {
	Level      zerolog.Level
	Console    bool
	File       bool
	FilePath   string
	MaxSizeMB  int // rotate after this many MB
	MaxAgeDays int // delete rotated files older than this
	MaxBackups int // keep at most this many rotated files
	Compress   bool
	ConsoleOut io.Writer // stderr when nil
}

// DefaultLogConfig logs info and above to stderr
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      zerolog.InfoLevel,
		Console:    true,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig adds a file under <dataDir>/logs
func PersistentLogConfig(dataDir string) LogConfig {
	cfg := DefaultLogConfig()
	cfg.File = true
	cfg.FilePath = filepath.Join(dataDir, "logs", "apkdisguise.log")
	return cfg
}

// LogConfigFrom converts the logging section of the config file.
// A file is only written when logging.file is set.
func LogConfigFrom(c config.LoggingConfig) LogConfig {
	cfg := DefaultLogConfig()
	cfg.Level = ParseLogLevel(c.Level)
	cfg.Compress = c.CompressValue()
	if c.File != "" {
		cfg.File, cfg.FilePath = true, c.File
	}
	for _, limit := range []struct {
		dst *int
		v   int
	}{
		{&cfg.MaxSizeMB, c.MaxSizeMB},
		{&cfg.MaxAgeDays, c.MaxAgeDays},
		{&cfg.MaxBackups, c.MaxBackups},
	} {
		if limit.v > 0 {
			*limit.dst = limit.v
		}
	}
	return cfg
}

// ========================================
// PersistentLogger
// ========================================

// PersistentLogger is an io.Writer over a log file that is renamed to
// <name>_<timestamp><ext> once it would exceed maxBytes. Renamed files are
// optionally gzipped and pruned by age and count.
type PersistentLogger struct {
	path     string
	maxBytes int64
	maxAge   time.Duration
	backups  int
	compress bool

	mu   sync.Mutex
	f    *os.File
	size int64

	done      chan struct{}
	closeOnce sync.Once
	bg        sync.WaitGroup
}

// NewPersistentLogger opens cfg.FilePath for appending and prunes old backups
func NewPersistentLogger(cfg LogConfig) (*PersistentLogger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	pl := &PersistentLogger{
		path:     cfg.FilePath,
		maxBytes: int64(cfg.MaxSizeMB) << 20,
		maxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		backups:  cfg.MaxBackups,
		compress: cfg.Compress,
		done:     make(chan struct{}),
	}
	if err := pl.reopen(); err != nil {
		return nil, err
	}

	pl.prune()
	pl.bg.Add(1)
	go pl.pruneHourly()

	return pl, nil
}

// Write implements io.Writer
func (pl *PersistentLogger) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.f == nil {
		return 0, os.ErrClosed
	}
	// a single oversized entry still lands in an empty file
	if pl.maxBytes > 0 && pl.size > 0 && pl.size+int64(len(p)) > pl.maxBytes {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := pl.f.Write(p)
	pl.size += int64(n)
	return n, err
}

func (pl *PersistentLogger) reopen() error {
	f, err := os.OpenFile(pl.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	pl.f, pl.size = f, info.Size()
	return nil
}

func (pl *PersistentLogger) backupPattern() string {
	ext := filepath.Ext(pl.path)
	return strings.TrimSuffix(pl.path, ext) + "_*" + ext + "*"
}

func (pl *PersistentLogger) backupName(t time.Time) string {
	ext := filepath.Ext(pl.path)
	return strings.TrimSuffix(pl.path, ext) + "_" + t.Format("20060102T150405.000") + ext
}

// rotate must be called with mu held. A failed rename keeps appending to the
// current file.
func (pl *PersistentLogger) rotate() error {
	pl.f.Close()
	pl.f = nil

	backup := pl.backupName(time.Now())
	if err := os.Rename(pl.path, backup); err == nil && pl.compress {
		pl.bg.Add(1)
		go func() {
			defer pl.bg.Done()
			if err := compressFile(backup); err != nil {
				fmt.Fprintf(os.Stderr, "log: compress %s: %v\n", backup, err)
			}
		}()
	}
	return pl.reopen()
}

// compressFile writes path.gz and removes path. On failure the partial
// archive is removed and path is left alone.
func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}

	gzPath := path + ".gz"
	out, err := os.Create(gzPath)
	if err != nil {
		in.Close()
		return err
	}

	zw := gzip.NewWriter(out)
	_, err = io.Copy(zw, in)
	in.Close()
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(gzPath)
		return err
	}
	return os.Remove(path)
}

func (pl *PersistentLogger) pruneHourly() {
	defer pl.bg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pl.prune()
		case <-pl.done:
			return
		}
	}
}

// prune keeps the newest backups within maxAge, at most `backups` of them
func (pl *PersistentLogger) prune() {
	matches, err := filepath.Glob(pl.backupPattern())
	if err != nil || len(matches) == 0 {
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	found := make([]backup, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			found = append(found, backup{m, info.ModTime()})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	cutoff := time.Now().Add(-pl.maxAge)
	for i, b := range found {
		expired := pl.maxAge > 0 && b.mod.Before(cutoff)
		excess := pl.backups > 0 && i >= pl.backups
		if expired || excess {
			os.Remove(b.path)
		}
	}
}

// Close waits for background work and closes the file
func (pl *PersistentLogger) Close() error {
	pl.closeOnce.Do(func() { close(pl.done) })
	pl.bg.Wait()

	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.f == nil {
		return nil
	}
	err := pl.f.Close()
	pl.f = nil
	return err
}

// ========================================
// Initialisation
// ========================================

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	if out == nil {
		out = os.Stderr
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
}

// InitLogger replaces the global Logger. stdout is never written to because
// it carries command output and the MCP stdio stream.
func InitLogger(cfg LogConfig) error {
	console := consoleWriter(cfg.ConsoleOut)

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, console)
	}

	var file *PersistentLogger
	if cfg.File && cfg.FilePath != "" {
		pl, err := NewPersistentLogger(cfg)
		if err != nil {
			return err
		}
		file = pl
		writers = append(writers, pl)
	}
	if len(writers) == 0 {
		writers = append(writers, console)
	}

	logMu.Lock()
	prev := persistentLogger
	persistentLogger = file
	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level).
		With().Timestamp().
		Logger()
	logMu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return nil
}

// CloseLogger closes the log file, if any, and keeps logging to stderr
func CloseLogger() {
	logMu.Lock()
	pl := persistentLogger
	persistentLogger = nil
	if pl != nil {
		Logger = Logger.Output(consoleWriter(nil))
	}
	logMu.Unlock()

	if pl != nil {
		pl.Close()
	}
}

// GetLogFilePath returns the active log file, or ""
func GetLogFilePath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if persistentLogger == nil {
		return ""
	}
	return persistentLogger.path
}

// ========================================
// Helpers
// ========================================

func moduleEvent(level zerolog.Level, module string) *zerolog.Event {
	return Logger.WithLevel(level).Str("module", module)
}

// LogDebug starts a debug event tagged with module
func LogDebug(module string) *zerolog.Event { return moduleEvent(zerolog.DebugLevel, module) }

// LogInfo starts an info event tagged with module
func LogInfo(module string) *zerolog.Event { return moduleEvent(zerolog.InfoLevel, module) }

// LogWarn starts a warn event tagged with module
func LogWarn(module string) *zerolog.Event { return moduleEvent(zerolog.WarnLevel, module) }

// LogError starts an error event tagged with module
func LogError(module string) *zerolog.Event { return moduleEvent(zerolog.ErrorLevel, module) }

// ModuleLogger returns a child logger for a package that takes *zerolog.Logger
func ModuleLogger(module string) *zerolog.Logger {
	l := Logger.With().Str("module", module).Logger()
	return &l
}

// AppState is a lifecycle phase
type AppState string

const (
	StateStarting     AppState = "starting"
	StateReady        AppState = "ready"
	StateShuttingDown AppState = "shutting_down"
)

// LogAppState records a lifecycle transition
func LogAppState(state AppState, details map[string]interface{}) {
	Logger.Info().
		Str("category", "app_state").
		Str("state", string(state)).
		Fields(details).
		Msg("App state changed")
}

// ========================================
// Timing
// ========================================

// OperationTimer logs one line with the duration of an operation
type OperationTimer struct {
	module    string
	operation string
	start     time.Time
	fields    map[string]interface{}
}

// StartOperation starts timing
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		start:     time.Now(),
		fields:    map[string]interface{}{},
	}
}

// AddDetail attaches a field to the final log line
func (t *OperationTimer) AddDetail(key string, value interface{}) *OperationTimer {
	t.fields[key] = value
	return t
}

// End logs success
func (t *OperationTimer) End() {
	t.emit(Logger.Info(), "Operation completed")
}

// EndWithError logs failure
func (t *OperationTimer) EndWithError(err error) {
	t.emit(Logger.Error().Err(err), "Operation failed")
}

func (t *OperationTimer) emit(e *zerolog.Event, msg string) {
	elapsed := t.Elapsed()
	e.Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Int64("duration_ms", elapsed.Milliseconds()).
		Fields(t.fields).
		Msg(msg)
}

// Elapsed returns the time since StartOperation
func (t *OperationTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

func init() {
	_ = InitLogger(DefaultLogConfig())
}
