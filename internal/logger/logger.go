package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"example.com/staticd/internal/config"
)

// LogFields carries structured context for a log entry.
type LogFields map[string]interface{}

// Logger is a general logger that contains specific loggers for access and errors.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger // nil when access logging is disabled
	files     []*reopenableFile
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{}

	errTarget, errFormat := "stderr", "json"
	if cfg.ErrorLog != nil {
		if cfg.ErrorLog.Target != "" {
			errTarget = cfg.ErrorLog.Target
		}
		if cfg.ErrorLog.Format != "" {
			errFormat = cfg.ErrorLog.Format
		}
	}
	errOut, err := l.openTarget(errTarget, errFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	l.errorLog = zerolog.New(errOut).Level(toZerologLevel(cfg.LogLevel)).With().Timestamp().Logger()

	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		target, format := cfg.AccessLog.Target, cfg.AccessLog.Format
		if target == "" {
			target = "stdout"
		}
		if format == "" {
			format = "json"
		}
		accessOut, err := l.openTarget(target, format)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
		al := zerolog.New(accessOut).With().Timestamp().Logger()
		l.accessLog = &al
	}

	return l, nil
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

// NewTestLogger returns a Logger writing debug-level JSON error entries and
// access entries to w.
func NewTestLogger(w io.Writer) *Logger {
	zl := zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	al := zl.With().Str("log", "access").Logger()
	return &Logger{errorLog: zl, accessLog: &al}
}

func (l *Logger) openTarget(target, format string) (io.Writer, error) {
	var out io.Writer
	var fd uintptr
	switch {
	case target == "stdout":
		out, fd = os.Stdout, os.Stdout.Fd()
	case target == "stderr":
		out, fd = os.Stderr, os.Stderr.Fd()
	case config.IsFilePath(target):
		f, err := openReopenable(target)
		if err != nil {
			return nil, err
		}
		l.files = append(l.files, f)
		out, fd = f, f.fd()
	default:
		return nil, fmt.Errorf("invalid log target: %q", target)
	}

	if format == "console" {
		return zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    !isatty.IsTerminal(fd),
			TimeFormat: time.RFC3339,
		}, nil
	}
	return out, nil
}

func toZerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child Logger whose error entries always carry fields.
// Access entries are not affected.
func (l *Logger) With(fields LogFields) *Logger {
	return &Logger{
		errorLog:  l.errorLog.With().Fields(map[string]interface{}(fields)).Logger(),
		accessLog: l.accessLog,
		files:     l.files,
	}
}

// DebugEnabled reports whether debug entries would be written.
func (l *Logger) DebugEnabled() bool {
	return l.errorLog.GetLevel() <= zerolog.DebugLevel
}

func (l *Logger) Debug(msg string, fields ...LogFields) { emit(l.errorLog.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...LogFields)  { emit(l.errorLog.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { emit(l.errorLog.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { emit(l.errorLog.Error(), msg, fields) }

func emit(e *zerolog.Event, msg string, fields []LogFields) {
	if e == nil {
		return
	}
	for _, f := range fields {
		if f != nil {
			e = e.Fields(map[string]interface{}(f))
		}
	}
	e.Msg(msg)
}

// AccessEntry describes one completed request/response exchange.
type AccessEntry struct {
	ConnID     uint64
	RemoteAddr string
	Method     string
	URI        string
	Proto      string
	Status     int
	Bytes      int64
	Transfer   string // transfer state for file bodies, empty otherwise
	KeepAlive  bool
	Duration   time.Duration
	UserAgent  string
}

// Access writes an access log entry.
func (l *Logger) Access(e AccessEntry) {
	if l.accessLog == nil {
		return
	}
	ev := l.accessLog.Info().
		Uint64("conn", e.ConnID).
		Str("remote_addr", e.RemoteAddr).
		Str("method", e.Method).
		Str("uri", e.URI).
		Str("protocol", e.Proto).
		Int("status", e.Status).
		Int64("resp_bytes", e.Bytes).
		Bool("keep_alive", e.KeepAlive).
		Dur("duration", e.Duration)
	if e.Transfer != "" {
		ev = ev.Str("transfer", e.Transfer)
	}
	if e.UserAgent != "" {
		ev = ev.Str("user_agent", e.UserAgent)
	}
	ev.Send()
}

// CloseLogFiles closes any open log files.
func (l *Logger) CloseLogFiles() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReopenLogFiles closes and reopens file-based log targets, for use after
// external log rotation (SIGHUP).
func (l *Logger) ReopenLogFiles() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.reopen(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// reopenableFile is an append-only log file whose descriptor can be swapped
// while writers keep a stable io.Writer.
type reopenableFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openReopenable(path string) (*reopenableFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &reopenableFile{path: path, f: f}, nil
}

func (r *reopenableFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	return r.f.Write(p)
}

func (r *reopenableFile) fd() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Fd()
}

func (r *reopenableFile) reopen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to reopen log file %s: %w", r.path, err)
	}
	if r.f != nil {
		r.f.Close()
	}
	r.f = f
	return nil
}

func (r *reopenableFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
