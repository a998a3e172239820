package config

import (
	"fmt"
	"time"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

const (
	// DefaultAddress is used when server.address is not configured.
	DefaultAddress = ":8080"
	// DefaultMaxRequestHeadBytes bounds the request line plus headers.
	DefaultMaxRequestHeadBytes = 8192

	defaultReadTimeout             = "30s"
	defaultIdleTimeout             = "120s"
	defaultWriteTimeout            = "60s"
	defaultGracefulShutdownTimeout = "30s"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig  `json:"server,omitempty" toml:"server,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty"`
	Static  *StaticConfig  `json:"static,omitempty" toml:"static,omitempty"`
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address                 *string    `json:"address,omitempty" toml:"address,omitempty"`
	TLS                     *TLSConfig `json:"tls,omitempty" toml:"tls,omitempty"`
	ReadTimeout             *string    `json:"read_timeout,omitempty" toml:"read_timeout,omitempty"`   // e.g., "30s"
	IdleTimeout             *string    `json:"idle_timeout,omitempty" toml:"idle_timeout,omitempty"`   // between keep-alive requests
	WriteTimeout            *string    `json:"write_timeout,omitempty" toml:"write_timeout,omitempty"` // per transfer unit
	GracefulShutdownTimeout *string    `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty"`
	MaxRequestHeadBytes     *int       `json:"max_request_head_bytes,omitempty" toml:"max_request_head_bytes,omitempty"`
}

// TLSConfig enables in-process TLS termination. Relative paths are resolved
// against the directory of the main configuration file.
type TLSConfig struct {
	CertFile string `json:"cert_file" toml:"cert_file"`
	KeyFile  string `json:"key_file" toml:"key_file"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled *bool  `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target  string `json:"target,omitempty" toml:"target,omitempty"` // "stdout", "stderr" or an absolute file path
	Format  string `json:"format,omitempty" toml:"format,omitempty"` // "json" or "console"
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target string `json:"target,omitempty" toml:"target,omitempty"`
	Format string `json:"format,omitempty" toml:"format,omitempty"`
}

// StaticConfig configures how files are described to clients.
// MimeTypes maps extensions (with leading dot) to media types; MimeTypesPath
// names a JSON file of the same shape and takes precedence over the inline map.
type StaticConfig struct {
	MimeTypes     map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty"`
	MimeTypesPath *string           `json:"mime_types_path,omitempty" toml:"mime_types_path,omitempty"`
}

// Timeouts is the parsed form of the duration strings in ServerConfig.
type Timeouts struct {
	Read             time.Duration
	Idle             time.Duration
	Write            time.Duration
	GracefulShutdown time.Duration
}

// ConfigError describes a problem with a configuration file or one of its values.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.FilePath != "" {
		msg = fmt.Sprintf("%s: %s", e.FilePath, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "" && target != "stdout" && target != "stderr"
}

// Default returns a fully defaulted configuration, as used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ParseTimeouts converts the configured duration strings. It expects a
// configuration that has been through ApplyDefaults.
func (c *ServerConfig) ParseTimeouts() (Timeouts, error) {
	var t Timeouts
	fields := []struct {
		name string
		val  *string
		dst  *time.Duration
	}{
		{"read_timeout", c.ReadTimeout, &t.Read},
		{"idle_timeout", c.IdleTimeout, &t.Idle},
		{"write_timeout", c.WriteTimeout, &t.Write},
		{"graceful_shutdown_timeout", c.GracefulShutdownTimeout, &t.GracefulShutdown},
	}
	for _, f := range fields {
		if f.val == nil || *f.val == "" {
			continue
		}
		d, err := time.ParseDuration(*f.val)
		if err != nil {
			return Timeouts{}, &ConfigError{Message: fmt.Sprintf("invalid server.%s %q", f.name, *f.val), Err: err}
		}
		if d < 0 {
			return Timeouts{}, &ConfigError{Message: fmt.Sprintf("server.%s must not be negative", f.name)}
		}
		*f.dst = d
	}
	return t, nil
}
