package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadConfig reads, parses, defaults and validates the configuration file at
// path. The format is chosen by extension (.json, .toml); any other extension
// is auto-detected, trying JSON first and then TOML.
// Relative paths inside the file are resolved against the file's directory.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, &ConfigError{Message: "configuration file path cannot be empty"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to read configuration file", Err: err}
	}

	cfg, err := parse(path, data)
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, filepath.Dir(path))
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) && ce.FilePath == "" {
			ce.FilePath = path
		}
		return nil, err
	}
	return cfg, nil
}

func parse(path string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err := parseJSON(data)
		if err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse JSON config", Err: err}
		}
		return cfg, nil
	case ".toml":
		cfg, err := parseTOML(data)
		if err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse TOML config", Err: err}
		}
		return cfg, nil
	}

	cfg, jsonErr := parseJSON(data)
	if jsonErr == nil {
		return cfg, nil
	}
	cfg, tomlErr := parseTOML(data)
	if tomlErr == nil {
		return cfg, nil
	}
	return nil, &ConfigError{
		FilePath: path,
		Message:  "failed to auto-detect and parse config",
		Err:      fmt.Errorf("JSON error: %v; TOML error: %w", jsonErr, tomlErr),
	}
}

func parseJSON(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

func resolveRelativePaths(cfg *Config, baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	if cfg.Server != nil && cfg.Server.TLS != nil {
		cfg.Server.TLS.CertFile = abs(cfg.Server.TLS.CertFile)
		cfg.Server.TLS.KeyFile = abs(cfg.Server.TLS.KeyFile)
	}
	if cfg.Static != nil && cfg.Static.MimeTypesPath != nil {
		p := abs(*cfg.Static.MimeTypesPath)
		cfg.Static.MimeTypesPath = &p
	}
}

// ApplyDefaults fills every unset optional field.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	s := cfg.Server
	if s.Address == nil {
		s.Address = strPtr(DefaultAddress)
	}
	if s.ReadTimeout == nil {
		s.ReadTimeout = strPtr(defaultReadTimeout)
	}
	if s.IdleTimeout == nil {
		s.IdleTimeout = strPtr(defaultIdleTimeout)
	}
	if s.WriteTimeout == nil {
		s.WriteTimeout = strPtr(defaultWriteTimeout)
	}
	if s.GracefulShutdownTimeout == nil {
		s.GracefulShutdownTimeout = strPtr(defaultGracefulShutdownTimeout)
	}
	if s.MaxRequestHeadBytes == nil {
		n := DefaultMaxRequestHeadBytes
		s.MaxRequestHeadBytes = &n
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	l := cfg.Logging
	if l.LogLevel == "" {
		l.LogLevel = LogLevelInfo
	}
	if l.ErrorLog == nil {
		l.ErrorLog = &ErrorLogConfig{}
	}
	if l.ErrorLog.Target == "" {
		l.ErrorLog.Target = "stderr"
	}
	if l.ErrorLog.Format == "" {
		l.ErrorLog.Format = "json"
	}
	if l.AccessLog == nil {
		l.AccessLog = &AccessLogConfig{}
	}
	if l.AccessLog.Enabled == nil {
		enabled := true
		l.AccessLog.Enabled = &enabled
	}
	if l.AccessLog.Target == "" {
		l.AccessLog.Target = "stdout"
	}
	if l.AccessLog.Format == "" {
		l.AccessLog.Format = "json"
	}

	if cfg.Static == nil {
		cfg.Static = &StaticConfig{}
	}
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	s := cfg.Server
	if s == nil || s.Address == nil || *s.Address == "" {
		return &ConfigError{Message: "server.address must not be empty"}
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		return &ConfigError{Message: "server.tls requires both cert_file and key_file"}
	}
	if s.MaxRequestHeadBytes != nil && *s.MaxRequestHeadBytes < 256 {
		return &ConfigError{Message: fmt.Sprintf("server.max_request_head_bytes must be at least 256, got %d", *s.MaxRequestHeadBytes)}
	}
	if _, err := s.ParseTimeouts(); err != nil {
		return err
	}

	l := cfg.Logging
	switch l.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return &ConfigError{Message: fmt.Sprintf("invalid logging.log_level %q", l.LogLevel)}
	}
	if err := validateTarget("logging.error_log", l.ErrorLog.Target, l.ErrorLog.Format); err != nil {
		return err
	}
	if err := validateTarget("logging.access_log", l.AccessLog.Target, l.AccessLog.Format); err != nil {
		return err
	}

	for ext, mt := range cfg.Static.MimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Message: fmt.Sprintf("static.mime_types: extension %q must start with '.'", ext)}
		}
		if mt == "" {
			return &ConfigError{Message: fmt.Sprintf("static.mime_types: empty media type for %q", ext)}
		}
	}
	return nil
}

func validateTarget(section, target, format string) error {
	if IsFilePath(target) && !filepath.IsAbs(target) {
		return &ConfigError{Message: fmt.Sprintf("%s.target must be stdout, stderr or an absolute path, got %q", section, target)}
	}
	if format != "json" && format != "console" {
		return &ConfigError{Message: fmt.Sprintf("%s.format must be \"json\" or \"console\", got %q", section, format)}
	}
	return nil
}

func strPtr(s string) *string { return &s }
