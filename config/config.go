// Package config loads pollsock settings from TOML files.
package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/logging"
	"github.com/vinayprograms/pollsock/metrics"
	"github.com/vinayprograms/pollsock/pollserver"
	"github.com/vinayprograms/pollsock/session"
	"github.com/vinayprograms/pollsock/socket"
	"github.com/vinayprograms/pollsock/transport"
)

// FileName is the configuration file looked up in each standard location.
const FileName = "pollsock.toml"

// Config is the full configuration file.
type Config struct {
	Client ClientConfig `toml:"client"`
	HTTP   HTTPConfig   `toml:"http"`
	Server ServerConfig `toml:"server"`
}

// ClientConfig holds socket settings.
type ClientConfig struct {
	URL             string        `toml:"url"`
	Protocols       []string      `toml:"protocols"`
	StartDelay      time.Duration `toml:"start_delay"`
	MaxFlushRetries int           `toml:"max_flush_retries"`
	RetryInitial    time.Duration `toml:"retry_initial"`
	RetryMax        time.Duration `toml:"retry_max"`
	LogLevel        string        `toml:"log_level"`
}

// HTTPConfig holds requester settings.
type HTTPConfig struct {
	Timeout          time.Duration     `toml:"timeout"`
	UserAgent        string            `toml:"user_agent"`
	MaxResponseBytes int64             `toml:"max_response_bytes"`
	Headers          map[string]string `toml:"headers"`
}

// ServerConfig holds settings for the bundled server.
type ServerConfig struct {
	Addr        string        `toml:"addr"`
	Path        string        `toml:"path"`
	PollTimeout time.Duration `toml:"poll_timeout"`
	Interval    time.Duration `toml:"interval"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
	MetricsPath string        `toml:"metrics_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	sock := socket.DefaultConfig()
	httpCfg := transport.DefaultHTTPConfig()
	srv := pollserver.DefaultConfig()

	return &Config{
		Client: ClientConfig{
			StartDelay:      sock.StartDelay,
			MaxFlushRetries: sock.MaxFlushRetries,
			RetryInitial:    sock.RetryInitialInterval,
			RetryMax:        sock.RetryMaxInterval,
			LogLevel:        "info",
		},
		HTTP: HTTPConfig{
			Timeout:          httpCfg.Timeout,
			UserAgent:        httpCfg.UserAgent,
			MaxResponseBytes: httpCfg.MaxResponseBytes,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			Path:        srv.Path,
			PollTimeout: srv.PollTimeout,
			IdleTimeout: srv.IdleTimeout,
			MetricsPath: "/metrics",
		},
	}
}

// StandardPaths returns the configuration file locations in order of priority.
func StandardPaths() []string {
	paths := []string{FileName}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "pollsock", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pollsock", FileName))
	}

	return paths
}

// Load reads the first configuration file found in the standard locations.
// Without one it returns the defaults and an empty path.
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return cfg, path, nil
		}
	}
	return Default(), "", nil
}

// LoadFile reads a configuration file over the defaults. Unknown keys are
// rejected so typos do not go unnoticed.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeSyntax, "decode "+path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Newf(errors.ErrCodeSyntax, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime would reject.
func (c *Config) Validate() error {
	if c.Client.URL != "" {
		if _, err := session.HTTPURL(c.Client.URL); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Client.LogLevel); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeSyntax, "client.log_level")
	}

	checks := []struct {
		name string
		bad  bool
	}{
		{"client.start_delay", c.Client.StartDelay < 0},
		{"client.max_flush_retries", c.Client.MaxFlushRetries < 0},
		{"client.retry_initial", c.Client.RetryInitial < 0},
		{"client.retry_max", c.Client.RetryMax < c.Client.RetryInitial},
		{"http.timeout", c.HTTP.Timeout < 0},
		{"http.max_response_bytes", c.HTTP.MaxResponseBytes < 0},
		{"server.poll_timeout", c.Server.PollTimeout < 0},
		{"server.interval", c.Server.Interval < 0},
		{"server.idle_timeout", c.Server.IdleTimeout < 0},
		{"server.path", c.Server.Path != "" && !strings.HasPrefix(c.Server.Path, "/")},
	}
	for _, chk := range checks {
		if chk.bad {
			return errors.Newf(errors.ErrCodeSyntax, "invalid value for %s", chk.name)
		}
	}
	return nil
}

// SocketConfig converts the client section into socket configuration.
func (c *Config) SocketConfig(log *logging.Logger, m *metrics.Collector) socket.Config {
	return socket.Config{
		StartDelay:           c.Client.StartDelay,
		MaxFlushRetries:      c.Client.MaxFlushRetries,
		RetryInitialInterval: c.Client.RetryInitial,
		RetryMaxInterval:     c.Client.RetryMax,
		Logger:               log,
		Metrics:              m,
	}
}

// HTTPConfig converts the http section into requester configuration.
func (c *Config) HTTPConfig(log *logging.Logger) transport.HTTPConfig {
	var header http.Header
	if len(c.HTTP.Headers) > 0 {
		header = make(http.Header, len(c.HTTP.Headers))
		for k, v := range c.HTTP.Headers {
			header.Set(k, v)
		}
	}
	return transport.HTTPConfig{
		Timeout:          c.HTTP.Timeout,
		MaxResponseBytes: c.HTTP.MaxResponseBytes,
		UserAgent:        c.HTTP.UserAgent,
		Header:           header,
		Logger:           log,
	}
}

// PollServerConfig converts the server section into server configuration.
func (c *Config) PollServerConfig(log *logging.Logger) pollserver.Config {
	return pollserver.Config{
		Path:        c.Server.Path,
		PollTimeout: c.Server.PollTimeout,
		Interval:    c.Server.Interval,
		IdleTimeout: c.Server.IdleTimeout,
		Logger:      log,
	}
}

// LogLevel returns the parsed client log level.
func (c *Config) LogLevel() logging.Level {
	lvl, err := logging.ParseLevel(c.Client.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}
