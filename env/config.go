package env

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/grafana/xk6-marionette/protocol"
)

// ErrInvalidConfig is returned for configuration values that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the server configuration. It is read from an optional toml file
// and overridden by the environment.
type Config struct {
	Listen              string      `toml:"listen"`
	ListenerListen      string      `toml:"listener_listen"`
	Framing             string      `toml:"framing"`
	MaxConnections      int         `toml:"max_connections"`
	AppName             string      `toml:"app_name"`
	Device              string      `toml:"device"`
	ScriptTimeoutMS     int64       `toml:"script_timeout_ms"`
	NewSessionTimeoutMS int64       `toml:"new_session_timeout_ms"`
	TempDir             string      `toml:"temp_dir"`
	Log                 LogConfig   `toml:"log"`
	Trace               TraceConfig `toml:"trace"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level          string `toml:"level"`
	CategoryFilter string `toml:"category_filter"`
	NoColor        bool   `toml:"no_color"`
}

// TraceConfig configures command tracing. Tracing is off unless Stdout is
// set or an endpoint is given.
type TraceConfig struct {
	Stdout   bool   `toml:"stdout"`
	Endpoint string `toml:"endpoint"`
	Insecure bool   `toml:"insecure"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Listen:              "127.0.0.1:2828",
		ListenerListen:      "127.0.0.1:2829",
		Framing:             protocol.FramingLength.String(),
		MaxConnections:      1,
		AppName:             "Firefox",
		Device:              "desktop",
		ScriptTimeoutMS:     10000,
		NewSessionTimeoutMS: 60000,
		Log:                 LogConfig{Level: "info"},
	}
}

// Load reads the toml file at path, when path is not empty, on top of the
// defaults and applies the environment overrides found through lookup.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = k.String()
			}
			return cfg, fmt.Errorf("%w: unknown keys in %q: %s", ErrInvalidConfig, path, strings.Join(names, ", "))
		}
	}
	if lookup == nil {
		lookup = EmptyLookup
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int64) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v))
			return
		}
		*dst = b
	}

	str(Listen, &c.Listen)
	str(ListenerListen, &c.ListenerListen)
	str(Framing, &c.Framing)
	maxConns := int64(c.MaxConnections)
	num(MaxConnections, &maxConns)
	c.MaxConnections = int(maxConns)
	str(AppName, &c.AppName)
	str(Device, &c.Device)
	num(ScriptTimeout, &c.ScriptTimeoutMS)
	num(NewSessionTimeout, &c.NewSessionTimeoutMS)
	str(TempDir, &c.TempDir)
	str(LogLevel, &c.Log.Level)
	str(LogCategoryFilter, &c.Log.CategoryFilter)
	flag(LogNoColor, &c.Log.NoColor)
	flag(TraceStdout, &c.Trace.Stdout)
	str(TraceEndpoint, &c.Trace.Endpoint)
	flag(TraceInsecure, &c.Trace.Insecure)

	return errors.Join(errs...)
}

// Validate checks that the configuration can be used to start a server.
func (c Config) Validate() error {
	if _, err := c.WireFraming(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: max_connections must not be negative", ErrInvalidConfig)
	}
	if c.AppName != "Firefox" && c.AppName != "B2G" {
		return fmt.Errorf("%w: app_name must be Firefox or B2G, got %q", ErrInvalidConfig, c.AppName)
	}
	if c.ScriptTimeoutMS < 0 || c.NewSessionTimeoutMS < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.CategoryFilter(); err != nil {
		return fmt.Errorf("%w: log category filter: %v", ErrInvalidConfig, err)
	}
	return nil
}

// WireFraming returns the configured packet framing.
func (c Config) WireFraming() (protocol.Framing, error) {
	return protocol.ParseFraming(c.Framing)
}

// LogLevel returns the configured logrus level.
func (c Config) LogLevel() (logrus.Level, error) {
	return logrus.ParseLevel(c.Log.Level)
}

// CategoryFilter returns the compiled category filter, or nil when none is
// configured.
func (c Config) CategoryFilter() (*regexp.Regexp, error) {
	if c.Log.CategoryFilter == "" {
		return nil, nil //nolint:nilnil
	}
	return regexp.Compile(c.Log.CategoryFilter)
}

// ScriptTimeout returns the default script timeout.
func (c Config) ScriptTimeout() time.Duration {
	return time.Duration(c.ScriptTimeoutMS) * time.Millisecond
}

// NewSessionTimeout returns how long newSession may take.
func (c Config) NewSessionTimeout() time.Duration {
	return time.Duration(c.NewSessionTimeoutMS) * time.Millisecond
}

// Tracing reports whether command spans are exported.
func (c Config) Tracing() bool {
	return c.Trace.Stdout || c.Trace.Endpoint != ""
}
