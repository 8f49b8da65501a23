package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-marionette/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marionette.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:2828", cfg.Listen)
	assert.Equal(t, 10*time.Second, cfg.ScriptTimeout())
	assert.Equal(t, time.Minute, cfg.NewSessionTimeout())
	assert.False(t, cfg.Tracing())

	f, err := cfg.WireFraming()
	require.NoError(t, err)
	assert.Equal(t, protocol.FramingLength, f)
	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lvl)
	re, err := cfg.CategoryFilter()
	require.NoError(t, err)
	assert.Nil(t, re)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
listen = "0.0.0.0:2828"
framing = "newline"
max_connections = 4
app_name = "B2G"
script_timeout_ms = 500

[log]
level = "debug"
category_filter = "^Driver"

[trace]
stdout = true
`)
	cfg, err := Load(path, EmptyLookup)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:2828", cfg.Listen)
	assert.Equal(t, "127.0.0.1:2829", cfg.ListenerListen, "unset keys keep their defaults")
	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, "B2G", cfg.AppName)
	assert.Equal(t, 500*time.Millisecond, cfg.ScriptTimeout())
	assert.True(t, cfg.Tracing())

	f, err := cfg.WireFraming()
	require.NoError(t, err)
	assert.Equal(t, protocol.FramingNewline, f)
	re, err := cfg.CategoryFilter()
	require.NoError(t, err)
	assert.True(t, re.MatchString("Driver:newSession"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `listen = "0.0.0.0:2828"`)
	cfg, err := Load(path, MapLookup(map[string]string{
		Listen:            " 127.0.0.1:3000 ",
		MaxConnections:    "0",
		NewSessionTimeout: "1500",
		LogNoColor:        "true",
		TraceEndpoint:     "localhost:4318",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Listen, "the environment wins over the file")
	assert.Equal(t, 0, cfg.MaxConnections)
	assert.Equal(t, 1500*time.Millisecond, cfg.NewSessionTimeout())
	assert.True(t, cfg.Log.NoColor)
	assert.True(t, cfg.Tracing())
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		file   string
		lookup LookupFunc
	}{
		{name: "unknown_key", file: `lisen = "x"`},
		{name: "malformed_file", file: `listen = `},
		{name: "framing", lookup: ConstLookup(Framing, "chunked")},
		{name: "app_name", lookup: ConstLookup(AppName, "Chrome")},
		{name: "not_a_number", lookup: ConstLookup(ScriptTimeout, "soon")},
		{name: "not_a_boolean", lookup: ConstLookup(TraceStdout, "maybe")},
		{name: "negative_connections", lookup: ConstLookup(MaxConnections, "-1")},
		{name: "log_level", lookup: ConstLookup(LogLevel, "loud")},
		{name: "category_filter", lookup: ConstLookup(LogCategoryFilter, "(")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path, tt.lookup)
			require.Error(t, err)
			if tt.name != "malformed_file" {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLookups(t *testing.T) {
	t.Parallel()

	v, ok := ConstLookup("A", "1")("A")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = ConstLookup("A", "1")("B")
	assert.False(t, ok)
	_, ok = EmptyLookup("A")
	assert.False(t, ok)
}
