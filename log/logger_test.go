package log

import (
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerCategoryFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filter   string
		category string
		level    logrus.Level
		want     int
	}{
		{name: "no_filter", category: "Dispatcher:send", level: logrus.DebugLevel, want: 1},
		{name: "matching", filter: "^Dispatcher", category: "Dispatcher:send", level: logrus.DebugLevel, want: 1},
		{name: "not_matching", filter: "^Proxy", category: "Dispatcher:send", level: logrus.DebugLevel, want: 0},
		{name: "warnings_unfiltered", filter: "^Proxy", category: "Dispatcher:send", level: logrus.WarnLevel, want: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, hook := test.NewNullLogger()
			l.SetLevel(logrus.DebugLevel)
			var filter *regexp.Regexp
			if tt.filter != "" {
				filter = regexp.MustCompile(tt.filter)
			}
			logger := New(l, false, filter)
			logger.Logf(tt.level, tt.category, "hello %d", 1)

			require.Len(t, hook.AllEntries(), tt.want)
			if tt.want > 0 {
				e := hook.LastEntry()
				assert.Equal(t, "hello 1", e.Message)
				assert.Equal(t, tt.category, e.Data["category"])
			}
		})
	}
}

func TestLoggerDebugOverride(t *testing.T) {
	t.Parallel()

	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.InfoLevel)
	New(l, false, nil).Debugf("cat", "dropped")
	assert.Empty(t, hook.AllEntries())

	New(l, true, nil).Debugf("cat", "kept")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "kept", hook.LastEntry().Message)
}

func TestNullLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.Infof("cat", "x")
		NewNullLogger().Errorf("cat", "x")
	})
}
