package log

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ConsoleFormatter renders entries as a single line with a colored category.
type ConsoleFormatter struct {
	NoColor bool
}

var levelColors = map[logrus.Level]*color.Color{ //nolint:gochecknoglobals
	logrus.TraceLevel: color.New(color.FgHiBlack),
	logrus.DebugLevel: color.New(color.FgCyan),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

// Format implements logrus.Formatter.
func (f *ConsoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	level := fmt.Sprintf("%-5.5s", e.Level.String())
	category, _ := e.Data["category"].(string)
	if c, ok := levelColors[e.Level]; ok && !f.NoColor {
		level = c.Sprint(level)
		if category != "" {
			category = color.New(color.FgMagenta).Sprint(category)
		}
	}

	fmt.Fprintf(&b, "%s %s", e.Time.Format("15:04:05.000"), level)
	if category != "" {
		fmt.Fprintf(&b, " [%s]", category)
	}
	fmt.Fprintf(&b, " %s", e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k == "category" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}
