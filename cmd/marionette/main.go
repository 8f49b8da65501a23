// Command marionette serves the Marionette remote control protocol for a
// headless application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/grafana/xk6-marionette/env"
)

// version is set at build time.
var version = "dev" //nolint:gochecknoglobals

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(env.Lookup, run).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic
	}
}

type flags struct {
	config          string
	envFile         string
	listen          string
	listenerListen  string
	framing         string
	maxConnections  int
	appName         string
	logLevel        string
	categoryFilter  string
	noColor         bool
	traceStdout     bool
	remoteListeners bool
}

type runFunc func(ctx context.Context, cfg env.Config, remoteListeners bool) error

func newRootCmd(lookup env.LookupFunc, run runFunc) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "marionette",
		Short:        "Serve the Marionette remote control protocol",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f, lookup)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.remoteListeners)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "toml configuration file")
	fs.StringVar(&f.envFile, "env-file", "", "file of MARIONETTE_* variables, the process environment takes precedence")
	fs.StringVarP(&f.listen, "listen", "l", "", "address clients connect to")
	fs.StringVar(&f.listenerListen, "listener-listen", "", "address of the listener hub and the metrics endpoint")
	fs.StringVar(&f.framing, "framing", "", "packet framing, length or newline")
	fs.IntVar(&f.maxConnections, "max-connections", 0, "concurrent clients, 0 for no limit")
	fs.StringVar(&f.appName, "app", "", "application name, Firefox or B2G")
	fs.StringVar(&f.logLevel, "log-level", "", "log level")
	fs.StringVar(&f.categoryFilter, "category-filter", "", "regexp of log categories to print debug output for")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fs.BoolVar(&f.traceStdout, "trace-stdout", false, "print command spans")
	fs.BoolVar(&f.remoteListeners, "remote-listeners", false, "connect content listeners through the websocket hub")

	return cmd
}

// loadConfig merges the configuration file, the environment and the flags
// set on the command line, in increasing precedence.
func loadConfig(cmd *cobra.Command, f flags, lookup env.LookupFunc) (env.Config, error) {
	if f.envFile != "" {
		vars, err := godotenv.Read(f.envFile)
		if err != nil {
			return env.Config{}, fmt.Errorf("reading env file: %w", err)
		}
		lookup = layered(lookup, env.MapLookup(vars))
	}

	cfg, err := env.Load(f.config, lookup)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("listen") {
		cfg.Listen = f.listen
	}
	if changed("listener-listen") {
		cfg.ListenerListen = f.listenerListen
	}
	if changed("framing") {
		cfg.Framing = f.framing
	}
	if changed("max-connections") {
		cfg.MaxConnections = f.maxConnections
	}
	if changed("app") {
		cfg.AppName = f.appName
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("category-filter") {
		cfg.Log.CategoryFilter = f.categoryFilter
	}
	if changed("no-color") {
		cfg.Log.NoColor = f.noColor
	}
	if changed("trace-stdout") {
		cfg.Trace.Stdout = f.traceStdout
	}

	return cfg, cfg.Validate()
}

// layered looks keys up in each lookup in turn.
func layered(lookups ...env.LookupFunc) env.LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}
