// Command elocute analyses recorded pronunciation attempts and tracks each
// user's progress per word. It runs as a one-shot CLI against a local store
// or as an HTTP service.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/elocute/internal/config"
)

// version is overridden at link time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags and the state they produce. It is
// filled by the root command's PersistentPreRunE before any subcommand runs.
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string

	cfg   *config.Config
	level *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:           "elocute",
		Short:         "Pronunciation analysis and progress tracking",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (default: built-in defaults)")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading the config (default: .env if present)")
	pf.StringVar(&opts.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newProgressCmd(opts))
	root.AddCommand(newInsightsCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

// load reads dotenv files, then the config, then installs the default
// logger.
func (o *rootOptions) load(logOut io.Writer) error {
	if err := loadEnv(o.envFiles); err != nil {
		return err
	}

	var cfg *config.Config
	if o.configPath == "" {
		cfg = config.Default()
		if err := config.Validate(cfg); err != nil {
			return err
		}
	} else {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("config file %q not found", o.configPath)
			}
			return err
		}
	}
	if o.logLevel != "" {
		lvl := config.LogLevel(o.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", o.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	o.cfg = cfg

	o.level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(logOut, o.level))
	return nil
}

// loadEnv loads the named dotenv files into the process environment without
// overriding variables that are already set. With no files it loads .env
// when one exists.
func loadEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
