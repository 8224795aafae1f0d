package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"personad/internal/common/fsutil"
	"personad/internal/config"
)

// cliOptions are the persistent flags shared by every subcommand.
type cliOptions struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	addr        string
	adaptersDir string
	baseModel   string
}

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	opts cliOptions
	cfg  config.Config
	log  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "personad",
		Short:         "Persona chat server with hot-swapped LoRA adapters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", os.Getenv("PERSONAD_CONFIG"), "Config file (.yaml, .json or .toml)")
	f.StringVar(&a.opts.envFile, "env-file", ".env", "Dotenv file loaded before the config; missing is fine unless set explicitly")
	f.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	f.StringVar(&a.opts.logFormat, "log-format", "", "Log format: console|json (overrides config)")
	f.StringVar(&a.opts.addr, "addr", "", "HTTP listen address, e.g. :8000 (overrides config)")
	f.StringVar(&a.opts.adaptersDir, "adapters-dir", "", "Adapters root directory (overrides config)")
	f.StringVar(&a.opts.baseModel, "base-model", "", "Full-precision base model GGUF (overrides config)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), a)
			},
		},
		newAdaptersCmd(a),
		newDoctorCmd(a),
	)
	return root
}

// setup loads the env file, the config file and flag overrides, then
// installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := loadEnvFile(a.opts.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}
	path := a.opts.configPath
	if path == "" {
		path = os.Getenv("PERSONAD_CONFIG")
	}
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	a.opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	zlog.Logger = a.log
	return nil
}

func (o cliOptions) apply(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.adaptersDir != "" {
		cfg.AdaptersDir = o.adaptersDir
	}
	if o.baseModel != "" {
		cfg.Engine.BaseModel = o.baseModel
	}
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is only an error when the path was given explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	p, err := fsutil.Resolve(path)
	if err != nil {
		return err
	}
	if !fsutil.IsFile(p) {
		if explicit {
			return fmt.Errorf("env file not found: %s", p)
		}
		return nil
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("load env file %s: %w", p, err)
	}
	return nil
}

func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(format, "json") {
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}
