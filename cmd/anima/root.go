package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Anima/common/environment"
	"github.com/bdobrica/Anima/common/trace"
	"github.com/bdobrica/Anima/common/version"
	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/observability"
)

// cli carries the resolved configuration and service options to every
// subcommand.
type cli struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg     app.Config
	svcOpts []app.Option
}

// newRootCmd builds the command tree. svcOpts are passed to every app.New,
// which lets tests substitute the models.
func newRootCmd(svcOpts ...app.Option) *cobra.Command {
	c := &cli{svcOpts: svcOpts}

	cmd := &cobra.Command{
		Use:           "anima",
		Short:         "Anima, a local AI companion with long-term memory",
		Long:          "anima chats through a local model, remembers what you tell it and\nconsolidates those memories into a profile while it sleeps.",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	f := cmd.PersistentFlags()
	f.StringVarP(&c.configPath, "config", "c", "", "YAML config file (env: ANIMA_CONFIG)")
	f.StringVar(&c.dbPath, "db", "", "SQLite database path (env: ANIMA_DB_PATH)")
	f.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (env: ANIMA_LOG_LEVEL)")
	f.StringVar(&c.logFormat, "log-format", "", "text or json (env: ANIMA_LOG_FORMAT)")

	cmd.AddCommand(
		newServeCmd(c),
		newChatCmd(c),
		newHistoryCmd(c),
		newSleepCmd(c),
		newMemoriesCmd(c),
		newProfileCmd(c),
		newConfigCmd(c),
		newExportCmd(c),
		newResetCmd(c),
		newVersionCmd(),
	)
	return cmd
}

// load resolves the configuration: flags over env over file over defaults.
func (c *cli) load(cmd *cobra.Command) error {
	path := c.configPath
	if path == "" {
		path = envConfigPath()
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DatabasePath = c.dbPath
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	c.cfg = cfg

	observability.Setup(cfg.LogLevel, cfg.LogFormat)
	cmd.SetContext(trace.Ensure(cmd.Context()))
	slog.Debug("anima: config loaded", "file", path, "db", cfg.DatabasePath, "embedder", cfg.Embedder, "index", cfg.Index)
	return nil
}

// openService opens the brain. With models it also loads the chat and
// embedding models and fails if they cannot be loaded.
func (c *cli) openService(cmd *cobra.Command, models bool) (*app.Service, error) {
	ctx := cmd.Context()
	opts := append([]app.Option{app.WithLogger(observability.WithTrace(ctx, nil))}, c.svcOpts...)
	svc, err := app.New(ctx, c.cfg, opts...)
	if err != nil {
		return nil, err
	}
	if models {
		if err := svc.Init(ctx); err != nil {
			svc.Close()
			return nil, fmt.Errorf("%s (%w)", app.UserMessage(err), err)
		}
	}
	return svc, nil
}

func envConfigPath() string {
	return environment.Prefix(app.EnvPrefix).StringOr("CONFIG", "")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
