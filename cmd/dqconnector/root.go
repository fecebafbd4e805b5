package main

import (
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/jobs"
	"github.com/dqbridge/dq-connector/pkg/logging"
	"github.com/dqbridge/dq-connector/pkg/record"
	"github.com/dqbridge/dq-connector/pkg/source"
)

// app is the state shared by every subcommand once the configuration
// has been loaded.
type app struct {
	envFile string
	output  string

	v      *viper.Viper
	cfg    *config.Config
	level  logging.Level
	log    logr.Logger
	zap    *zap.Logger
	client *http.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dqconnector",
		Short: "Synchronize data quality results into governance catalogs",
		Long: `dqconnector reads validated rules and column profiles from the data quality
engine's HTTP ODBC endpoint and writes them to the governance catalog as
communities, domains, assets, attributes and relations.

Configuration is read from the environment, optionally seeded from a .env
file. Flags override both.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Path to a KEY=value file read before the environment")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format: table, json, yaml")
	root.PersistentFlags().String("debug-level", "", "Log level: none, fatal, error, warning, info, debug (overrides "+config.DebugLevel+")")
	root.PersistentFlags().Int("concurrency", 0, "Records synced at once (overrides "+config.Concurrency+")")

	root.AddCommand(
		newRunCmd(a),
		newRulesCmd(a),
		newProfilesCmd(a),
		newData3SixtyCmd(a),
		newPlanCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewViper(a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if f := flags.Lookup("debug-level"); f != nil && f.Changed {
		if err := v.BindPFlag(config.DebugLevel, f); err != nil {
			return err
		}
	}
	if f := flags.Lookup("concurrency"); f != nil && f.Changed {
		if err := v.BindPFlag(config.Concurrency, f); err != nil {
			return err
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.DebugLevel)
	if err != nil {
		return &config.ConfigurationError{Invalid: map[string]string{config.DebugLevel: err.Error()}}
	}
	log, zl, err := logging.New(level)
	if err != nil {
		return err
	}

	switch a.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", a.output)
	}

	a.v, a.cfg, a.level, a.log, a.zap = v, cfg, level, log, zl
	a.client = &http.Client{Timeout: cfg.HTTPTimeout}
	return nil
}

func (a *app) resolver() *record.Resolver {
	r := record.NewResolver(a.cfg.Collibra.AttributeKey, a.log.WithName("resolver"))
	r.MultiCommunity = a.cfg.Collibra.MultiCommunity
	r.CommunityName = a.cfg.Collibra.CommunityName
	return r
}

func (a *app) source() *source.Client {
	return source.NewClient(a.cfg.ODBCURL, a.client, a.log.WithName("source"))
}

// gormLevel maps the debug level onto the gorm logger.
func gormLevel(l logging.Level) logger.LogLevel {
	switch {
	case l >= logging.LevelDebug:
		return logger.Info
	case l >= logging.LevelWarning:
		return logger.Warn
	case l >= logging.LevelFatal:
		return logger.Error
	default:
		return logger.Silent
	}
}

// history opens the run store, or returns nil when history is disabled.
func (a *app) history() (*jobs.RunStore, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	return jobs.Open(a.cfg.History.DBType, a.cfg.History.DSN, gormLevel(a.level))
}
