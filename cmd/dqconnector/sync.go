package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/dqbridge/dq-connector/pkg/collibra"
	"github.com/dqbridge/dq-connector/pkg/connector"
	"github.com/dqbridge/dq-connector/pkg/data3sixty"
	"github.com/dqbridge/dq-connector/pkg/mapper"
	"github.com/dqbridge/dq-connector/pkg/source"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync rules, then profiles when a profile query is set, into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireCollibra(); err != nil {
				return err
			}
			if err := a.cfg.RequireRuleQuery(); err != nil {
				return err
			}
			return a.sync(cmd, a.collibraTarget(), func(ctx context.Context, c *connector.Connector) ([]*connector.RunSummary, error) {
				return c.Run(ctx)
			})
		},
	}
}

func newRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Sync validated rules into the catalog as data quality metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireCollibra(); err != nil {
				return err
			}
			if err := a.cfg.RequireRuleQuery(); err != nil {
				return err
			}
			return a.sync(cmd, a.collibraTarget(), prepared((*connector.Connector).SyncRules))
		},
	}
}

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Sync column profiles into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireCollibra(); err != nil {
				return err
			}
			if err := a.cfg.RequireProfileQuery(); err != nil {
				return err
			}
			return a.sync(cmd, a.collibraTarget(), prepared((*connector.Connector).SyncProfiles))
		},
	}
}

func newData3SixtyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "data3sixty",
		Short: "Push validated rule results to Data3Sixty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireData3Sixty(); err != nil {
				return err
			}
			d := a.cfg.Data3Sixty
			client := data3sixty.NewClient(d.URL, d.APIKey, d.APISecret, a.client, a.log.WithName("data3sixty"))
			target := data3sixty.NewTarget(client, d.FusionAttributeUID, a.log.WithName("data3sixty"))
			if a.cfg.RuleQuery == "" {
				a.cfg.RuleQuery = source.ValidatedRulesQuery
			}
			return a.sync(cmd, target, prepared((*connector.Connector).SyncRules))
		},
	}
}

type syncFunc func(ctx context.Context, c *connector.Connector) ([]*connector.RunSummary, error)

// prepared wraps a single-kind sync with the target preparation.
func prepared(fn func(*connector.Connector, context.Context) (*connector.RunSummary, error)) syncFunc {
	return func(ctx context.Context, c *connector.Connector) ([]*connector.RunSummary, error) {
		if err := c.Prepare(ctx); err != nil {
			return nil, err
		}
		s, err := fn(c, ctx)
		if s == nil {
			return nil, err
		}
		return []*connector.RunSummary{s}, err
	}
}

func (a *app) collibraTarget() *connector.CatalogTarget {
	c := a.cfg.Collibra
	adapter := collibra.NewAdapter(collibra.Options{
		BaseURL:      c.URL,
		Username:     c.Username,
		Password:     c.Password,
		HTTPClient:   a.client,
		Logger:       a.log.WithName("collibra"),
		PollInterval: c.PollInterval,
		MaxPolls:     c.MaxPolls,
	})
	return connector.NewCatalogTarget(adapter, connector.CatalogOptions{
		Settings:              mapper.SettingsFromConfig(c),
		CommunityDescription:  c.CommunityDescription,
		GovernanceDescription: c.GovernanceDescription,
		RulebookDescription:   c.RulebookDescription,
		Mode:                  c.SyncMode,
		NoDeletion:            c.NoDeletion,
		Resolver:              a.resolver(),
		Logger:                a.log.WithName("target"),
	})
}

func (a *app) sync(cmd *cobra.Command, target connector.Target, fn syncFunc) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := a.history()
	if err != nil {
		return err
	}
	c := connector.New(a.source(), target, connector.Options{
		Concurrency:   a.cfg.Concurrency,
		History:       history,
		Logger:        a.log.WithName("connector"),
		RuleQuery:     a.cfg.RuleQuery,
		ProfileQuery:  a.cfg.ProfileQuery,
		LastRun:       a.cfg.LastRun,
		RetentionDays: a.cfg.History.RetentionDays,
	})

	summaries, err := fn(ctx, c)
	if len(summaries) > 0 {
		if perr := a.printSummaries(cmd, summaries); perr != nil {
			err = multierror.Append(err, perr)
		}
	}
	return err
}

func (a *app) printSummaries(cmd *cobra.Command, summaries []*connector.RunSummary) error {
	w := cmd.OutOrStdout()
	if a.output != "table" {
		return printStructured(w, a.output, summaries)
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Kind, s.Target, strconv.Itoa(s.Total), strconv.Itoa(s.Succeeded), strconv.Itoa(s.Failed),
			strconv.Itoa(s.Skipped), strconv.Itoa(s.Warnings), s.Duration.Round(time.Millisecond).String(),
		})
	}
	printTable(w, []string{"kind", "target", "total", "succeeded", "failed", "skipped", "warnings", "duration"}, rows)
	for _, s := range summaries {
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %s %s\n", s.Kind, truncate(f.Error(), 200))
		}
	}
	return nil
}
