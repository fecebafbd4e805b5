package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/dqbridge/dq-connector/pkg/jobs"
	"github.com/dqbridge/dq-connector/pkg/mapper"
	"github.com/dqbridge/dq-connector/pkg/record"
	"github.com/dqbridge/dq-connector/pkg/source"
)

// Placeholder relation type ids used when planning without a catalog.
var planRelations = mapper.RelationTypes{DimensionToMetric: "DimensionToMetric", RuleToMetric: "RuleToMetric"}

type planOutput struct {
	Kind       string          `json:"kind"`
	Records    int             `json:"records"`
	Duplicates int             `json:"duplicates"`
	Domains    []string        `json:"domains"`
	Plans      []mapper.Mapped `json:"plans"`
	Errors     []string        `json:"errors,omitempty"`
}

func newPlanCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Map source records and print the import plans without writing to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				m     mapper.Mapper
				query string
			)
			settings := mapper.SettingsFromConfig(a.cfg.Collibra)
			switch kind {
			case jobs.KindRules:
				if err := a.cfg.RequireRuleQuery(); err != nil {
					return err
				}
				m = mapper.NewRuleMapper(settings, planRelations, a.resolver(), a.log.WithName("mapper"))
				query = a.cfg.RuleQuery
			case jobs.KindProfiles:
				if err := a.cfg.RequireProfileQuery(); err != nil {
					return err
				}
				m = mapper.NewProfileMapper(settings, a.resolver(), a.log.WithName("mapper"))
				query = a.cfg.ProfileQuery
			default:
				return fmt.Errorf("unknown kind %q (use %s or %s)", kind, jobs.KindRules, jobs.KindProfiles)
			}

			recs, err := a.source().Query(cmd.Context(), source.WithLastRun(query, a.cfg.LastRun))
			if err != nil {
				return err
			}
			recs = record.NormalizeAll(recs)
			mapped, mapErr := mapper.MapAll(m, recs)
			unique, dups := mapper.UniqueByKey(mapped)

			out := planOutput{
				Kind:       kind,
				Records:    len(recs),
				Duplicates: dups,
				Domains:    mapper.DistinctDomains(unique),
				Plans:      unique,
			}
			var merr *multierror.Error
			if errors.As(mapErr, &merr) {
				for _, e := range merr.Errors {
					out.Errors = append(out.Errors, e.Error())
				}
			}

			w := cmd.OutOrStdout()
			if a.output != "table" {
				if err := printStructured(w, a.output, out); err != nil {
					return err
				}
				return mapErr
			}
			rows := make([][]string, 0, len(unique))
			for _, p := range unique {
				rows = append(rows, []string{
					strconv.Itoa(p.Index), p.Plan.Key, strconv.Itoa(len(p.Plan.Entities)),
					truncate(strings.Join(p.Plan.Warnings, "; "), 80),
				})
			}
			printTable(w, []string{"record", "key", "entities", "warnings"}, rows)
			fmt.Fprintf(w, "\n%d records, %d plans, %d duplicates, domains: %s\n",
				len(recs), len(unique), dups, strings.Join(out.Domains, ", "))
			return mapErr
		},
	}
	cmd.Flags().StringVar(&kind, "kind", jobs.KindRules, "Records to plan: rules or profiles")
	return cmd
}
