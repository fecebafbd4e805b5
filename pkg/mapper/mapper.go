// Package mapper turns normalized source records into catalog import plans.
package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// Source columns read by the mappers.
const (
	FieldServer   = record.ServerField
	FieldDatabase = "EXTERNAL DATABASE"
	FieldTable    = "EXTERNAL TABLE NAME"
	FieldColumn   = "EXTERNAL COLUMN NAME"
	FieldName     = "NAME"
)

// Dimension assets live in a fixed community and domain.
const (
	DimensionCommunity = "Data Governance Council"
	DimensionDomain    = "Data Quality Dimensions"
)

// Settings names the catalog containers plans are written into.
type Settings struct {
	CommunityName        string
	GovernanceDomain     string
	RulebookDomain       string
	DataAssetDomainType  string
	DataAssetDescription string
}

// SettingsFromConfig copies the container names out of cfg.
func SettingsFromConfig(cfg config.Collibra) Settings {
	return Settings{
		CommunityName:        cfg.CommunityName,
		GovernanceDomain:     cfg.GovernanceName,
		RulebookDomain:       cfg.RulebookName,
		DataAssetDomainType:  cfg.DataAssetName,
		DataAssetDescription: cfg.DataAssetDescription,
	}
}

// RelationTypes holds the ids of the custom relation types resolved at
// startup.
type RelationTypes struct {
	DimensionToMetric string
	RuleToMetric      string
}

// Mapper builds the plan for one record.
type Mapper interface {
	Map(rec record.Record) (catalog.Plan, error)
}

// FieldError reports a record missing a field the plan cannot do without.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("record has no value for %q", e.Field)
}

// Mapped pairs a record index with its plan.
type Mapped struct {
	Index int          `json:"index"`
	Plan  catalog.Plan `json:"plan"`
}

// MapAll maps every record. Records that fail are left out of the result
// and their errors are combined, each prefixed with the record index.
func MapAll(m Mapper, recs []record.Record) ([]Mapped, error) {
	var (
		out  []Mapped
		errs *multierror.Error
	)
	for i, rec := range recs {
		plan, err := m.Map(rec)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		out = append(out, Mapped{Index: i, Plan: plan})
	}
	return out, errs.ErrorOrNil()
}

// UniqueByKey drops plans whose key was already seen, keeping the first.
// It returns the kept plans and the number dropped.
func UniqueByKey(plans []Mapped) ([]Mapped, int) {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := plans[:0:0]
	for _, p := range plans {
		if seen.Add(p.Plan.Key) {
			out = append(out, p)
		}
	}
	return out, len(plans) - len(out)
}

// DistinctDomains lists, sorted, the domains the plans write into.
func DistinctDomains(plans []Mapped) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, p := range plans {
		for _, e := range p.Plan.Entities {
			if e.ResourceType == catalog.ResourceDomain {
				set.Add(e.Identifier.Name)
			}
		}
	}
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

// location is the server/database/table/column path shared by rules and
// profiles.
type location struct {
	server, database, table, column string
}

func (l location) key() string {
	return strings.Join([]string{l.server, l.database, l.table, l.column}, ".")
}

func (l location) validate(tableField, columnField string) error {
	for _, f := range []struct{ name, v string }{
		{FieldServer, l.server}, {FieldDatabase, l.database}, {tableField, l.table}, {columnField, l.column},
	} {
		if f.v == "" {
			return &FieldError{Field: f.name}
		}
	}
	return nil
}

// physical appends the server domain and the database, table and column
// assets. It returns the column descriptor's index in the plan.
func (s Settings) physical(p *catalog.Plan, loc location) int {
	community := s.CommunityName
	p.Add(catalog.NewDomain(community, loc.server, s.DataAssetDomainType, s.DataAssetDescription))

	db := catalog.NewAsset(community, loc.server, loc.database, catalog.DatabaseType)

	table := catalog.NewAsset(community, loc.server, loc.table, catalog.TableType)
	table.AddRelation(catalog.TableToDatabaseRelationID, catalog.Target, db.Ref())
	table.SetStatus(catalog.DefaultStatus)

	column := catalog.NewAsset(community, loc.server, loc.column, catalog.ColumnType)
	column.AddRelation(catalog.ColumnToTableRelationID, catalog.Target, table.Ref())
	column.SetStatus(catalog.DefaultStatus)

	p.Add(db, table, column)
	return len(p.Entities) - 1
}

func parseNumber(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
