package mapper

import (
	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// Profile record fields.
const (
	FieldProfileTable  = "TABLE EXTERNAL NAME"
	FieldProfileColumn = "EXTERNAL NAME"
)

// DataTypes translates profiled dominant data types to catalog data types.
var DataTypes = map[string]string{
	"Alphanumeric": "Text",
	"Integer":      "Whole Number",
	"Decimal":      "Decimal Number",
	"Date":         "Date Time",
}

// counts are numeric columns written only when non-zero.
var counts = []struct{ field, attr string }{
	{"ROW COUNT", "Row Count"},
	{"UNIQUE COUNT", "Number of distinct values"},
}

// statistics are copied verbatim when present.
var statistics = []struct{ field, attr string }{
	{"NATIVE TYPE", "Technical Data Type"},
	{"STANDARD DEVIATION OF VALUES", "Standard Deviation"},
	{"MOST COMMON VALUE", "Mode"},
	{"MINIMUM", "Minimum Value"},
	{"ALPHANUMERIC MIN LENGTH", "Minimum Text Length"},
	{"AVERAGE", "Mean"},
	{"MAXIMUM", "Maximum Value"},
	{"ALPHANUMERIC MAX LENGTH", "Maximum Text Length"},
	{"POSITION", "Column Position"},
	{"NAME", "Original Name"},
}

// ProfileMapper maps column profiles onto column asset attributes.
type ProfileMapper struct {
	Settings Settings
	Resolver *record.Resolver
	Logger   logr.Logger
}

var _ Mapper = (*ProfileMapper)(nil)

// NewProfileMapper returns a ProfileMapper.
func NewProfileMapper(s Settings, r *record.Resolver, logger logr.Logger) *ProfileMapper {
	return &ProfileMapper{Settings: s, Resolver: r, Logger: logger}
}

// Map builds the server domain and the database, table and column assets,
// with the profile statistics set on the column. Profile fields are read
// from their own columns only.
func (m *ProfileMapper) Map(rec record.Record) (catalog.Plan, error) {
	r := m.Resolver
	loc := location{
		server:   r.Column(rec, FieldServer),
		database: r.Column(rec, FieldDatabase),
		table:    r.Column(rec, FieldProfileTable),
		column:   r.Column(rec, FieldProfileColumn),
	}
	if err := loc.validate(FieldProfileTable, FieldProfileColumn); err != nil {
		return catalog.Plan{}, err
	}

	plan := catalog.Plan{Key: loc.key()}
	col := m.Settings.physical(&plan, loc)
	column := &plan.Entities[col]

	for _, c := range counts {
		if v, ok := parseNumber(rec[c.field]); ok && v != 0 {
			column.SetAttribute(c.attr, v)
		}
	}
	if v, ok := parseNumber(rec["BLANK COUNT"]); ok && v != 0 {
		column.SetAttribute("Empty Values Count", v)
	} else if v, ok := parseNumber(rec["NULL COUNT"]); ok && v != 0 {
		column.SetAttribute("Empty Values Count", v)
	}

	if dt := rec["DOMINANT DATATYPE"]; dt != "" {
		if mapped, ok := DataTypes[dt]; ok {
			column.SetAttribute("Data Type", mapped)
		} else {
			plan.Warn("Data Type omitted: no catalog type for %q", dt)
		}
	}
	for _, s := range statistics {
		if v := rec[s.field]; v != "" {
			column.SetAttribute(s.attr, v)
		}
	}
	if rec["KEY CHECK"] == "Key" {
		column.SetAttribute("Is Primary Key", true)
	}
	if rec["DOCUMENTED NULLABLE"] != "No" {
		column.SetAttribute("Is Nullable", true)
	}

	if len(plan.Warnings) > 0 {
		m.Logger.V(1).Info("profile mapped with omissions", "column", plan.Key, "warnings", plan.Warnings)
	}
	return plan, nil
}
