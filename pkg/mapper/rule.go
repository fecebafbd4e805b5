package mapper

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// Rule record fields.
const (
	FieldPassRange       = "PASS RANGE"
	FieldRuleDescription = "RULE DESCRIPTION"
	FieldExample         = "EXAMPLE"
	FieldRowsConsidered  = "ROWS CONSIDERED"
	FieldRowsPassed      = "ROWS PASSED"
	FieldRowsFailed      = "ROWS FAILED"
	FieldResult          = "RESULT"
	FieldLastValidated   = "LAST VALIDATED"
	FieldDimension       = "DIMENSION"
	FieldRule            = "RULE"
	FieldTags            = "TAGS"
	FieldStatus          = "STATUS"
)

var thresholdPattern = regexp.MustCompile(`(\d+)`)

// RuleMapper maps rule records to a metric asset placed on its column.
type RuleMapper struct {
	Settings  Settings
	Relations RelationTypes
	Resolver  *record.Resolver
	Logger    logr.Logger
}

var _ Mapper = (*RuleMapper)(nil)

// NewRuleMapper returns a RuleMapper.
func NewRuleMapper(s Settings, rt RelationTypes, r *record.Resolver, logger logr.Logger) *RuleMapper {
	return &RuleMapper{Settings: s, Relations: rt, Resolver: r, Logger: logger}
}

// Map builds, in dependency order, the server domain, the database, table
// and column assets, the metric asset and, when the record names them,
// the dimension and rule assets the metric points at.
func (m *RuleMapper) Map(rec record.Record) (catalog.Plan, error) {
	r := m.Resolver
	loc := location{
		server:   r.Resolve(rec, FieldServer),
		database: r.Resolve(rec, FieldDatabase),
		table:    r.Resolve(rec, FieldTable),
		column:   r.Resolve(rec, FieldColumn),
	}
	if err := loc.validate(FieldTable, FieldColumn); err != nil {
		return catalog.Plan{}, err
	}
	name := r.Resolve(rec, FieldName)
	if name == "" {
		return catalog.Plan{}, &FieldError{Field: FieldName}
	}

	plan := catalog.Plan{Key: name}
	col := m.Settings.physical(&plan, loc)
	columnRef := plan.Entities[col].Ref()

	community := m.Settings.CommunityName
	metric := catalog.NewAsset(community, m.Settings.GovernanceDomain, name, catalog.MetricType)
	status := r.Resolve(rec, FieldStatus)
	if status == "" {
		status = catalog.DefaultStatus
	}
	metric.SetStatus(status)
	metric.Tags = splitTags(r.Resolve(rec, FieldTags))
	m.attributes(&plan, &metric, rec)
	metric.AddRelation(catalog.MetricToColumnRelationID, catalog.Source, columnRef)

	var extra []catalog.ImportEntity
	if dim := r.Resolve(rec, FieldDimension); dim != "" {
		if m.Relations.DimensionToMetric == "" {
			plan.Warn("dimension %q skipped: no dimension relation type", dim)
		} else {
			d := catalog.NewAsset(DimensionCommunity, DimensionDomain, dim, catalog.DimensionType)
			plan.Add(
				catalog.NewCommunity(DimensionCommunity, ""),
				catalog.NewDomain(DimensionCommunity, DimensionDomain, catalog.GovernanceDomainType, ""),
			)
			extra = append(extra, d)
			metric.AddRelation(m.Relations.DimensionToMetric, catalog.Source, d.Ref())
		}
	}
	if rule := r.Resolve(rec, FieldRule); rule != "" {
		if m.Relations.RuleToMetric == "" {
			plan.Warn("rule %q skipped: no rule relation type", rule)
		} else {
			ra := catalog.NewAsset(community, m.Settings.RulebookDomain, rule, catalog.RuleType)
			extra = append(extra, ra)
			metric.AddRelation(m.Relations.RuleToMetric, catalog.Source, ra.Ref())
		}
	}

	plan.Add(extra...)
	plan.Add(metric)
	if len(plan.Warnings) > 0 {
		m.Logger.V(1).Info("rule mapped with omissions", "rule", name, "warnings", plan.Warnings)
	}
	return plan, nil
}

func (m *RuleMapper) attributes(plan *catalog.Plan, metric *catalog.ImportEntity, rec record.Record) {
	r := m.Resolver

	threshold, hasThreshold := 0.0, false
	if match := thresholdPattern.FindStringSubmatch(r.Resolve(rec, FieldPassRange)); match != nil {
		threshold, _ = strconv.ParseFloat(match[1], 64)
		hasThreshold = true
		metric.SetAttribute("Threshold", threshold)
	}
	if v := r.Resolve(rec, FieldRuleDescription); v != "" {
		metric.SetAttribute("Description", v)
	}
	if v := r.Resolve(rec, FieldExample); v != "" {
		metric.SetAttribute("Descriptive Example", v)
	}

	considered, hasConsidered := m.measure(plan, metric, rec, FieldRowsConsidered, "Loaded Rows")
	passed, hasPassed := m.measure(plan, metric, rec, FieldRowsPassed, "Rows Passed", "Conformity Score")
	m.measure(plan, metric, rec, FieldRowsFailed, "Rows Failed", "Non Conformity Score")

	fraction, hasFraction := 0.0, false
	if hasConsidered && hasPassed && considered != 0 {
		fraction, hasFraction = passed/considered*100, true
	}
	if hasFraction && !math.IsNaN(fraction) && !math.IsInf(fraction, 0) {
		metric.SetAttribute("Passing Fraction", fraction)
	} else {
		hasFraction = false
		plan.Warn("Passing Fraction omitted: rows considered is zero or missing")
	}

	switch result := r.Resolve(rec, FieldResult); {
	case result != "":
		metric.SetAttribute("Result", result == "Green")
	case hasFraction && hasThreshold:
		metric.SetAttribute("Result", fraction >= threshold)
	default:
		plan.Warn("Result omitted: no RESULT and no pass rate to compare with the threshold")
	}

	validated := r.Resolve(rec, FieldLastValidated)
	switch ms, ok, err := lastSyncDate(validated); {
	case err != nil:
		plan.Warn("Last Sync Date omitted: unrecognized %s %q", FieldLastValidated, validated)
	case ok:
		metric.SetAttribute("Last Sync Date", ms)
	}
}

// measure sets the numeric field on every named attribute. Non-numeric
// values are omitted with a warning.
func (m *RuleMapper) measure(plan *catalog.Plan, e *catalog.ImportEntity, rec record.Record, field string, attrs ...string) (float64, bool) {
	v, ok := m.Resolver.ResolveNumber(rec, field)
	if !ok {
		plan.Warn("%s omitted: %s is not a number", strings.Join(attrs, ", "), field)
		return 0, false
	}
	for _, a := range attrs {
		e.SetAttribute(a, v)
	}
	return v, true
}

// lastSyncDate returns the day of s at 00:00 UTC in epoch milliseconds.
// Empty and "None" report false without an error.
func lastSyncDate(s string) (int64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return 0, false, nil
	}
	t, err := config.ParseTime(s)
	if err != nil {
		return 0, false, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli(), true, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" && seen.Add(t) {
			tags = append(tags, t)
		}
	}
	return tags
}
