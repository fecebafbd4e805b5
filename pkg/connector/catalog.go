package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/mapper"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// Catalog is the catalog adapter plus the session-level calls the target
// needs before mapping.
type Catalog interface {
	catalog.Adapter
	Authenticate(ctx context.Context) error
	GetOrCreateRelationType(ctx context.Context, args catalog.RelationTypeArgs) (string, error)
}

// CatalogOptions configures a CatalogTarget.
type CatalogOptions struct {
	Settings              mapper.Settings
	CommunityDescription  string
	GovernanceDescription string
	RulebookDescription   string
	// Mode is config.ModeImport or config.ModeREST.
	Mode string
	// NoDeletion keeps existing relations in REST mode.
	NoDeletion bool
	Resolver   *record.Resolver
	Logger     logr.Logger
}

// CatalogTarget writes mapped plans into the governance catalog, either
// as one import job per record or entity by entity over REST.
type CatalogTarget struct {
	catalog Catalog
	opts    CatalogOptions

	rules    *mapper.RuleMapper
	profiles *mapper.ProfileMapper
	seen     mapset.Set[string]
}

var _ ProfileTarget = (*CatalogTarget)(nil)

// NewCatalogTarget returns a target writing through c.
func NewCatalogTarget(c Catalog, opts CatalogOptions) *CatalogTarget {
	if opts.Mode == "" {
		opts.Mode = config.ModeImport
	}
	if opts.Resolver == nil {
		opts.Resolver = record.NewResolver("", opts.Logger)
	}
	return &CatalogTarget{catalog: c, opts: opts, seen: mapset.NewSet[string]()}
}

// Name implements Target.
func (t *CatalogTarget) Name() string { return "collibra" }

// Prepare authenticates, makes sure the community and the governance and
// rulebook domains exist, and resolves the custom relation types the rule
// mapper links metrics with.
func (t *CatalogTarget) Prepare(ctx context.Context) error {
	if err := t.catalog.Authenticate(ctx); err != nil {
		return err
	}

	s := t.opts.Settings
	containers := catalog.Plan{Key: "containers"}
	containers.Add(
		catalog.NewCommunity(s.CommunityName, t.opts.CommunityDescription),
		catalog.NewDomain(s.CommunityName, s.GovernanceDomain, catalog.GovernanceDomainType, t.opts.GovernanceDescription),
		catalog.NewDomain(s.CommunityName, s.RulebookDomain, catalog.RulebookType, t.opts.RulebookDescription),
	)
	if _, err := t.apply(ctx, containers); err != nil {
		return fmt.Errorf("create catalog containers: %w", err)
	}

	dim, err := t.catalog.GetOrCreateRelationType(ctx, catalog.DimensionToMetric)
	if err != nil {
		return fmt.Errorf("dimension relation type: %w", err)
	}
	rule, err := t.catalog.GetOrCreateRelationType(ctx, catalog.RuleToMetric)
	if err != nil {
		return fmt.Errorf("rule relation type: %w", err)
	}
	rt := mapper.RelationTypes{DimensionToMetric: dim, RuleToMetric: rule}
	t.opts.Logger.V(1).Info("resolved relation types", "dimensionToMetric", dim, "ruleToMetric", rule)

	t.rules = mapper.NewRuleMapper(s, rt, t.opts.Resolver, t.opts.Logger)
	t.profiles = mapper.NewProfileMapper(s, t.opts.Resolver, t.opts.Logger)
	return nil
}

// SyncRule maps a rule record and writes its plan.
func (t *CatalogTarget) SyncRule(ctx context.Context, rec record.Record) (Outcome, error) {
	if t.rules == nil {
		return Outcome{}, fmt.Errorf("%s target is not prepared", t.Name())
	}
	plan, err := t.rules.Map(rec)
	if err != nil {
		return Outcome{}, err
	}
	return t.apply(ctx, plan)
}

// SyncProfile maps a profile record and writes its plan. A profile for a
// column already written in this run is skipped; a failed write releases
// the column for later profiles.
func (t *CatalogTarget) SyncProfile(ctx context.Context, rec record.Record) (Outcome, error) {
	if t.profiles == nil {
		return Outcome{}, fmt.Errorf("%s target is not prepared", t.Name())
	}
	plan, err := t.profiles.Map(rec)
	if err != nil {
		return Outcome{}, err
	}
	if !t.seen.Add(plan.Key) {
		return Outcome{Key: plan.Key, Skipped: true, Reason: "duplicate profile for column"}, nil
	}
	out, err := t.apply(ctx, plan)
	if err != nil {
		t.seen.Remove(plan.Key)
	}
	return out, err
}

func (t *CatalogTarget) apply(ctx context.Context, plan catalog.Plan) (Outcome, error) {
	out := Outcome{Key: plan.Key, Warnings: plan.Warnings}
	if t.opts.Mode == config.ModeREST {
		return out, t.applyREST(ctx, plan)
	}

	res, err := t.catalog.SubmitBatch(ctx, plan.Entities)
	if err != nil {
		return out, err
	}
	out.Job = res
	if res != nil && res.Warning {
		out.Warnings = append(out.Warnings, res.Message)
	}
	return out, nil
}

func refKey(id catalog.Identifier) string {
	var b strings.Builder
	if id.Domain != nil {
		if id.Domain.Community != nil {
			b.WriteString(id.Domain.Community.Name)
		}
		b.WriteString("/")
		b.WriteString(id.Domain.Name)
	}
	b.WriteString("/")
	b.WriteString(id.Name)
	return b.String()
}

// applyREST upserts the plan entity by entity, then its relations with
// both ends resolved to the ids just written.
func (t *CatalogTarget) applyREST(ctx context.Context, plan catalog.Plan) error {
	ids := make(map[string]string, len(plan.Entities))
	for _, e := range plan.Entities {
		bare := e
		bare.Relations = nil
		id, err := t.catalog.UpsertEntity(ctx, bare)
		if err != nil {
			return fmt.Errorf("%s %q: %w", e.ResourceType, e.Identifier.Name, err)
		}
		if e.ResourceType == catalog.ResourceAsset {
			ids[refKey(e.Identifier)] = id
		}
	}

	for _, e := range plan.Entities {
		keys := make([]string, 0, len(e.Relations))
		for k := range e.Relations {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		self := ids[refKey(e.Identifier)]
		for _, k := range keys {
			typeID, dir, err := catalog.ParseRelationKey(k)
			if err != nil {
				return err
			}
			for _, ref := range e.Relations[k] {
				other, ok := ids[refKey(ref)]
				if !ok {
					return fmt.Errorf("relation %s of %q: %q is not part of the plan", k, e.Identifier.Name, ref.Name)
				}
				args := catalog.RelationArgs{RelationTypeID: typeID, NoDeletion: t.opts.NoDeletion}
				if dir == catalog.Target {
					args.SourceID, args.TargetID = self, other
				} else {
					args.SourceID, args.TargetID = other, self
				}
				if _, err := t.catalog.UpsertRelation(ctx, args); err != nil {
					return fmt.Errorf("relation %s of %q: %w", k, e.Identifier.Name, err)
				}
			}
		}
	}
	return nil
}
