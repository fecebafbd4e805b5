package collibra

import (
	"context"
	"fmt"
	"sort"

	"github.com/dqbridge/dq-connector/pkg/catalog"
)

// Adapter exposes a session through the catalog.Adapter capability set.
type Adapter struct {
	session *Session
	engine  *Engine
	driver  *ImportDriver
}

var _ catalog.Adapter = (*Adapter)(nil)

// NewAdapter builds a session, engine and import driver from opts.
func NewAdapter(opts Options) *Adapter {
	s := NewSession(opts)
	return &Adapter{
		session: s,
		engine:  NewEngine(s),
		driver:  NewImportDriver(s, opts.PollInterval, opts.MaxPolls),
	}
}

// Session returns the underlying session.
func (a *Adapter) Session() *Session { return a.session }

// Engine returns the upsert engine.
func (a *Adapter) Engine() *Engine { return a.engine }

// Authenticate opens the catalog session.
func (a *Adapter) Authenticate(ctx context.Context) error {
	return a.session.Authenticate(ctx)
}

// GetOrCreateRelationType resolves a relation type id.
func (a *Adapter) GetOrCreateRelationType(ctx context.Context, args catalog.RelationTypeArgs) (string, error) {
	return a.engine.GetOrCreateRelationType(ctx, args)
}

// SubmitBatch imports entities as one job.
func (a *Adapter) SubmitBatch(ctx context.Context, entities []catalog.ImportEntity) (*catalog.JobResult, error) {
	return a.driver.ImportBatch(ctx, entities)
}

// UpsertRelation upserts one relation.
func (a *Adapter) UpsertRelation(ctx context.Context, args catalog.RelationArgs) (catalog.Relation, error) {
	return a.engine.UpsertRelation(ctx, args)
}

// UpsertEntity writes one descriptor through the REST API. Communities,
// domains and assets are found or created; asset attributes are replaced,
// the status is set and tags are added. Relations are left to the caller.
func (a *Adapter) UpsertEntity(ctx context.Context, e catalog.ImportEntity) (string, error) {
	switch e.ResourceType {
	case catalog.ResourceCommunity:
		return a.engine.GetOrCreateCommunity(ctx, e.Identifier.Name, e.Description)
	case catalog.ResourceDomain:
		return a.upsertDomain(ctx, e)
	case catalog.ResourceAsset:
		return a.upsertAsset(ctx, e)
	default:
		return "", fmt.Errorf("unsupported resource type %q", e.ResourceType)
	}
}

func (a *Adapter) upsertDomain(ctx context.Context, e catalog.ImportEntity) (string, error) {
	if e.Identifier.Community == nil {
		return "", fmt.Errorf("domain %q has no community", e.Identifier.Name)
	}
	communityID, err := a.engine.GetOrCreateCommunity(ctx, e.Identifier.Community.Name, "")
	if err != nil {
		return "", fmt.Errorf("community %q: %w", e.Identifier.Community.Name, err)
	}
	var typeID string
	if name := e.TypeName(); name != "" {
		if typeID, err = a.engine.TypeID(ctx, DomainTypes, name); err != nil {
			return "", err
		}
	}
	return a.engine.GetOrCreateDomain(ctx, communityID, e.Identifier.Name, typeID, e.Description)
}

// ResolveAsset returns the id of the asset identified by ref, creating its
// community when unknown. The domain must already exist.
func (a *Adapter) ResolveAsset(ctx context.Context, ref catalog.Identifier, typeName string) (string, error) {
	if ref.Domain == nil || ref.Domain.Community == nil {
		return "", fmt.Errorf("asset %q has no domain", ref.Name)
	}
	communityID, err := a.engine.GetOrCreateCommunity(ctx, ref.Domain.Community.Name, "")
	if err != nil {
		return "", fmt.Errorf("community %q: %w", ref.Domain.Community.Name, err)
	}
	domainID, err := a.engine.GetOrCreateDomain(ctx, communityID, ref.Domain.Name, "", "")
	if err != nil {
		return "", fmt.Errorf("domain %q: %w", ref.Domain.Name, err)
	}
	var typeID string
	if typeName != "" {
		if typeID, err = a.engine.TypeID(ctx, AssetTypes, typeName); err != nil {
			return "", err
		}
	}
	return a.engine.GetOrCreateAsset(ctx, domainID, ref.Name, ref.Name, typeID)
}

func (a *Adapter) upsertAsset(ctx context.Context, e catalog.ImportEntity) (string, error) {
	assetID, err := a.ResolveAsset(ctx, e.Identifier, e.TypeName())
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := e.Attributes[name]
		if len(values) == 0 {
			continue
		}
		typeID, err := a.engine.TypeID(ctx, AttributeTypes, name)
		if err != nil {
			return assetID, fmt.Errorf("attribute %q: %w", name, err)
		}
		if _, err := a.engine.UpsertAttribute(ctx, assetID, typeID, values[0].Value); err != nil {
			return assetID, fmt.Errorf("attribute %q: %w", name, err)
		}
	}

	if e.Status != nil && e.Status.Name != "" {
		statusID, err := a.engine.TypeID(ctx, Statuses, e.Status.Name)
		if err != nil {
			return assetID, err
		}
		if err := a.engine.SetStatus(ctx, assetID, statusID); err != nil {
			return assetID, fmt.Errorf("status %q: %w", e.Status.Name, err)
		}
	}
	if len(e.Tags) > 0 {
		if err := a.engine.AddTags(ctx, assetID, e.Tags); err != nil {
			return assetID, fmt.Errorf("tags: %w", err)
		}
	}
	return assetID, nil
}
