package collibra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dqbridge/dq-connector/pkg/catalog"
)

// Type kinds accepted by TypeID.
const (
	AssetTypes     = "assetTypes"
	DomainTypes    = "domainTypes"
	AttributeTypes = "attributeTypes"
	Statuses       = "statuses"
)

// Engine implements get-or-create for communities, domains, assets and
// relation types, and upserts for attributes and relations. Ids are cached
// in the session identity cache; concurrent lookups of the same key share
// one round trip. Upserts on the same attribute or relation key are
// serialized.
type Engine struct {
	s     *Session
	group singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an Engine bound to s. Well-known type ids are seeded
// into the session cache.
func NewEngine(s *Session) *Engine {
	c := s.Cache()
	c.PutTypeID(AssetTypes, catalog.MetricType, catalog.MetricAssetTypeID)
	c.PutTypeID(AssetTypes, catalog.DimensionType, catalog.DimensionAssetTypeID)
	c.PutTypeID(AssetTypes, catalog.RuleType, catalog.RuleAssetTypeID)
	c.PutTypeID(DomainTypes, catalog.GovernanceDomainType, catalog.GovernanceDomainTypeID)
	c.PutTypeID(DomainTypes, catalog.RulebookType, catalog.RulebookDomainTypeID)
	return &Engine{s: s, locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release.
func (e *Engine) lock(key string) func() {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type namedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// getOrCreate runs the shared lookup protocol: cache, then remote lookup,
// then create. The id returned is the one held by the cache.
func (e *Engine) getOrCreate(key string, cached func() (string, bool), lookup func() (string, bool, error),
	create func() (string, error), store func(id string) string) (string, error) {
	if id, ok := cached(); ok {
		return id, nil
	}
	v, err, _ := e.group.Do(key, func() (any, error) {
		if id, ok := cached(); ok {
			return id, nil
		}
		id, found, err := lookup()
		if err != nil {
			return "", err
		}
		if !found {
			if id, err = create(); err != nil {
				return "", err
			}
		}
		return store(id), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (e *Engine) first(ctx context.Context, path string, q url.Values) (string, bool, error) {
	var page paged[namedResource]
	if err := e.s.doJSON(ctx, catalog.OpLookup, http.MethodGet, path, q, nil, &page); err != nil {
		return "", false, err
	}
	if len(page.Results) == 0 {
		return "", false, nil
	}
	return page.Results[0].ID, true, nil
}

func (e *Engine) create(ctx context.Context, path string, body any) (string, error) {
	var created namedResource
	if err := e.s.doJSON(ctx, catalog.OpCreate, http.MethodPost, path, nil, body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("create %s: response carried no id", path)
	}
	return created.ID, nil
}

// GetOrCreateCommunity returns the id of the community named name,
// creating it when it does not exist.
func (e *Engine) GetOrCreateCommunity(ctx context.Context, name, description string) (string, error) {
	c := e.s.Cache()
	return e.getOrCreate("community/"+name,
		func() (string, bool) { return c.Community(name) },
		func() (string, bool, error) {
			return e.first(ctx, "/communities", url.Values{"name": {name}, "nameMatchMode": {"EXACT"}})
		},
		func() (string, error) {
			e.s.logger.Info("creating community", "name", name)
			return e.create(ctx, "/communities", map[string]string{"name": name, "description": description})
		},
		func(id string) string { return c.PutCommunity(name, id) },
	)
}

// GetOrCreateDomain returns the id of the domain name in communityID,
// creating it with typeID when it does not exist.
func (e *Engine) GetOrCreateDomain(ctx context.Context, communityID, name, typeID, description string) (string, error) {
	c := e.s.Cache()
	return e.getOrCreate("domain/"+communityID+"/"+name,
		func() (string, bool) { return c.Domain(communityID, name) },
		func() (string, bool, error) {
			return e.first(ctx, "/domains", url.Values{
				"name": {name}, "communityId": {communityID}, "nameMatchMode": {"EXACT"},
			})
		},
		func() (string, error) {
			if typeID == "" {
				return "", fmt.Errorf("domain %q not found and no domain type given", name)
			}
			e.s.logger.Info("creating domain", "name", name, "communityId", communityID)
			body := map[string]string{"name": name, "communityId": communityID, "typeId": typeID}
			if description != "" {
				body["description"] = description
			}
			return e.create(ctx, "/domains", body)
		},
		func(id string) string { return c.PutDomain(communityID, name, id) },
	)
}

// GetOrCreateAsset returns the id of the asset name in domainID, creating
// it with typeID when it does not exist.
func (e *Engine) GetOrCreateAsset(ctx context.Context, domainID, name, displayName, typeID string) (string, error) {
	c := e.s.Cache()
	return e.getOrCreate("asset/"+domainID+"/"+name,
		func() (string, bool) { return c.Asset(domainID, name) },
		func() (string, bool, error) {
			return e.first(ctx, "/assets", url.Values{
				"name": {name}, "domainId": {domainID}, "nameMatchMode": {"EXACT"},
			})
		},
		func() (string, error) {
			if typeID == "" {
				return "", fmt.Errorf("asset %q not found and no asset type given", name)
			}
			if displayName == "" {
				displayName = name
			}
			e.s.logger.V(1).Info("creating asset", "name", name, "domainId", domainID)
			return e.create(ctx, "/assets", map[string]string{
				"name": name, "displayName": displayName, "domainId": domainID, "typeId": typeID,
			})
		},
		func(id string) string { return c.PutAsset(domainID, name, id) },
	)
}

// GetOrCreateRelationType returns the id of the relation type with the
// given roles and endpoint types, creating it when needed. The id is
// memoized for the session.
func (e *Engine) GetOrCreateRelationType(ctx context.Context, args catalog.RelationTypeArgs) (string, error) {
	if args.CoRole == "" {
		return "", errors.New("relation type: co-role is not specified")
	}
	if args.Role == "" {
		return "", errors.New("relation type: role is not specified")
	}
	c := e.s.Cache()
	key := args.Key()
	return e.getOrCreate("relationType/"+key,
		func() (string, bool) { return c.RelationType(key) },
		func() (string, bool, error) {
			return e.first(ctx, "/relationTypes", url.Values{
				"coRole": {args.CoRole}, "role": {args.Role},
				"sourceTypeId": {args.SourceTypeID}, "targetTypeId": {args.TargetTypeID},
			})
		},
		func() (string, error) {
			e.s.logger.Info("creating relation type", "role", args.Role, "coRole", args.CoRole)
			body := map[string]string{
				"coRole": args.CoRole, "role": args.Role,
				"sourceTypeId": args.SourceTypeID, "targetTypeId": args.TargetTypeID,
			}
			if args.Description != "" {
				body["description"] = args.Description
			}
			return e.create(ctx, "/relationTypes", body)
		},
		func(id string) string { return c.PutRelationType(key, id) },
	)
}

// TypeID resolves a type or status name to its id. kind is one of
// AssetTypes, DomainTypes, AttributeTypes or Statuses.
func (e *Engine) TypeID(ctx context.Context, kind, name string) (string, error) {
	c := e.s.Cache()
	return e.getOrCreate("type/"+kind+"/"+name,
		func() (string, bool) { return c.TypeID(kind, name) },
		func() (string, bool, error) {
			return e.first(ctx, "/"+kind, url.Values{"name": {name}, "nameMatchMode": {"EXACT"}})
		},
		func() (string, error) {
			return "", fmt.Errorf("no %s named %q", kind, name)
		},
		func(id string) string { return c.PutTypeID(kind, name, id) },
	)
}

// UpsertAttribute replaces every attribute of typeID on assetID with a
// single attribute holding value.
func (e *Engine) UpsertAttribute(ctx context.Context, assetID, typeID string, value any) (catalog.Attribute, error) {
	defer e.lock("attribute/" + assetID + "/" + typeID)()

	var existing paged[catalog.Attribute]
	q := url.Values{"assetId": {assetID}, "typeIds": {typeID}}
	if err := e.s.doJSON(ctx, catalog.OpLookup, http.MethodGet, "/attributes", q, nil, &existing); err != nil {
		return catalog.Attribute{}, err
	}
	for _, a := range existing.Results {
		if err := e.s.doJSON(ctx, catalog.OpDelete, http.MethodDelete, "/attributes/"+url.PathEscape(a.ID), nil, nil, nil); err != nil {
			return catalog.Attribute{}, err
		}
	}

	var created catalog.Attribute
	body := map[string]any{"assetId": assetID, "typeId": typeID, "value": value}
	if err := e.s.doJSON(ctx, catalog.OpCreate, http.MethodPost, "/attributes", nil, body, &created); err != nil {
		return catalog.Attribute{}, err
	}
	return created, nil
}

// UpsertRelation ensures a relation of the given type between source and
// target exists. With NoDeletion an existing match is returned untouched;
// otherwise existing matches are deleted and the relation is recreated.
func (e *Engine) UpsertRelation(ctx context.Context, args catalog.RelationArgs) (catalog.Relation, error) {
	defer e.lock("relation/" + args.SourceID + "/" + args.TargetID + "/" + args.RelationTypeID)()

	var existing paged[catalog.Relation]
	q := url.Values{"sourceId": {args.SourceID}, "targetId": {args.TargetID}, "relationTypeId": {args.RelationTypeID}}
	if err := e.s.doJSON(ctx, catalog.OpLookup, http.MethodGet, "/relations", q, nil, &existing); err != nil {
		return catalog.Relation{}, err
	}
	if args.NoDeletion && len(existing.Results) > 0 {
		return existing.Results[0], nil
	}
	for _, r := range existing.Results {
		if err := e.s.doJSON(ctx, catalog.OpDelete, http.MethodDelete, "/relations/"+url.PathEscape(r.ID), nil, nil, nil); err != nil {
			return catalog.Relation{}, err
		}
	}

	start, end := args.Dates()
	body := map[string]any{
		"sourceId":     args.SourceID,
		"targetId":     args.TargetID,
		"typeId":       args.RelationTypeID,
		"startingDate": start,
		"endingDate":   end,
	}
	var created catalog.Relation
	if err := e.s.doJSON(ctx, catalog.OpCreate, http.MethodPost, "/relations", nil, body, &created); err != nil {
		return catalog.Relation{}, err
	}
	return created, nil
}

// SetStatus sets the status of an asset by status id.
func (e *Engine) SetStatus(ctx context.Context, assetID, statusID string) error {
	body := map[string]string{"id": assetID, "statusId": statusID}
	return e.s.doJSON(ctx, catalog.OpCreate, http.MethodPatch, "/assets/"+url.PathEscape(assetID), nil, body, nil)
}

// AddTags attaches tags to an asset.
func (e *Engine) AddTags(ctx context.Context, assetID string, tags []string) error {
	body := map[string][]string{"tagNames": tags}
	return e.s.doJSON(ctx, catalog.OpCreate, http.MethodPost, "/assets/"+url.PathEscape(assetID)+"/tags", nil, body, nil)
}
