package catalog

import (
	"fmt"
	"strings"
)

// ResourceType is the kind of object an import descriptor creates.
type ResourceType string

const (
	ResourceCommunity ResourceType = "Community"
	ResourceDomain    ResourceType = "Domain"
	ResourceAsset     ResourceType = "Asset"
)

// Direction tells which end of a relation the referenced asset occupies.
type Direction string

const (
	// Source: the referenced asset is the relation source.
	Source Direction = "SOURCE"
	// Target: the referenced asset is the relation target.
	Target Direction = "TARGET"
)

// NameRef references a type or status by name.
type NameRef struct {
	Name string `json:"name"`
}

// CommunityIdentifier identifies a community by name.
type CommunityIdentifier struct {
	Name string `json:"name"`
}

// DomainIdentifier identifies a domain by name within a community.
type DomainIdentifier struct {
	Name      string               `json:"name"`
	Community *CommunityIdentifier `json:"community,omitempty"`
}

// Identifier is the natural key of an imported resource. Assets carry a
// Domain, domains carry a Community, communities carry only a Name.
type Identifier struct {
	Name      string               `json:"name"`
	Domain    *DomainIdentifier    `json:"domain,omitempty"`
	Community *CommunityIdentifier `json:"community,omitempty"`
}

// AttributeValue is one value of an attribute in an import descriptor.
type AttributeValue struct {
	Value any `json:"value"`
}

// ImportEntity is one descriptor in a bulk import payload.
type ImportEntity struct {
	ResourceType ResourceType                `json:"resourceType"`
	Identifier   Identifier                  `json:"identifier"`
	Name         string                      `json:"name,omitempty"`
	DisplayName  string                      `json:"displayName,omitempty"`
	Description  string                      `json:"description,omitempty"`
	Type         *NameRef                    `json:"type,omitempty"`
	Domain       *DomainIdentifier           `json:"domain,omitempty"`
	Status       *NameRef                    `json:"status,omitempty"`
	Tags         []string                    `json:"tags,omitempty"`
	Attributes   map[string][]AttributeValue `json:"attributes,omitempty"`
	Relations    map[string][]Identifier     `json:"relations,omitempty"`
}

// NewCommunity describes a community.
func NewCommunity(name, description string) ImportEntity {
	return ImportEntity{
		ResourceType: ResourceCommunity,
		Identifier:   Identifier{Name: name},
		Description:  description,
	}
}

// NewDomain describes a domain of the given type name inside community.
func NewDomain(community, name, typeName, description string) ImportEntity {
	return ImportEntity{
		ResourceType: ResourceDomain,
		Identifier: Identifier{
			Name:      name,
			Community: &CommunityIdentifier{Name: community},
		},
		Type:        &NameRef{Name: typeName},
		Description: description,
	}
}

// NewAsset describes an asset of the given type name in domain.
func NewAsset(community, domain, name, typeName string) ImportEntity {
	d := &DomainIdentifier{Name: domain, Community: &CommunityIdentifier{Name: community}}
	return ImportEntity{
		ResourceType: ResourceAsset,
		Identifier:   Identifier{Name: name, Domain: d},
		Domain:       d,
		Name:         name,
		DisplayName:  name,
		Type:         &NameRef{Name: typeName},
	}
}

// AssetRef builds the identifier of an asset for use in relations.
func AssetRef(community, domain, name string) Identifier {
	return Identifier{
		Name:   name,
		Domain: &DomainIdentifier{Name: domain, Community: &CommunityIdentifier{Name: community}},
	}
}

// Ref returns the identifier other descriptors use to point at e.
func (e ImportEntity) Ref() Identifier {
	return e.Identifier
}

// TypeName returns the type name, or "" when unset.
func (e ImportEntity) TypeName() string {
	if e.Type == nil {
		return ""
	}
	return e.Type.Name
}

// SetAttribute replaces the values of the named attribute with v.
func (e *ImportEntity) SetAttribute(name string, v any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][]AttributeValue)
	}
	e.Attributes[name] = []AttributeValue{{Value: v}}
}

// AddRelation links e to ref through relation type typeID. dir tells
// which end of the relation ref occupies.
func (e *ImportEntity) AddRelation(typeID string, dir Direction, ref Identifier) {
	if e.Relations == nil {
		e.Relations = make(map[string][]Identifier)
	}
	key := RelationKey(typeID, dir)
	e.Relations[key] = append(e.Relations[key], ref)
}

// SetStatus sets the status by name.
func (e *ImportEntity) SetStatus(name string) {
	e.Status = &NameRef{Name: name}
}

// RelationKey renders the "<typeId>:<DIRECTION>" relations map key.
func RelationKey(typeID string, dir Direction) string {
	return typeID + ":" + string(dir)
}

// ParseRelationKey splits a relations map key.
func ParseRelationKey(key string) (string, Direction, error) {
	i := strings.LastIndex(key, ":")
	if i <= 0 {
		return "", "", fmt.Errorf("invalid relation key %q", key)
	}
	dir := Direction(key[i+1:])
	if dir != Source && dir != Target {
		return "", "", fmt.Errorf("invalid relation direction in %q", key)
	}
	return key[:i], dir, nil
}

// Plan is the ordered list of descriptors produced for one source record.
// Descriptors appear in dependency order: domains before the assets they
// contain, referenced assets before the assets that point at them.
type Plan struct {
	// Key identifies the source record in logs and run summaries.
	Key      string         `json:"key"`
	Entities []ImportEntity `json:"entities"`
	// Warnings lists attributes omitted because their value was undefined.
	Warnings []string `json:"warnings,omitempty"`
}

// Add appends descriptors to the plan.
func (p *Plan) Add(e ...ImportEntity) {
	p.Entities = append(p.Entities, e...)
}

// Warn records an omitted attribute.
func (p *Plan) Warn(format string, args ...any) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}

// Find returns the descriptor with the given resource type and name.
func (p *Plan) Find(rt ResourceType, name string) (*ImportEntity, bool) {
	for i := range p.Entities {
		if p.Entities[i].ResourceType == rt && p.Entities[i].Identifier.Name == name {
			return &p.Entities[i], true
		}
	}
	return nil, false
}
