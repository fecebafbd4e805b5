// Package cache provides the in-memory identity cache that maps catalog
// natural keys to the ids the catalog assigned to them during one run.
package cache

import (
	"sync"
)

type domainNode struct {
	id     string
	assets map[string]string
}

type communityNode struct {
	id      string
	domains map[string]*domainNode
}

// Identity is a thread-safe, write-once cache of community, domain and
// asset ids keyed community name → domain name → asset name. Once a key
// holds an id it is never overwritten for the life of the cache. Relation
// type ids and type-name lookups are memoized alongside.
type Identity struct {
	mu sync.RWMutex

	communities   map[string]*communityNode // by name
	communityByID map[string]*communityNode
	domainByID    map[string]*domainNode

	relationTypes map[string]string
	typeIDs       map[string]string
}

// NewIdentity creates an empty identity cache.
func NewIdentity() *Identity {
	return &Identity{
		communities:   make(map[string]*communityNode),
		communityByID: make(map[string]*communityNode),
		domainByID:    make(map[string]*domainNode),
		relationTypes: make(map[string]string),
		typeIDs:       make(map[string]string),
	}
}

// Community returns the id cached for the community name.
func (c *Identity) Community(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.communities[name]
	if !ok {
		return "", false
	}
	return n.id, true
}

// PutCommunity caches id for name and seeds an empty domain map. If name
// already holds an id, the stored id is kept and returned.
func (c *Identity) PutCommunity(name, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.communities[name]; ok {
		return n.id
	}
	n := c.communityByID[id]
	if n == nil {
		n = &communityNode{id: id, domains: make(map[string]*domainNode)}
		c.communityByID[id] = n
	}
	c.communities[name] = n
	return n.id
}

// Domain returns the id cached for the domain name within communityID.
func (c *Identity) Domain(communityID, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cn, ok := c.communityByID[communityID]
	if !ok {
		return "", false
	}
	d, ok := cn.domains[name]
	if !ok {
		return "", false
	}
	return d.id, true
}

// PutDomain caches id for the domain name within communityID and seeds an
// empty asset map. The first id stored for a key wins.
func (c *Identity) PutDomain(communityID, name, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cn := c.communityByID[communityID]
	if cn == nil {
		cn = &communityNode{id: communityID, domains: make(map[string]*domainNode)}
		c.communityByID[communityID] = cn
	}
	if d, ok := cn.domains[name]; ok {
		return d.id
	}
	d := c.domainByID[id]
	if d == nil {
		d = &domainNode{id: id, assets: make(map[string]string)}
		c.domainByID[id] = d
	}
	cn.domains[name] = d
	return d.id
}

// Asset returns the id cached for the asset name within domainID.
func (c *Identity) Asset(domainID, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.domainByID[domainID]
	if !ok {
		return "", false
	}
	id, ok := d.assets[name]
	return id, ok
}

// PutAsset caches id for the asset name within domainID. The first id
// stored for a key wins.
func (c *Identity) PutAsset(domainID, name, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.domainByID[domainID]
	if d == nil {
		d = &domainNode{id: domainID, assets: make(map[string]string)}
		c.domainByID[domainID] = d
	}
	if existing, ok := d.assets[name]; ok {
		return existing
	}
	d.assets[name] = id
	return id
}

// RelationType returns the relation type id memoized under key.
func (c *Identity) RelationType(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.relationTypes[key]
	return id, ok
}

// PutRelationType memoizes a relation type id. The first id wins.
func (c *Identity) PutRelationType(key, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.relationTypes[key]; ok {
		return existing
	}
	c.relationTypes[key] = id
	return id
}

// TypeID returns the id of the named type of the given kind
// (assetTypes, domainTypes, attributeTypes, statuses).
func (c *Identity) TypeID(kind, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.typeIDs[kind+"/"+name]
	return id, ok
}

// PutTypeID memoizes a type id. The first id wins.
func (c *Identity) PutTypeID(kind, name, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := kind + "/" + name
	if existing, ok := c.typeIDs[k]; ok {
		return existing
	}
	c.typeIDs[k] = id
	return id
}

// Stats reports the number of cached entries per level.
type Stats struct {
	Communities   int `json:"communities"`
	Domains       int `json:"domains"`
	Assets        int `json:"assets"`
	RelationTypes int `json:"relationTypes"`
	TypeIDs       int `json:"typeIds"`
}

// Stats returns the current entry counts.
func (c *Identity) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Communities:   len(c.communities),
		RelationTypes: len(c.relationTypes),
		TypeIDs:       len(c.typeIDs),
	}
	for _, cn := range c.communityByID {
		s.Domains += len(cn.domains)
	}
	for _, d := range c.domainByID {
		s.Assets += len(d.assets)
	}
	return s
}
