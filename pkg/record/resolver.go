package record

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

const (
	// DefaultKeyField is the free-text column scanned for KEY=value pairs.
	DefaultKeyField = "DESCRIPTION"
	// ServerField names the column that identifies the source server.
	ServerField = "EXTERNAL SERVER"
)

// Resolver reads a logical field from a record, falling back to a
// "KEY=value;" annotation embedded in a free-text column when the field is
// not a column of its own.
type Resolver struct {
	// KeyField is the column holding the annotations. Empty means DESCRIPTION.
	KeyField string
	// MultiCommunity prefixes the server field with CommunityName so that
	// one catalog can hold the same server name under several communities.
	MultiCommunity bool
	CommunityName  string

	Logger logr.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewResolver returns a Resolver scanning keyField (DESCRIPTION when empty).
func NewResolver(keyField string, logger logr.Logger) *Resolver {
	return &Resolver{KeyField: keyField, Logger: logger}
}

// Resolve returns the value of field in rec. It never fails: when the field
// is neither a non-empty column nor present as an annotation, "" is
// returned.
func (r *Resolver) Resolve(rec Record, field string) string {
	if v := rec[field]; v != "" {
		if r.MultiCommunity && field == ServerField {
			return r.CommunityName + "." + v
		}
		return v
	}

	keyField := r.KeyField
	if keyField == "" {
		keyField = DefaultKeyField
	}
	text := rec[keyField]
	if text == "" {
		return ""
	}

	m := r.pattern(field).FindStringSubmatch(text)
	if m == nil {
		r.Logger.V(1).Info("no annotation for field", "field", field, "keyField", keyField)
		return ""
	}
	r.Logger.V(1).Info("matched annotation", "field", field, "value", m[1])
	return m[1]
}

// Column returns the column value of field without the annotation
// fallback. The multi-community server prefix still applies.
func (r *Resolver) Column(rec Record, field string) string {
	v := rec[field]
	if v != "" && r.MultiCommunity && field == ServerField {
		return r.CommunityName + "." + v
	}
	return v
}

// ResolveNumber resolves field and parses it as a float. The boolean is
// false when the value is empty or not a number.
func (r *Resolver) ResolveNumber(rec Record, field string) (float64, bool) {
	v := strings.TrimSpace(r.Resolve(rec, field))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (r *Resolver) pattern(field string) *regexp.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.patterns == nil {
		r.patterns = make(map[string]*regexp.Regexp)
	}
	if re, ok := r.patterns[field]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\w])` + regexp.QuoteMeta(field) + `=([^;]*)`)
	r.patterns[field] = re
	return re
}
