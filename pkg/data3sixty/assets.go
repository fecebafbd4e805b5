package data3sixty

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// unquotedKey matches an object key written without quotes.
var unquotedKey = regexp.MustCompile(`([{,]\s*)(\w+)\s*:`)

type assetProperties struct {
	Instance string `json:"Instance"`
	Schema   string `json:"Schema"`
	Table    string `json:"Table"`
	Column   string `json:"Column"`
}

func parseProperties(s string) (assetProperties, error) {
	var p assetProperties
	if strings.TrimSpace(s) == "" {
		return p, errors.New("no properties")
	}
	fixed := unquotedKey.ReplaceAllString(s, `$1"$2":`)
	if err := json.Unmarshal([]byte(fixed), &p); err != nil {
		return p, fmt.Errorf("parse properties: %w", err)
	}
	return p, nil
}

// AssetMap resolves a lower-cased instance, schema, table and column to a
// technology asset uid.
type AssetMap map[string]string

func assetKey(instance, schema, table, column string) string {
	return strings.ToLower(strings.Join([]string{instance, schema, table, column}, "\x00"))
}

// NewAssetMap indexes items by their normalized location. Items without
// parseable properties are skipped and counted. A page without items is
// an error.
func NewAssetMap(items []TechnologyAsset) (AssetMap, int, error) {
	if len(items) == 0 {
		return nil, 0, errors.New("items were not found in response")
	}
	m := make(AssetMap, len(items))
	skipped := 0
	for _, item := range items {
		p, err := parseProperties(item.NormalizedAssetProperties)
		if err != nil || p.Column == "" {
			skipped++
			continue
		}
		m[assetKey(p.Instance, p.Schema, p.Table, p.Column)] = item.AssetUID
	}
	return m, skipped, nil
}

// Lookup returns the asset uid of a column. Matching ignores case.
func (m AssetMap) Lookup(instance, schema, table, column string) (string, bool) {
	uid, ok := m[assetKey(instance, schema, table, column)]
	return uid, ok
}
