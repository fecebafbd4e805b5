// Package record holds the flat rule and profile rows returned by the
// data-quality engine and the helpers that read fields out of them.
package record

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Record is one row returned by the ODBC query endpoint. Values are kept as
// the engine reports them; numeric columns arrive as their decimal text.
type Record map[string]string

// Get returns the value stored under key, or "" when absent.
func (r Record) Get(key string) string {
	return r[key]
}

// Has reports whether key is present with a non-empty value.
func (r Record) Has(key string) bool {
	return r[key] != ""
}

// FromJSON converts a decoded JSON row into a Record. Numbers are rendered
// without exponent, booleans as true/false and nulls as the empty string.
// Nested objects and arrays are kept as their compact JSON text.
func FromJSON(row map[string]any) Record {
	rec := make(Record, len(row))
	for k, v := range row {
		rec[k] = stringify(v)
	}
	return rec
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Normalize returns a copy of rec whose keys are upper-cased. When several
// keys collapse onto the same upper-case key, a key that was already upper
// case wins; otherwise the keys are applied in ascending byte order and the
// last one applied wins. Values are never modified.
func Normalize(rec Record) Record {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Record, len(rec))
	canonical := make(map[string]bool, len(rec))
	for _, k := range keys {
		upper := strings.ToUpper(k)
		if canonical[upper] {
			continue
		}
		out[upper] = rec[k]
		if k == upper {
			canonical[upper] = true
		}
	}
	return out
}

// NormalizeAll applies Normalize to every record.
func NormalizeAll(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Normalize(r)
	}
	return out
}
