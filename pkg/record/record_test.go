package record

import (
	"encoding/json"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Record
		want Record
	}{
		{
			name: "upper-cases keys",
			in:   Record{"external_server": "srv1", "Rows Passed": "80"},
			want: Record{"EXTERNAL_SERVER": "srv1", "ROWS PASSED": "80"},
		},
		{
			name: "canonical key wins over mixed case",
			in:   Record{"Name": "mixed", "NAME": "canonical", "name": "lower"},
			want: Record{"NAME": "canonical"},
		},
		{
			name: "last key in byte order wins without canonical key",
			in:   Record{"external_name": "x", "External_Name": "y"},
			want: Record{"EXTERNAL_NAME": "x"},
		},
		{
			name: "empty record",
			in:   Record{},
			want: Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := Record{"name": "a"}
	_ = Normalize(in)
	assert.Equal(t, Record{"name": "a"}, in)
}

func TestNormalizeAll(t *testing.T) {
	out := NormalizeAll([]Record{{"a": "1"}, {"b": "2"}})
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0]["A"])
	assert.Equal(t, "2", out[1]["B"])
}

func TestFromJSON(t *testing.T) {
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"ROWS PASSED": 80,
		"RATIO": 0.25,
		"BIG": 12345678901,
		"FLAG": true,
		"EMPTY": null,
		"NAME": "metric",
		"NESTED": {"a": 1}
	}`), &row))

	rec := FromJSON(row)
	assert.Equal(t, "80", rec["ROWS PASSED"])
	assert.Equal(t, "0.25", rec["RATIO"])
	assert.Equal(t, "12345678901", rec["BIG"])
	assert.Equal(t, "true", rec["FLAG"])
	assert.Equal(t, "", rec["EMPTY"])
	assert.Equal(t, "metric", rec["NAME"])
	assert.Equal(t, `{"a":1}`, rec["NESTED"])
}

func TestResolver(t *testing.T) {
	tests := []struct {
		name     string
		resolver *Resolver
		rec      Record
		field    string
		want     string
	}{
		{
			name:     "direct column",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"EXTERNAL DATABASE": "db1"},
			field:    "EXTERNAL DATABASE",
			want:     "db1",
		},
		{
			name:     "annotation fallback",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"DESCRIPTION": "rule=Foo;status=Approved;"},
			field:    "RULE",
			want:     "Foo",
		},
		{
			name:     "annotation without trailing semicolon",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"DESCRIPTION": "dimension=Completeness"},
			field:    "DIMENSION",
			want:     "Completeness",
		},
		{
			name:     "empty column falls back to annotation",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"STATUS": "", "DESCRIPTION": "status=Approved;"},
			field:    "STATUS",
			want:     "Approved",
		},
		{
			name:     "first occurrence wins",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"DESCRIPTION": "tags=a,b;tags=c;"},
			field:    "TAGS",
			want:     "a,b",
		},
		{
			name:     "key must not be a suffix of another word",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"DESCRIPTION": "dq_rule=Bar;"},
			field:    "RULE",
			want:     "",
		},
		{
			name:     "missing everywhere",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"DESCRIPTION": "nothing here"},
			field:    "RULE",
			want:     "",
		},
		{
			name:     "no description column",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{},
			field:    "RULE",
			want:     "",
		},
		{
			name:     "custom key field",
			resolver: NewResolver("NOTES", logr.Discard()),
			rec:      Record{"NOTES": "rule=FromNotes;", "DESCRIPTION": "rule=FromDescription;"},
			field:    "RULE",
			want:     "FromNotes",
		},
		{
			name:     "regex metacharacters in field name",
			resolver: NewResolver("", logr.Discard()),
			rec:      Record{"DESCRIPTION": "a.b=1;"},
			field:    "A.B",
			want:     "1",
		},
		{
			name:     "multi community prefixes server",
			resolver: &Resolver{MultiCommunity: true, CommunityName: "Finance"},
			rec:      Record{ServerField: "srv1"},
			field:    ServerField,
			want:     "Finance.srv1",
		},
		{
			name:     "multi community leaves other fields",
			resolver: &Resolver{MultiCommunity: true, CommunityName: "Finance"},
			rec:      Record{"EXTERNAL DATABASE": "db1"},
			field:    "EXTERNAL DATABASE",
			want:     "db1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resolver.Resolve(tt.rec, tt.field))
		})
	}
}

func TestResolveNumber(t *testing.T) {
	r := NewResolver("", logr.Discard())
	rec := Record{"ROWS PASSED": "80", "ROWS FAILED": "n/a", "DESCRIPTION": "rows considered= 100 ;"}

	v, ok := r.ResolveNumber(rec, "ROWS PASSED")
	require.True(t, ok)
	assert.Equal(t, 80.0, v)

	_, ok = r.ResolveNumber(rec, "ROWS FAILED")
	assert.False(t, ok)

	v, ok = r.ResolveNumber(rec, "ROWS CONSIDERED")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	_, ok = r.ResolveNumber(rec, "MISSING")
	assert.False(t, ok)
}

func TestResolverColumn(t *testing.T) {
	r := NewResolver("", logr.Discard())
	rec := Record{ServerField: "srv1", "ROW COUNT": "", "DESCRIPTION": "ROW COUNT=12;"}

	assert.Equal(t, "srv1", r.Column(rec, ServerField))
	assert.Empty(t, r.Column(rec, "ROW COUNT"), "annotations are not consulted")

	r.MultiCommunity = true
	r.CommunityName = "Finance"
	assert.Equal(t, "Finance.srv1", r.Column(rec, ServerField))
	assert.Empty(t, r.Column(Record{}, ServerField))
}
