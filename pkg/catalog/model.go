// Package catalog defines the governance catalog data model shared by the
// mappers, the target adapters and the orchestration layer.
package catalog

import "time"

// Well-known catalog type identifiers.
const (
	GovernanceDomainTypeID = "00000000-0000-0000-0000-000000030003"
	RulebookDomainTypeID   = "00000000-0000-0000-0000-000000030023"

	DimensionAssetTypeID = "00000000-0000-0000-0000-000000031108"
	MetricAssetTypeID    = "00000000-0000-0000-0000-000000031107"
	RuleAssetTypeID      = "00000000-0000-0000-0000-000000031205"

	TableToDatabaseRelationID = "00000000-0000-0000-0000-000000007045"
	ColumnToTableRelationID   = "00000000-0000-0000-0000-000000007042"
	MetricToColumnRelationID  = "00000000-0000-0000-0000-000000007018"
)

// Well-known asset and domain type names used in import descriptors.
const (
	DatabaseType  = "Database"
	TableType     = "Table"
	ColumnType    = "Column"
	MetricType    = "Data Quality Metric"
	DimensionType = "Data Quality Dimension"
	RuleType      = "Data Quality Rule"

	DataAssetDomainType  = "Data Asset Domain"
	GovernanceDomainType = "Governance Asset Domain"
	RulebookType         = "Rulebook"

	DefaultStatus = "Candidate"
)

// Community is the top-level organizational container. Its name is the key.
type Community struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Domain lives inside one community and is keyed by (community, name).
type Domain struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Community   NodeRef `json:"community"`
	Type        NodeRef `json:"type"`
}

// Asset lives inside one domain and is keyed by (domain, name).
type Asset struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName,omitempty"`
	Domain      NodeRef `json:"domain"`
	Type        NodeRef `json:"type"`
}

// Attribute is a single-valued typed property of an asset.
type Attribute struct {
	ID    string  `json:"id"`
	Asset NodeRef `json:"asset"`
	Type  NodeRef `json:"type"`
	Value any     `json:"value"`
}

// Relation is a directed typed edge between two assets.
type Relation struct {
	ID           string  `json:"id"`
	Source       NodeRef `json:"source"`
	Target       NodeRef `json:"target"`
	Type         NodeRef `json:"type"`
	StartingDate int64   `json:"startingDate,omitempty"`
	EndingDate   int64   `json:"endingDate,omitempty"`
}

// RelationType is identified by its roles and endpoint asset types.
type RelationType struct {
	ID          string  `json:"id"`
	Role        string  `json:"role"`
	CoRole      string  `json:"coRole"`
	SourceType  NodeRef `json:"sourceType"`
	TargetType  NodeRef `json:"targetType"`
	Description string  `json:"description,omitempty"`
}

// NodeRef points at another catalog object by id and, when known, name.
type NodeRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// RelationTypeArgs is the natural key of a relation type.
type RelationTypeArgs struct {
	Role         string
	CoRole       string
	SourceTypeID string
	TargetTypeID string
	Description  string
}

// Key returns the cache key of the relation type.
func (a RelationTypeArgs) Key() string {
	return a.CoRole + "|" + a.Role + "|" + a.SourceTypeID + "|" + a.TargetTypeID
}

// DimensionToMetric and RuleToMetric are the custom relation types created
// when the catalog does not already know them.
var (
	DimensionToMetric = RelationTypeArgs{
		CoRole:       "is classified by",
		Role:         "classifies",
		SourceTypeID: DimensionAssetTypeID,
		TargetTypeID: MetricAssetTypeID,
		Description:  "Data quality dimension to metric",
	}
	RuleToMetric = RelationTypeArgs{
		CoRole:       "executes",
		Role:         "executed by",
		SourceTypeID: RuleAssetTypeID,
		TargetTypeID: MetricAssetTypeID,
		Description:  "Data quality rule to metric",
	}
)

// DefaultEndingDate is 9999-12-31T00:00:00Z in epoch milliseconds.
const DefaultEndingDate int64 = 253402214400000

// RelationArgs describes a relation to upsert.
type RelationArgs struct {
	SourceID       string
	TargetID       string
	RelationTypeID string
	StartingDate   *time.Time
	EndingDate     *time.Time
	// NoDeletion keeps an existing matching relation untouched.
	NoDeletion bool
}

// Dates returns the starting and ending dates in epoch milliseconds,
// defaulting to 0 and DefaultEndingDate.
func (a RelationArgs) Dates() (int64, int64) {
	start, end := int64(0), DefaultEndingDate
	if a.StartingDate != nil {
		start = a.StartingDate.UnixMilli()
	}
	if a.EndingDate != nil {
		end = a.EndingDate.UnixMilli()
	}
	return start, end
}
