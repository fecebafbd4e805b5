package data3sixty

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/connector"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// Rule columns read by the target.
const (
	FieldDatabase     = "EXTERNAL DATABASE"
	FieldSchema       = "EXTERNAL SCHEMA"
	FieldTable        = "EXTERNAL TABLE NAME"
	FieldColumn       = "EXTERNAL COLUMN NAME"
	FieldDescription  = "DESCRIPTION"
	FieldName         = "NAME"
	FieldRowsPassed   = "ROWS PASSED"
	FieldRowsFailed   = "ROWS FAILED"
	FieldLastValidate = "LAST VALIDATED"
)

var ruleUIDPattern = regexp.MustCompile(`.*ruleUid=([^;]+)`)

// Target posts rule results to Data3Sixty.
type Target struct {
	client    *Client
	fusionUID string
	logger    logr.Logger
	now       func() time.Time

	assets AssetMap
}

var _ connector.Target = (*Target)(nil)

// NewTarget creates a Target reading the technology assets that carry
// fusionAttributeUID.
func NewTarget(c *Client, fusionAttributeUID string, logger logr.Logger) *Target {
	return &Target{client: c, fusionUID: fusionAttributeUID, logger: logger, now: time.Now}
}

// Name implements connector.Target.
func (t *Target) Name() string { return "data3sixty" }

// Prepare loads the technology asset map.
func (t *Target) Prepare(ctx context.Context) error {
	page, err := t.client.Assets(ctx, t.fusionUID)
	if err != nil {
		return fmt.Errorf("retrieve assets: %w", err)
	}
	m, skipped, err := NewAssetMap(page.Items)
	if err != nil {
		return err
	}
	if skipped > 0 {
		t.logger.Info("technology assets without a column location were ignored", "skipped", skipped)
	}
	t.logger.V(1).Info("loaded technology assets", "assets", len(m))
	t.assets = m
	return nil
}

// SyncRule posts the result of one rule. Rules whose column has no
// technology asset, or whose description has no ruleUid, are skipped.
func (t *Target) SyncRule(ctx context.Context, rec record.Record) (connector.Outcome, error) {
	if t.assets == nil {
		return connector.Outcome{}, fmt.Errorf("%s target is not prepared", t.Name())
	}
	out := connector.Outcome{Key: rec.Get(FieldName)}

	db, schema, table, column := rec.Get(FieldDatabase), rec.Get(FieldSchema), rec.Get(FieldTable), rec.Get(FieldColumn)
	uid, ok := t.assets.Lookup(db, schema, table, column)
	if !ok {
		out.Skipped = true
		out.Reason = fmt.Sprintf("no technology asset for %s.%s.%s.%s", db, schema, table, column)
		return out, nil
	}
	m := ruleUIDPattern.FindStringSubmatch(rec.Get(FieldDescription))
	if m == nil {
		out.Skipped = true
		out.Reason = "no ruleUid in description"
		return out, nil
	}
	ruleUID := strings.TrimSpace(m[1])

	effective, err := config.ParseTime(rec.Get(FieldLastValidate))
	if err != nil {
		return out, fmt.Errorf("%s: %w", FieldLastValidate, err)
	}
	value := ResultValue{
		EffectiveDate: effective.UTC().Format(time.RFC3339Nano),
		RunDate:       t.now().UTC().Format(time.RFC3339Nano),
	}
	var warn []string
	value.PassCount, warn = count(rec, FieldRowsPassed, warn)
	value.FailCount, warn = count(rec, FieldRowsFailed, warn)
	out.Warnings = warn

	payload := ResultPayload{Results: []Result{{
		Result: value,
		AssetsMappings: []AssetMapping{{
			AssetPath: strings.Join([]string{db, schema, table, column}, "."),
			AssetUID:  uid,
		}},
	}}}
	if err := t.client.PostResults(ctx, ruleUID, payload); err != nil {
		return out, err
	}
	t.logger.V(1).Info("rule sent", "rule", out.Key, "ruleUid", ruleUID)
	return out, nil
}

func count(rec record.Record, field string, warn []string) (int64, []string) {
	v := strings.TrimSpace(rec.Get(field))
	if v == "" {
		return 0, append(warn, fmt.Sprintf("%s missing, sent as 0", field))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, append(warn, fmt.Sprintf("%s is not a number, sent as 0", field))
	}
	return int64(f), warn
}
