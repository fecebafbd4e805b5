package connector

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/collibra"
	"github.com/dqbridge/dq-connector/pkg/collibra/collibratest"
	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/mapper"
	"github.com/dqbridge/dq-connector/pkg/record"
)

var testSettings = mapper.Settings{
	CommunityName:        "DQ",
	GovernanceDomain:     "Data Quality Results",
	RulebookDomain:       "Data Quality Rules",
	DataAssetDomainType:  catalog.DataAssetDomainType,
	DataAssetDescription: "Assets from database",
}

func newCatalogTarget(t *testing.T, srv *collibratest.Server, mode string) *CatalogTarget {
	t.Helper()
	a := collibra.NewAdapter(collibra.Options{
		BaseURL:      srv.URL,
		Username:     "dq",
		Password:     "secret",
		Logger:       logr.Discard(),
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     10,
	})
	return NewCatalogTarget(a, CatalogOptions{
		Settings: testSettings,
		Mode:     mode,
		Logger:   logr.Discard(),
	})
}

func ruleRecord(name string) record.Record {
	return record.Record{
		"EXTERNAL SERVER":      "srv1",
		"EXTERNAL DATABASE":    "db1",
		"EXTERNAL TABLE NAME":  "tbl1",
		"EXTERNAL COLUMN NAME": "col1",
		"NAME":                 name,
		"ROWS PASSED":          "80",
		"ROWS CONSIDERED":      "100",
		"RESULT":               "Green",
		"DIMENSION":            "Completeness",
		"RULE":                 "not null",
	}
}

func profileRecord() record.Record {
	return record.Record{
		"EXTERNAL SERVER":     "srv1",
		"EXTERNAL DATABASE":   "db1",
		"TABLE EXTERNAL NAME": "tbl1",
		"EXTERNAL NAME":       "col1",
		"ROW COUNT":           "100",
	}
}

func assetID(t *testing.T, srv *collibratest.Server, name string) string {
	t.Helper()
	assets := srv.Objects("assets", map[string]any{"name": name})
	require.Lenf(t, assets, 1, "asset %q", name)
	return assets[0].ID
}

func TestCatalogTargetNotPrepared(t *testing.T) {
	target := newCatalogTarget(t, collibratest.New(t), config.ModeImport)
	_, err := target.SyncRule(context.Background(), ruleRecord("m1"))
	assert.EqualError(t, err, "collibra target is not prepared")
	_, err = target.SyncProfile(context.Background(), profileRecord())
	assert.EqualError(t, err, "collibra target is not prepared")
}

func TestCatalogTargetPrepareAuthFailure(t *testing.T) {
	srv := collibratest.New(t)
	srv.RejectAuth = true
	err := newCatalogTarget(t, srv, config.ModeImport).Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, catalog.IsAuthentication(err))
	assert.Empty(t, srv.Jobs())
}

func TestCatalogTargetImportMode(t *testing.T) {
	ctx := context.Background()
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeImport)
	require.NoError(t, target.Prepare(ctx))

	jobs := srv.Jobs()
	require.Len(t, jobs, 1, "containers are imported as one job")
	require.Len(t, jobs[0].Entities, 3)
	assert.Equal(t, catalog.ResourceCommunity, jobs[0].Entities[0].ResourceType)
	assert.Equal(t, "Data Quality Rules", jobs[0].Entities[2].Identifier.Name)
	assert.Len(t, srv.Objects("relationTypes", nil), 2)

	out, err := target.SyncRule(ctx, ruleRecord("m1"))
	require.NoError(t, err)
	assert.Equal(t, "m1", out.Key)
	require.NotNil(t, out.Job)
	assert.Equal(t, catalog.JobCompleted, out.Job.State)

	jobs = srv.Jobs()
	require.Len(t, jobs, 2)
	metric := jobs[1].Entities[len(jobs[1].Entities)-1]
	assert.Equal(t, "m1", metric.Identifier.Name)

	dimType := srv.Objects("relationTypes", map[string]any{"role": catalog.DimensionToMetric.Role})
	require.Len(t, dimType, 1)
	assert.Contains(t, metric.Relations, catalog.RelationKey(dimType[0].ID, catalog.Source))
}

func TestCatalogTargetImportWarning(t *testing.T) {
	ctx := context.Background()
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeImport)
	require.NoError(t, target.Prepare(ctx))

	srv.JobStates = []string{"CANCELED"}
	out, err := target.SyncRule(ctx, ruleRecord("m1"))
	require.NoError(t, err)
	require.NotNil(t, out.Job)
	assert.True(t, out.Job.Warning)
	assert.Contains(t, out.Warnings, out.Job.Message)

	srv.JobStates = []string{catalog.JobError}
	_, err = target.SyncRule(ctx, ruleRecord("m2"))
	require.Error(t, err)
	assert.True(t, catalog.IsJobFailure(err))
}

func TestCatalogTargetRESTMode(t *testing.T) {
	ctx := context.Background()
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeREST)
	require.NoError(t, target.Prepare(ctx))
	assert.Empty(t, srv.Jobs())
	require.Len(t, srv.Objects("domains", map[string]any{"name": "Data Quality Rules"}), 1)

	_, err := target.SyncRule(ctx, ruleRecord("m1"))
	require.NoError(t, err)

	db, table, column := assetID(t, srv, "db1"), assetID(t, srv, "tbl1"), assetID(t, srv, "col1")
	metric, dim, rule := assetID(t, srv, "m1"), assetID(t, srv, "Completeness"), assetID(t, srv, "not null")

	relation := func(source, target, typeID string) {
		t.Helper()
		rels := srv.Objects("relations", map[string]any{"sourceId": source, "targetId": target, "typeId": typeID})
		assert.Lenf(t, rels, 1, "relation %s -> %s", source, target)
	}
	relation(table, db, catalog.TableToDatabaseRelationID)
	relation(column, table, catalog.ColumnToTableRelationID)
	relation(column, metric, catalog.MetricToColumnRelationID)
	dimType := srv.Objects("relationTypes", map[string]any{"role": catalog.DimensionToMetric.Role})
	require.Len(t, dimType, 1)
	relation(dim, metric, dimType[0].ID)
	ruleType := srv.Objects("relationTypes", map[string]any{"role": catalog.RuleToMetric.Role})
	require.Len(t, ruleType, 1)
	relation(rule, metric, ruleType[0].ID)

	require.Len(t, srv.Objects("communities", map[string]any{"name": mapper.DimensionCommunity}), 1)
	assert.NotEmpty(t, srv.Objects("attributes", map[string]any{"assetId": metric}))

	// A second record on the same column reuses the physical assets and,
	// with NoDeletion off, recreates the relations.
	_, err = target.SyncRule(ctx, ruleRecord("m2"))
	require.NoError(t, err)
	assert.Equal(t, db, assetID(t, srv, "db1"))
	relation(table, db, catalog.TableToDatabaseRelationID)
	assert.Positive(t, srv.Calls("DELETE /rest/2.0/relations/{id}"))
}

func TestCatalogTargetRESTNoDeletion(t *testing.T) {
	ctx := context.Background()
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeREST)
	target.opts.NoDeletion = true
	require.NoError(t, target.Prepare(ctx))

	for _, name := range []string{"m1", "m2"} {
		_, err := target.SyncRule(ctx, ruleRecord(name))
		require.NoError(t, err)
	}
	assert.Zero(t, srv.Calls("DELETE /rest/2.0/relations/{id}"))
}

func TestCatalogTargetProfiles(t *testing.T) {
	ctx := context.Background()
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeImport)
	require.NoError(t, target.Prepare(ctx))

	out, err := target.SyncProfile(ctx, profileRecord())
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, "srv1.db1.tbl1.col1", out.Key)

	out, err = target.SyncProfile(ctx, profileRecord())
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Len(t, srv.Jobs(), 2)

	_, err = target.SyncProfile(ctx, record.Record{"EXTERNAL SERVER": "srv1"})
	var fe *mapper.FieldError
	require.ErrorAs(t, err, &fe)
}

func TestCatalogTargetProfileRetriedAfterFailure(t *testing.T) {
	ctx := context.Background()
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeImport)
	require.NoError(t, target.Prepare(ctx))

	srv.SetFailure("POST /rest/2.0/import/json-job", http.StatusInternalServerError)
	_, err := target.SyncProfile(ctx, profileRecord())
	require.Error(t, err)

	srv.SetFailure("POST /rest/2.0/import/json-job", 0)
	out, err := target.SyncProfile(ctx, profileRecord())
	require.NoError(t, err)
	assert.False(t, out.Skipped, "a failed column is not a duplicate")
	assert.Len(t, srv.Jobs(), 2)

	out, err = target.SyncProfile(ctx, profileRecord())
	require.NoError(t, err)
	assert.True(t, out.Skipped)
}

func TestConnectorRESTModeSharedTable(t *testing.T) {
	for _, noDeletion := range []bool{true, false} {
		t.Run(fmt.Sprintf("noDeletion=%v", noDeletion), func(t *testing.T) {
			srv := collibratest.New(t)
			target := newCatalogTarget(t, srv, config.ModeREST)
			target.opts.NoDeletion = noDeletion
			src := &fakeSource{records: []record.Record{
				ruleRecord("m1"), ruleRecord("m2"), ruleRecord("m3"), ruleRecord("m4"),
			}}
			c := New(src, target, Options{Concurrency: 4, Logger: logr.Discard(), RuleQuery: "q"})

			summaries, err := c.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 4, summaries[0].Succeeded)

			db, table, column := assetID(t, srv, "db1"), assetID(t, srv, "tbl1"), assetID(t, srv, "col1")
			assert.Len(t, srv.Objects("relations", map[string]any{
				"sourceId": table, "targetId": db, "typeId": catalog.TableToDatabaseRelationID,
			}), 1)
			assert.Len(t, srv.Objects("relations", map[string]any{
				"sourceId": column, "targetId": table, "typeId": catalog.ColumnToTableRelationID,
			}), 1)
		})
	}
}

func TestConnectorWithCatalogTarget(t *testing.T) {
	srv := collibratest.New(t)
	target := newCatalogTarget(t, srv, config.ModeImport)
	src := &fakeSource{records: []record.Record{
		ruleRecord("m1"),
		{"name": "orphan"},
		ruleRecord("m2"),
	}}
	c := New(src, target, Options{Concurrency: 2, Logger: logr.Discard(), RuleQuery: "q"})

	summaries, err := c.Run(context.Background())
	require.Error(t, err)
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, 1, s.Failures[0].Index)
	var fe *mapper.FieldError
	assert.ErrorAs(t, s.Failures[0].Err, &fe)
	assert.Len(t, srv.Jobs(), 3)
}
