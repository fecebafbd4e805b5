package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		name   string
		dbType string
		dsn    string
		check  func(t *testing.T, d gorm.Dialector)
		errMsg string
	}{
		{name: "sqlite", dbType: "sqlite", dsn: ":memory:", check: func(t *testing.T, d gorm.Dialector) {
			assert.Equal(t, "sqlite", d.Name())
		}},
		{name: "empty type defaults to sqlite", dbType: "", dsn: ":memory:", check: func(t *testing.T, d gorm.Dialector) {
			assert.Equal(t, "sqlite", d.Name())
		}},
		{name: "postgres key value", dbType: "postgres", dsn: "host=db user=dq dbname=dq", check: func(t *testing.T, d gorm.Dialector) {
			pd, ok := d.(*postgres.Dialector)
			require.True(t, ok)
			assert.Equal(t, "host=db user=dq dbname=dq", pd.DSN)
		}},
		{name: "postgres url", dbType: "POSTGRES", dsn: "postgres://dq:secret@db:5432/history?sslmode=disable", check: func(t *testing.T, d gorm.Dialector) {
			pd, ok := d.(*postgres.Dialector)
			require.True(t, ok)
			for _, part := range []string{"dbname=history", "host=db", "password=secret", "port=5432", "sslmode=disable", "user=dq"} {
				assert.Contains(t, pd.DSN, part)
			}
		}},
		{name: "mysql gets parseTime", dbType: "mysql", dsn: "dq:secret@tcp(db:3306)/history", check: func(t *testing.T, d gorm.Dialector) {
			md, ok := d.(*mysql.Dialector)
			require.True(t, ok)
			assert.Contains(t, md.DSN, "parseTime=true")
			assert.Contains(t, md.DSN, "tcp(db:3306)/history")
		}},
		{name: "invalid mysql dsn", dbType: "mysql", dsn: "not a dsn", errMsg: "parse mysql dsn"},
		{name: "unsupported", dbType: "oracle", dsn: "x", errMsg: `unsupported database type "oracle"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Dialector(tc.dbType, tc.dsn)
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			tc.check(t, d)
		})
	}
}

func TestOpenSQLite(t *testing.T) {
	store, err := Open(DBSQLite, ":memory:", logger.Silent)
	require.NoError(t, err)

	run, err := store.Start(KindProfiles, "collibra")
	require.NoError(t, err)
	got, err := store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func mockPostgresStore(t *testing.T) (*RunStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRunStore(db), mock
}

func TestPostgresLastSuccessfulRun(t *testing.T) {
	store, mock := mockPostgresStore(t)
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "sync_runs" WHERE .*ORDER BY started_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "target", "state", "started_at", "succeeded"}).
			AddRow("run-1", KindRules, "data3sixty", string(RunStateSucceeded), started, 4))

	last, ok, err := store.LastSuccessfulRun(KindRules, "data3sixty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(started))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryErrorIsWrapped(t *testing.T) {
	store, mock := mockPostgresStore(t)
	mock.ExpectQuery(`SELECT \* FROM "sync_runs"`).WillReturnError(errors.New("connection reset"))

	_, _, err := store.LastSuccessfulRun(KindRules, "collibra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last successful run: connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteOlderThan(t *testing.T) {
	store, mock := mockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "sync_runs" WHERE state IN`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := store.DeleteOlderThan(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
