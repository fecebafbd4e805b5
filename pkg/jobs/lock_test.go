package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func fileStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := Open(DBSQLite, filepath.Join(t.TempDir(), "runs.db"), logger.Silent)
	require.NoError(t, err)
	return store
}

func lockRows(t *testing.T, store *RunStore) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.db.Model(&runLock{}).Count(&n).Error)
	return n
}

func TestTableLockRunsAndReleases(t *testing.T) {
	store := fileStore(t)

	called := false
	err := store.WithLock(context.Background(), KindRules, "collibra", func() error {
		called = true
		assert.Equal(t, int64(1), lockRows(t, store))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Zero(t, lockRows(t, store))
}

func TestTableLockPropagatesError(t *testing.T) {
	store := fileStore(t)

	err := store.WithLock(context.Background(), KindRules, "collibra", func() error {
		return errors.New("sync exploded")
	})
	assert.EqualError(t, err, "sync exploded")
	assert.Zero(t, lockRows(t, store), "lock is released after an error")
}

func TestTableLockRefusesHeldLock(t *testing.T) {
	store := fileStore(t)
	ctx := context.Background()

	err := store.WithLock(ctx, KindRules, "collibra", func() error {
		inner := store.WithLock(ctx, KindRules, "collibra", func() error {
			t.Error("nested holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrRunInProgress)
		assert.Contains(t, inner.Error(), "rules/collibra held by")

		// Another kind or target is independent.
		return store.WithLock(ctx, KindProfiles, "collibra", func() error { return nil })
	})
	require.NoError(t, err)
}

func TestTableLockClearsStaleLock(t *testing.T) {
	store := fileStore(t)
	stale := runLock{
		ID:       lockName(KindRules, "data3sixty"),
		Token:    "dead",
		LockedBy: "crashed-host",
		LockedAt: time.Now().UTC().Add(-StaleLockAge - time.Minute),
	}
	require.NoError(t, store.db.Create(&stale).Error)

	called := false
	err := store.WithLock(context.Background(), KindRules, "data3sixty", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Zero(t, lockRows(t, store))
}

func TestAdvisoryLock(t *testing.T) {
	store, mock := mockPostgresStore(t)
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WillReturnResult(sqlmock.NewResult(0, 0))

	called := false
	err := store.WithLock(context.Background(), KindRules, "collibra", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockHeld(t *testing.T) {
	store, mock := mockPostgresStore(t)
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	err := store.WithLock(context.Background(), KindProfiles, "collibra", func() error {
		t.Error("must not run without the lock")
		return nil
	})
	require.ErrorIs(t, err, ErrRunInProgress)
	assert.Contains(t, err.Error(), "profiles/collibra")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockQueryError(t *testing.T) {
	store, mock := mockPostgresStore(t)
	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).WillReturnError(errors.New("connection reset"))

	err := store.WithLock(context.Background(), KindRules, "collibra", func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire run lock rules/collibra: connection reset")
	assert.NotErrorIs(t, err, ErrRunInProgress)
}
