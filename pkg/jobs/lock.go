package jobs

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRunInProgress is returned by WithLock when another process holds the
// lock for the same kind and target.
var ErrRunInProgress = errors.New("another sync run is in progress")

// StaleLockAge is how long a table lock is honored before it is assumed
// to belong to a crashed process.
const StaleLockAge = 6 * time.Hour

// runLock is the lock row used on databases without advisory locks.
type runLock struct {
	ID       string    `gorm:"primaryKey;column:id;type:varchar(128)"`
	Token    string    `gorm:"column:token;type:varchar(36);not null"`
	LockedBy string    `gorm:"column:locked_by"`
	LockedAt time.Time `gorm:"column:locked_at;not null"`
}

func (runLock) TableName() string { return "sync_locks" }

func lockName(kind, target string) string {
	return kind + "/" + target
}

// WithLock runs fn while holding the lock for kind and target. It does not
// wait: when the lock is held elsewhere it returns ErrRunInProgress.
// PostgreSQL uses a session advisory lock; other databases use a row in
// sync_locks.
func (s *RunStore) WithLock(ctx context.Context, kind, target string, fn func() error) error {
	name := lockName(kind, target)
	if s.db.Dialector.Name() == DBPostgres {
		return s.withAdvisoryLock(ctx, name, fn)
	}
	return s.withTableLock(ctx, name, fn)
}

func (s *RunStore) withAdvisoryLock(ctx context.Context, name string, fn func() error) error {
	id := int64(crc32.ChecksumIEEE([]byte("dq-connector/" + name)))
	// Advisory locks belong to a session, so the connection is pinned.
	return s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		var ok bool
		if err := tx.Raw("SELECT pg_try_advisory_lock(?)", id).Scan(&ok).Error; err != nil {
			return fmt.Errorf("acquire run lock %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrRunInProgress)
		}
		defer func() {
			_ = tx.Exec("SELECT pg_advisory_unlock(?)", id).Error
		}()
		return fn()
	})
}

func (s *RunStore) withTableLock(ctx context.Context, name string, fn func() error) error {
	db := s.db.WithContext(ctx)
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	now := s.now()

	if err := db.Where("id = ? AND locked_at < ?", name, now.Add(-StaleLockAge)).Delete(&runLock{}).Error; err != nil {
		return fmt.Errorf("clear stale run lock %s: %w", name, err)
	}
	lock := runLock{ID: name, Token: uuid.New().String(), LockedBy: host, LockedAt: now}
	if err := db.Create(&lock).Error; err != nil {
		var held runLock
		if db.Where("id = ?", name).Take(&held).Error == nil {
			return fmt.Errorf("%s held by %s since %s: %w", name, held.LockedBy, held.LockedAt.Format(time.RFC3339), ErrRunInProgress)
		}
		return fmt.Errorf("acquire run lock %s: %w", name, err)
	}
	defer func() {
		s.db.Where("id = ? AND token = ?", name, lock.Token).Delete(&runLock{})
	}()
	return fn()
}
