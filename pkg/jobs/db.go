package jobs

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database types.
const (
	DBSQLite   = "sqlite"
	DBPostgres = "postgres"
	DBMySQL    = "mysql"
)

// Dialector returns the gorm dialector for dbType. Postgres accepts either
// a key=value DSN or a postgres:// URL; MySQL DSNs are validated and get
// parseTime enabled.
func Dialector(dbType, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(dbType) {
	case DBSQLite, "":
		return sqlite.Open(dsn), nil
	case DBPostgres:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			converted, err := pq.ParseURL(dsn)
			if err != nil {
				return nil, fmt.Errorf("parse postgres url: %w", err)
			}
			dsn = converted
		}
		return postgres.Open(dsn), nil
	case DBMySQL:
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return mysql.Open(cfg.FormatDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// Open connects to the history database and migrates its tables.
func Open(dbType, dsn string, level logger.LogLevel) (*RunStore, error) {
	d, err := Dialector(dbType, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open %s history database: %w", dbType, err)
	}
	store := NewRunStore(db)
	if err := store.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return store, nil
}
