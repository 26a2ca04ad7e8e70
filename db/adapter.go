package db

import (
	"fmt"

	"github.com/fateforge/server/config"
	dbmysql "github.com/fateforge/server/db/mysql"
	dbsqlite "github.com/fateforge/server/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
	// ModeMemory is an in-memory SQLite database, used by tests.
	ModeMemory = "memory"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMemory:
		return dbsqlite.Open("file::memory:")
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{
			MaxOpen:     cfg.MySQLMaxOpen,
			MaxIdle:     cfg.MySQLMaxIdle,
			ConnMaxLife: cfg.MySQLMaxLife,
		})
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
