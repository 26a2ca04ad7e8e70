package mysql

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool bounds the MySQL connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	ConnMaxLife time.Duration
}

// Open connects GORM to MySQL with the given pool bounds. GORM's own
// SQL logging is silenced; the engine logs requests itself.
func Open(dsn string, pool Pool) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLife)
	return db, nil
}
