package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSqlite 本地开发与测试用；":memory:" 时只保留一个连接，否则每个连接各自一个库
func OpenSqlite(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	pool := DefaultPool
	pool.MaxOpenConns = 1
	pool.MaxIdleConns = 1
	pool.ConnMaxLifetime = 0
	pool.ConnMaxIdleTime = 0
	if err := applyPool(gdb, pool); err != nil {
		return nil, err
	}
	return gdb, nil
}
