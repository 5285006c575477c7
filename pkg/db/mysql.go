package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type MysqlConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	DBName   string
}

// DSN 交给驱动拼接，避免手写转义
func (c MysqlConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", c.Host, c.Port)
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// PoolOptions 连接池参数
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var DefaultPool = PoolOptions{
	MaxOpenConns:    100,
	MaxIdleConns:    20,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
}

// OpenMysql 返回配置好连接池的 *gorm.DB，由调用方持有并在退出时 Close
func OpenMysql(c MysqlConfig, pool PoolOptions) (*gorm.DB, error) {
	gdb, err := gorm.Open(gormmysql.Open(c.DSN()), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open mysql failed: %w", err)
	}
	if err := applyPool(gdb, pool); err != nil {
		return nil, err
	}
	slog.Info("mysql connected", "host", c.Host, "db", c.DBName)
	return gdb, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:    true, // 开启预编译
		TranslateError: true, // 唯一键冲突统一为 gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC() // 写入用 UTC
		},
	}
}

func applyPool(gdb *gorm.DB, pool PoolOptions) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB failed: %w", err)
	}
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	return sqlDB.Ping()
}

// Close 关闭底层连接池
func Close(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}
}
