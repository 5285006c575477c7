package dao

import (
	"errors"
	"fmt"

	"github.com/Daneel-Li/petshop-back/internal/models"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlErrDuplicateEntry = 1062

// GormRepository 基于 gorm 的实现，生产用 MySQL，测试用 SQLite
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 创建数据访问对象，db 由调用方注入并负责关闭
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// 确保GormRepository实现了所有接口
var _ Repository = (*GormRepository)(nil)

// Migrate 建表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Product{},
		&models.ProductVariant{},
		&models.Order{},
		&models.OrderItem{},
		&models.Donation{},
		&models.PaymentCallback{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
