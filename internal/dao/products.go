package dao

import (
	"context"
	"errors"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"gorm.io/gorm"
)

func (d *GormRepository) GetProductByID(ctx context.Context, productID uint) (*models.Product, error) {
	var p models.Product
	if err := d.db.WithContext(ctx).Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Where("id = ?", productID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFound("product %d", productID)
		}
		return nil, types.Store("get product", err)
	}
	return &p, nil
}

// CreateProduct 后台上架与测试数据
func (d *GormRepository) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := d.db.WithContext(ctx).Create(p).Error; err != nil {
		return types.Store("create product", err)
	}
	return nil
}

// UpdateProductPrice 改现价，不影响已下单的明细
func (d *GormRepository) UpdateProductPrice(ctx context.Context, productID uint, price int64) error {
	if err := d.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).
		Update("price", price).Error; err != nil {
		return types.Store("update product price", err)
	}
	return nil
}
