package models

import "time"

// Product 商品只读，订单明细下单时快照
type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Price     int64     `gorm:"not null" json:"price"`
	ImageURL  string    `gorm:"type:varchar(255)" json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

type ProductVariant struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ProductID uint   `gorm:"index;not null" json:"product_id"`
	Name      string `gorm:"type:varchar(64);not null" json:"name"`
	Price     *int64 `json:"price,omitempty"` // 为空时沿用商品价格
}

func (ProductVariant) TableName() string {
	return "product_variants"
}

// UnitPrice 变体有定价时优先
func (p *Product) UnitPrice(v *ProductVariant) int64 {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}
