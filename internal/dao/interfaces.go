package dao

import (
	"context"

	"github.com/Daneel-Li/petshop-back/internal/models"
)

// OrderRepository 订单相关数据访问接口
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, lines []models.CartLine) error
	GetOrderByID(ctx context.Context, orderID uint) (*models.Order, error)
	GetOrderByTradeNo(ctx context.Context, tradeNo string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID uint) ([]*models.Order, error)
	// TransitionOrderStatus 仅当当前状态为 unpaid 时更新；changed=false 表示同状态重放
	TransitionOrderStatus(ctx context.Context, tradeNo string, to models.OrderStatus, gatewayTradeNo string) (*models.Order, bool, error)
	CancelOrder(ctx context.Context, orderID, userID uint) (*models.Order, bool, error)
}

// DonationRepository 捐款相关数据访问接口
type DonationRepository interface {
	CreateDonation(ctx context.Context, d *models.Donation) error
	GetDonation(ctx context.Context, tradeNo string) (*models.Donation, error)
	TransitionDonationStatus(ctx context.Context, tradeNo string, to models.DonationStatus, gatewayTradeNo string) (*models.Donation, bool, error)
	CancelDonation(ctx context.Context, tradeNo string) (*models.Donation, bool, error)
}

// ProductRepository 商品只读查询，仅用于下单快照与明细展示
type ProductRepository interface {
	GetProductByID(ctx context.Context, productID uint) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
}

// CallbackRepository 回调原文记录
type CallbackRepository interface {
	RecordCallback(ctx context.Context, cb *models.PaymentCallback) (bool, error)
	CountCallbacks(ctx context.Context, kind models.CallbackKind, tradeNo string) (int64, error)
}

// Repository 统一的数据访问接口
type Repository interface {
	OrderRepository
	DonationRepository
	ProductRepository
	CallbackRepository
}
