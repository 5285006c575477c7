package dao

import (
	"context"
	"errors"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"gorm.io/gorm"
)

// CreateOrder 在同一事务内快照单价、计算总额并写入订单与明细
func (d *GormRepository) CreateOrder(ctx context.Context, order *models.Order, lines []models.CartLine) error {
	if len(lines) == 0 {
		return types.Validation("订单至少需要一项商品")
	}
	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > models.MaxLineQuantity {
			return types.Validation("商品 %d 数量必须介于 1 与 %d", l.ProductID, models.MaxLineQuantity)
		}
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := make([]models.OrderItem, 0, len(lines))
		for _, l := range lines {
			item, err := snapshotItem(tx, l)
			if err != nil {
				return err
			}
			items = append(items, *item)
		}
		total, err := models.OrderTotal(items)
		if err != nil {
			return err
		}

		order.ID = 0
		order.TotalPrice = total
		order.PaymentStatus = models.OrderStatusUnpaid
		order.PaidAt = nil
		order.GatewayTradeNo = ""
		order.Items = items
		if err := tx.Create(order).Error; err != nil {
			if isDuplicateKey(err) {
				return types.Validation("订单编号重复: %s", order.MerchantTradeNo)
			}
			return types.Store("create order", err)
		}
		return nil
	})
	return err
}

func snapshotItem(tx *gorm.DB, l models.CartLine) (*models.OrderItem, error) {
	var p models.Product
	if err := tx.Where("id = ?", l.ProductID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Validation("商品不存在: %d", l.ProductID)
		}
		return nil, types.Store("load product", err)
	}
	item := &models.OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    l.Quantity,
	}
	var variant *models.ProductVariant
	if l.VariantID != nil {
		var v models.ProductVariant
		if err := tx.Where("id = ? AND product_id = ?", *l.VariantID, p.ID).First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, types.Validation("商品规格不存在: %d/%d", p.ID, *l.VariantID)
			}
			return nil, types.Store("load variant", err)
		}
		variant = &v
		item.VariantID = &v.ID
		item.VariantName = v.Name
	}
	item.UnitPrice = p.UnitPrice(variant)
	return item, nil
}

// GetOrderByID 订单与明细在同一事务内读取，避免读到不一致的快照
func (d *GormRepository) GetOrderByID(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id")
		}).Where("id = ?", orderID).First(&order).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFound("order %d", orderID)
		}
		return nil, types.Store("get order", err)
	}
	return &order, nil
}

func (d *GormRepository) GetOrderByTradeNo(ctx context.Context, tradeNo string) (*models.Order, error) {
	var order models.Order
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("Items").Where("merchant_trade_no = ?", tradeNo).First(&order).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFound("order %s", tradeNo)
		}
		return nil, types.Store("get order by trade no", err)
	}
	return &order, nil
}

func (d *GormRepository) GetOrdersByUserID(ctx context.Context, userID uint) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("Items").Where("user_id = ?", userID).
			Order("created_at DESC").Order("id DESC").Find(&orders).Error
	})
	if err != nil {
		return nil, types.Store("list orders", err)
	}
	return orders, nil
}

// TransitionOrderStatus 条件更新：只有 unpaid 能被改写，并发重复回调只有一个生效
func (d *GormRepository) TransitionOrderStatus(ctx context.Context, tradeNo string, to models.OrderStatus, gatewayTradeNo string) (*models.Order, bool, error) {
	if !to.Terminal() {
		return nil, false, types.Validation("目标状态必须为终态: %s", to)
	}
	updates := map[string]interface{}{"payment_status": to}
	if gatewayTradeNo != "" {
		updates["gateway_trade_no"] = gatewayTradeNo
	}
	if to == models.OrderStatusPaid {
		updates["paid_at"] = time.Now().UTC()
	}

	res := d.db.WithContext(ctx).Model(&models.Order{}).
		Where("merchant_trade_no = ? AND payment_status = ?", tradeNo, models.OrderStatusUnpaid).
		Updates(updates)
	if res.Error != nil {
		return nil, false, types.Store("transition order", res.Error)
	}

	order, err := d.GetOrderByTradeNo(ctx, tradeNo)
	if err != nil {
		return nil, false, err
	}
	if res.RowsAffected > 0 {
		return order, true, nil
	}
	if order.PaymentStatus == to {
		return order, false, nil
	}
	return order, false, types.InvalidTransition(string(order.PaymentStatus), string(to))
}

// CancelOrder 会员取消，只允许 unpaid；重复取消视为成功
func (d *GormRepository) CancelOrder(ctx context.Context, orderID, userID uint) (*models.Order, bool, error) {
	res := d.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND user_id = ? AND payment_status = ?", orderID, userID, models.OrderStatusUnpaid).
		Update("payment_status", models.OrderStatusCancelled)
	if res.Error != nil {
		return nil, false, types.Store("cancel order", res.Error)
	}

	order, err := d.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.UserID != userID {
		return nil, false, types.NotFound("order %d", orderID)
	}
	if res.RowsAffected > 0 {
		return order, true, nil
	}
	if order.PaymentStatus == models.OrderStatusCancelled {
		return order, false, nil
	}
	return order, false, types.InvalidTransition(string(order.PaymentStatus), string(models.OrderStatusCancelled))
}
