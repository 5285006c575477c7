package dao

import (
	"context"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"gorm.io/gorm/clause"
)

// RecordCallback 重复投递（同交易同结果码）不插入，返回 false
func (d *GormRepository) RecordCallback(ctx context.Context, cb *models.PaymentCallback) (bool, error) {
	res := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(cb)
	if res.Error != nil {
		return false, types.Store("record callback", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *GormRepository) CountCallbacks(ctx context.Context, kind models.CallbackKind, tradeNo string) (int64, error) {
	var n int64
	if err := d.db.WithContext(ctx).Model(&models.PaymentCallback{}).
		Where("kind = ? AND merchant_trade_no = ?", kind, tradeNo).Count(&n).Error; err != nil {
		return 0, types.Store("count callbacks", err)
	}
	return n, nil
}
