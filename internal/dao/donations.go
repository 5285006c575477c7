package dao

import (
	"context"
	"errors"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"gorm.io/gorm"
)

func (d *GormRepository) CreateDonation(ctx context.Context, donation *models.Donation) error {
	if donation.Amount <= 0 {
		return types.Validation("捐款金额必须大于 0")
	}
	donation.Status = models.DonationPending
	donation.PaidAt = nil
	if err := d.db.WithContext(ctx).Create(donation).Error; err != nil {
		if isDuplicateKey(err) {
			return types.Validation("交易编号重复: %s", donation.TradeNo)
		}
		return types.Store("create donation", err)
	}
	return nil
}

func (d *GormRepository) GetDonation(ctx context.Context, tradeNo string) (*models.Donation, error) {
	var donation models.Donation
	if err := d.db.WithContext(ctx).Where("trade_no = ?", tradeNo).First(&donation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFound("donation %s", tradeNo)
		}
		return nil, types.Store("get donation", err)
	}
	return &donation, nil
}

// TransitionDonationStatus 与订单相同的条件更新，只能从 pending 离开
func (d *GormRepository) TransitionDonationStatus(ctx context.Context, tradeNo string, to models.DonationStatus, gatewayTradeNo string) (*models.Donation, bool, error) {
	if !to.Terminal() {
		return nil, false, types.Validation("目标状态必须为终态: %s", to)
	}
	updates := map[string]interface{}{"status": to}
	if gatewayTradeNo != "" {
		updates["gateway_trade_no"] = gatewayTradeNo
	}
	if to == models.DonationCompleted {
		updates["paid_at"] = time.Now().UTC()
	}

	res := d.db.WithContext(ctx).Model(&models.Donation{}).
		Where("trade_no = ? AND status = ?", tradeNo, models.DonationPending).
		Updates(updates)
	if res.Error != nil {
		return nil, false, types.Store("transition donation", res.Error)
	}

	donation, err := d.GetDonation(ctx, tradeNo)
	if err != nil {
		return nil, false, err
	}
	if res.RowsAffected > 0 {
		return donation, true, nil
	}
	if donation.Status == to {
		return donation, false, nil
	}
	return donation, false, types.InvalidTransition(string(donation.Status), string(to))
}

// CancelDonation 用户放弃付款；重复取消为 no-op，已完成则返回状态冲突
func (d *GormRepository) CancelDonation(ctx context.Context, tradeNo string) (*models.Donation, bool, error) {
	return d.TransitionDonationStatus(ctx, tradeNo, models.DonationCancelled, "")
}
