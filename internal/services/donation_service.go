package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/dao"
	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"
)

type DonationResult struct {
	Donation *models.Donation `json:"donation"`
	Payment  *PaymentForm     `json:"payment"`
}

type DonationService interface {
	// userID 为 0 表示访客捐款
	CreateDonation(ctx context.Context, userID uint, req *models.DonationRequest) (*DonationResult, error)
	GetDonation(ctx context.Context, tradeNo string) (*models.Donation, error)
	CancelDonation(ctx context.Context, tradeNo string) (*models.Donation, error)
}

type donationServiceImpl struct {
	repo     dao.DonationRepository
	gateway  *ECPayGateway
	notifier Notifier
	now      func() time.Time
}

func NewDonationService(repo dao.DonationRepository, gateway *ECPayGateway, notifier Notifier) DonationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &donationServiceImpl{repo: repo, gateway: gateway, notifier: notifier, now: time.Now}
}

func (s *donationServiceImpl) CreateDonation(ctx context.Context, userID uint, req *models.DonationRequest) (*DonationResult, error) {
	if req == nil {
		return nil, types.Validation("捐款资料为空")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	d := &models.Donation{
		TradeNo:    NewMerchantTradeNo(donationTradePrefix, now),
		Amount:     req.Amount,
		DonorName:  strings.TrimSpace(req.DonorName),
		DonorEmail: req.DonorEmail,
		DonorPhone: req.DonorPhone,
		Message:    req.Message,
	}
	if userID != 0 {
		d.UserID = &userID
	}
	if err := s.repo.CreateDonation(ctx, d); err != nil {
		return nil, err
	}
	form, err := s.gateway.BuildCheckoutForm(CheckoutRequest{
		MerchantTradeNo: d.TradeNo,
		TotalAmount:     d.Amount,
		TradeDesc:       "浪浪之家捐款",
		ItemNames:       []string{"爱心捐款"},
		ReturnURL:       s.gateway.cfg.DonateReturnURL,
		ClientBackURL:   s.gateway.cfg.ClientBackURL,
		CreatedAt:       now,
	})
	if err != nil {
		slog.Error("build donation form failed", "trade_no", d.TradeNo, "error", err)
		return nil, err
	}
	slog.Info("donation created", "trade_no", d.TradeNo, "amount", d.Amount)
	return &DonationResult{Donation: d, Payment: form}, nil
}

func (s *donationServiceImpl) GetDonation(ctx context.Context, tradeNo string) (*models.Donation, error) {
	if tradeNo == "" {
		return nil, types.Validation("缺少交易编号")
	}
	return s.repo.GetDonation(ctx, tradeNo)
}

// CancelDonation 重复取消为 no-op；已完成的捐款返回 InvalidTransition
func (s *donationServiceImpl) CancelDonation(ctx context.Context, tradeNo string) (*models.Donation, error) {
	if tradeNo == "" {
		return nil, types.Validation("缺少交易编号")
	}
	d, changed, err := s.repo.CancelDonation(ctx, tradeNo)
	if err != nil {
		return nil, err
	}
	if changed {
		slog.Info("donation cancelled", "trade_no", d.TradeNo)
		s.notifier.Notify(ctx, donationEvent(d))
	}
	return d, nil
}
