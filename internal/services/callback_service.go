package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Daneel-Li/petshop-back/internal/dao"
	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// 绿界 RtnCode
const (
	RtnPaid          = "1"
	RtnATMIssued     = "2"        // ATM 取号成功
	RtnCVSCodeIssued = "10100073" // 超商代码/条码取号成功
)

var (
	ErrMacMismatch      = fmt.Errorf("%w: CheckMacValue 錯誤", types.ErrAuth)
	ErrMerchantMismatch = fmt.Errorf("%w: MerchantID 不符", types.ErrAuth)
	ErrAmountMismatch   = fmt.Errorf("%w: TradeAmt 不符", types.ErrValidation)
	ErrMissingTradeNo   = fmt.Errorf("%w: MerchantTradeNo 缺失", types.ErrValidation)
)

// CallbackOutcome 回调处理结果，均应回 1|OK
type CallbackOutcome string

const (
	OutcomeApplied       CallbackOutcome = "applied"       // 状态已变更
	OutcomeReplay        CallbackOutcome = "replay"        // 重送，状态已是目标
	OutcomeInformational CallbackOutcome = "informational" // 取号通知，不变更
	OutcomeSimulated     CallbackOutcome = "simulated"     // 正式环境的模拟付款
	OutcomeConflict      CallbackOutcome = "conflict"      // 已被取消等，保留原状态
)

type CallbackService interface {
	HandleOrderCallback(ctx context.Context, fields map[string]string) (CallbackOutcome, error)
	HandleDonationCallback(ctx context.Context, fields map[string]string) (CallbackOutcome, error)
}

type callbackServiceImpl struct {
	repo       dao.Repository
	signer     *MacSigner
	production bool
	notifier   Notifier
}

func NewCallbackService(repo dao.Repository, signer *MacSigner, production bool, notifier Notifier) CallbackService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &callbackServiceImpl{repo: repo, signer: signer, production: production, notifier: notifier}
}

// verify 验签与商店代号检查，通过后返回特店交易编号
func (s *callbackServiceImpl) verify(kind models.CallbackKind, fields map[string]string) (string, error) {
	tradeNo := fields["MerchantTradeNo"]
	if !s.signer.Verify(fields, fields[CheckMacField]) {
		slog.Warn("callback CheckMacValue mismatch", "kind", kind, "trade_no", tradeNo)
		return "", ErrMacMismatch
	}
	if fields["MerchantID"] != s.signer.MerchantID() {
		slog.Warn("callback merchant mismatch", "kind", kind, "trade_no", tradeNo, "merchant_id", fields["MerchantID"])
		return "", ErrMerchantMismatch
	}
	if tradeNo == "" {
		return "", ErrMissingTradeNo
	}
	return tradeNo, nil
}

func checkAmount(fields map[string]string, expected int64) error {
	amt, err := decimal.NewFromString(fields["TradeAmt"])
	if err != nil || !amt.Equal(decimal.NewFromInt(expected)) {
		slog.Warn("callback TradeAmt mismatch", "trade_no", fields["MerchantTradeNo"], "trade_amt", fields["TradeAmt"], "expected", expected)
		return ErrAmountMismatch
	}
	return nil
}

// simulated 正式环境下的模拟付款只确认不入账；测试环境照常处理
func (s *callbackServiceImpl) simulated(kind models.CallbackKind, fields map[string]string) bool {
	if s.production && fields["SimulatePaid"] == "1" {
		slog.Warn("simulated payment ignored in production", "kind", kind, "trade_no", fields["MerchantTradeNo"])
		return true
	}
	return false
}

func (s *callbackServiceImpl) record(ctx context.Context, kind models.CallbackKind, fields map[string]string) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}
	inserted, err := s.repo.RecordCallback(ctx, &models.PaymentCallback{
		Kind:            kind,
		MerchantTradeNo: fields["MerchantTradeNo"],
		RtnCode:         fields["RtnCode"],
		GatewayTradeNo:  fields["TradeNo"],
		Payload:         datatypes.JSON(payload),
	})
	if err != nil {
		return err
	}
	if !inserted {
		slog.Debug("duplicate callback delivery", "kind", kind, "trade_no", fields["MerchantTradeNo"], "rtn_code", fields["RtnCode"])
	}
	return nil
}

func informational(rtnCode string) bool {
	return rtnCode == RtnATMIssued || rtnCode == RtnCVSCodeIssued
}

func (s *callbackServiceImpl) HandleOrderCallback(ctx context.Context, fields map[string]string) (CallbackOutcome, error) {
	tradeNo, err := s.verify(models.CallbackOrder, fields)
	if err != nil {
		return "", err
	}
	order, err := s.repo.GetOrderByTradeNo(ctx, tradeNo)
	if err != nil {
		return "", err
	}
	if err := checkAmount(fields, order.TotalPrice); err != nil {
		return "", err
	}
	if s.simulated(models.CallbackOrder, fields) {
		return OutcomeSimulated, nil
	}
	if err := s.record(ctx, models.CallbackOrder, fields); err != nil {
		return "", err
	}

	rtnCode := fields["RtnCode"]
	if informational(rtnCode) {
		slog.Info("payment code issued", "trade_no", tradeNo, "rtn_code", rtnCode, "payment_type", fields["PaymentType"])
		return OutcomeInformational, nil
	}
	to := models.OrderStatusFailed
	if rtnCode == RtnPaid {
		to = models.OrderStatusPaid
	}

	updated, changed, err := s.repo.TransitionOrderStatus(ctx, tradeNo, to, fields["TradeNo"])
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			slog.Warn("order callback lost to concurrent change", "trade_no", tradeNo, "rtn_code", rtnCode, "error", err)
			return OutcomeConflict, nil
		}
		return "", err
	}
	if !changed {
		return OutcomeReplay, nil
	}
	slog.Info("order payment status updated", "trade_no", tradeNo, "status", updated.PaymentStatus, "rtn_msg", fields["RtnMsg"])
	s.notifier.Notify(ctx, orderEvent(updated))
	return OutcomeApplied, nil
}

func (s *callbackServiceImpl) HandleDonationCallback(ctx context.Context, fields map[string]string) (CallbackOutcome, error) {
	tradeNo, err := s.verify(models.CallbackDonation, fields)
	if err != nil {
		return "", err
	}
	donation, err := s.repo.GetDonation(ctx, tradeNo)
	if err != nil {
		return "", err
	}
	if err := checkAmount(fields, donation.Amount); err != nil {
		return "", err
	}
	if s.simulated(models.CallbackDonation, fields) {
		return OutcomeSimulated, nil
	}
	if err := s.record(ctx, models.CallbackDonation, fields); err != nil {
		return "", err
	}

	rtnCode := fields["RtnCode"]
	if informational(rtnCode) {
		slog.Info("donation payment code issued", "trade_no", tradeNo, "rtn_code", rtnCode)
		return OutcomeInformational, nil
	}
	to := models.DonationCancelled
	if rtnCode == RtnPaid {
		to = models.DonationCompleted
	}

	updated, changed, err := s.repo.TransitionDonationStatus(ctx, tradeNo, to, fields["TradeNo"])
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			slog.Warn("donation callback lost to concurrent change", "trade_no", tradeNo, "rtn_code", rtnCode, "error", err)
			return OutcomeConflict, nil
		}
		return "", err
	}
	if !changed {
		return OutcomeReplay, nil
	}
	slog.Info("donation status updated", "trade_no", tradeNo, "status", updated.Status)
	s.notifier.Notify(ctx, donationEvent(updated))
	return OutcomeApplied, nil
}
