package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Daneel-Li/petshop-back/internal/services"
	"github.com/Daneel-Li/petshop-back/internal/types"
	"github.com/Daneel-Li/petshop-back/pkg/utils"
)

const ackOK = "1|OK"

// PaymentHandler 绿界 ReturnURL 回调，应答纯文本 1|OK 或 0|原因
type PaymentHandler struct {
	callbacks services.CallbackService
}

func NewPaymentHandler(callbacks services.CallbackService) *PaymentHandler {
	return &PaymentHandler{callbacks: callbacks}
}

// OrderReturn POST /api/return
func (h *PaymentHandler) OrderReturn(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "order", h.callbacks.HandleOrderCallback, "找不到此訂單")
}

// DonationReturn POST /api/donate/return
func (h *PaymentHandler) DonationReturn(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "donation", h.callbacks.HandleDonationCallback, "找不到此捐款")
}

type callbackFunc func(ctx context.Context, fields map[string]string) (services.CallbackOutcome, error)

func (h *PaymentHandler) handle(w http.ResponseWriter, r *http.Request, kind string, fn callbackFunc, notFoundMsg string) {
	fields, err := utils.GetRequestFields(r)
	if err != nil {
		slog.Warn("bad callback body", "kind", kind, "error", err)
		utils.WriteText(w, http.StatusBadRequest, "0|Bad Request")
		return
	}

	outcome, err := fn(r.Context(), fields)
	if err != nil {
		code, reason := callbackError(err, notFoundMsg)
		if code == http.StatusInternalServerError {
			slog.Error("callback processing failed", "kind", kind, "trade_no", fields["MerchantTradeNo"], "error", err)
		}
		utils.WriteText(w, code, "0|"+reason)
		return
	}
	slog.Debug("callback acknowledged", "kind", kind, "trade_no", fields["MerchantTradeNo"], "outcome", outcome)
	utils.WriteText(w, http.StatusOK, ackOK)
}

func callbackError(err error, notFoundMsg string) (int, string) {
	switch {
	case errors.Is(err, services.ErrMacMismatch):
		return http.StatusBadRequest, "CheckMacValue 錯誤"
	case errors.Is(err, services.ErrMerchantMismatch):
		return http.StatusBadRequest, "MerchantID 不符"
	case errors.Is(err, services.ErrAmountMismatch):
		return http.StatusBadRequest, "TradeAmt 不符"
	case errors.Is(err, services.ErrMissingTradeNo):
		return http.StatusBadRequest, "MerchantTradeNo 缺失"
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, notFoundMsg
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrAuth):
		return http.StatusBadRequest, "Bad Request"
	default:
		return http.StatusInternalServerError, "Error"
	}
}
