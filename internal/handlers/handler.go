package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/services"
	"github.com/Daneel-Li/petshop-back/internal/types"
	"github.com/Daneel-Li/petshop-back/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	msgOrderNotFound    = "找不到此訂單"
	msgDonationNotFound = "找不到此捐款"
)

// ShopHandler 商城与捐款的查询、下单接口
type ShopHandler struct {
	orders    services.OrderService
	donations services.DonationService
	wsManager *services.WSManager
}

func NewShopHandler(orders services.OrderService, donations services.DonationService, wsManager *services.WSManager) *ShopHandler {
	return &ShopHandler{orders: orders, donations: donations, wsManager: wsManager}
}

// handleError 统一错误处理，不向外暴露内部错误细节
func (h *ShopHandler) handleError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		utils.WriteHttpError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, types.ErrValidation):
		utils.WriteHttpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrAuth):
		utils.WriteHttpError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, types.ErrInvalidTransition):
		utils.WriteHttpError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Handler error", "error", err)
		utils.WriteHttpError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// ListOrders 会员订单摘要，新的在前
func (h *ShopHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, err := h.orders.ListOrders(ctx, getUserIDFromContext(ctx))
	if err != nil {
		h.handleError(w, err, msgOrderNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusOK, orders)
}

func (h *ShopHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := utils.ParseUint(mux.Vars(r)["id"])
	if !ok {
		utils.WriteHttpError(w, http.StatusNotFound, msgOrderNotFound)
		return
	}
	order, err := h.orders.GetOrder(ctx, getUserIDFromContext(ctx), orderID)
	if err != nil {
		h.handleError(w, err, msgOrderNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusOK, order)
}

type checkoutSummaryResponse struct {
	models.OrderSummary
	TotalDisplay string `json:"total_display"`
}

// GetCheckoutSummary 付款完成页轮询
func (h *ShopHandler) GetCheckoutSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := utils.ParseUint(mux.Vars(r)["orderId"])
	if !ok {
		utils.WriteHttpError(w, http.StatusNotFound, msgOrderNotFound)
		return
	}
	sum, err := h.orders.GetSummary(ctx, getUserIDFromContext(ctx), orderID)
	if err != nil {
		h.handleError(w, err, msgOrderNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusOK, checkoutSummaryResponse{
		OrderSummary: *sum,
		TotalDisplay: utils.FormatTWD(sum.TotalPrice),
	})
}

func (h *ShopHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := utils.ParseUint(mux.Vars(r)["id"])
	if !ok {
		utils.WriteHttpError(w, http.StatusNotFound, msgOrderNotFound)
		return
	}
	order, err := h.orders.CancelOrder(ctx, getUserIDFromContext(ctx), orderID)
	if err != nil {
		h.handleError(w, err, msgOrderNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusOK, order)
}

// Checkout 提交结帐资料，返回订单与绿界表单
func (h *ShopHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var session models.CheckoutSession
	if err := utils.DecodeJSON(r, &session); err != nil {
		utils.WriteHttpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.orders.Checkout(ctx, getUserIDFromContext(ctx), &session)
	if err != nil {
		h.handleError(w, err, msgOrderNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusCreated, res)
}

func (h *ShopHandler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.DonationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteHttpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.donations.CreateDonation(ctx, getUserIDFromContext(ctx), &req)
	if err != nil {
		h.handleError(w, err, msgDonationNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusCreated, res)
}

// GetDonation 访客可查，依交易编号
func (h *ShopHandler) GetDonation(w http.ResponseWriter, r *http.Request) {
	d, err := h.donations.GetDonation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err, msgDonationNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusOK, d)
}

// CancelDonation 用户在绿界页面返回时取消，可重复调用
func (h *ShopHandler) CancelDonation(w http.ResponseWriter, r *http.Request) {
	d, err := h.donations.CancelDonation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err, msgDonationNotFound)
		return
	}
	utils.WriteHttpResponse(w, http.StatusOK, d)
}

// VerifyAuth 需挂在 JWTMiddleware 之后，无效令牌已被拦截为 401
func (h *ShopHandler) VerifyAuth(w http.ResponseWriter, r *http.Request) {
	utils.WriteHttpResponse(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"user_id": getUserIDFromContext(r.Context()),
	})
}

func (h *ShopHandler) UpgradeWS(w http.ResponseWriter, r *http.Request) {
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // 首帧令牌鉴权，不依赖 Origin
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.wsManager.AuthenticateAndRegister(conn)
}
