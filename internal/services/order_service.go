package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/dao"
	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"
)

const (
	orderTradePrefix    = "PS"
	donationTradePrefix = "DN"
)

// CheckoutResult 下单结果，前端拿 payment 自动提交到绿界
type CheckoutResult struct {
	Order   *models.Order `json:"order"`
	Payment *PaymentForm  `json:"payment"`
}

type OrderService interface {
	Checkout(ctx context.Context, userID uint, session *models.CheckoutSession) (*CheckoutResult, error)
	ListOrders(ctx context.Context, userID uint) ([]models.OrderSummary, error)
	GetOrder(ctx context.Context, userID, orderID uint) (*models.Order, error)
	GetSummary(ctx context.Context, userID, orderID uint) (*models.OrderSummary, error)
	CancelOrder(ctx context.Context, userID, orderID uint) (*models.Order, error)
}

type orderServiceImpl struct {
	repo     dao.OrderRepository
	gateway  *ECPayGateway
	notifier Notifier
	now      func() time.Time
}

func NewOrderService(repo dao.OrderRepository, gateway *ECPayGateway, notifier Notifier) OrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &orderServiceImpl{repo: repo, gateway: gateway, notifier: notifier, now: time.Now}
}

func (s *orderServiceImpl) Checkout(ctx context.Context, userID uint, session *models.CheckoutSession) (*CheckoutResult, error) {
	if session == nil {
		return nil, types.Validation("结帐资料为空")
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	order := session.ToOrder(userID)
	order.MerchantTradeNo = NewMerchantTradeNo(orderTradePrefix, now)
	if err := s.repo.CreateOrder(ctx, order, session.Items); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		name := it.ProductName
		if it.VariantName != "" {
			name += "(" + it.VariantName + ")"
		}
		names = append(names, fmt.Sprintf("%s x %d", name, it.Quantity))
	}
	form, err := s.gateway.BuildCheckoutForm(CheckoutRequest{
		MerchantTradeNo: order.MerchantTradeNo,
		TotalAmount:     order.TotalPrice,
		TradeDesc:       "毛孩商城订单",
		ItemNames:       names,
		ReturnURL:       s.gateway.cfg.ReturnURL,
		ClientBackURL:   s.gateway.cfg.ClientBackURL,
		PaymentMethod:   order.PaymentMethod,
		CreatedAt:       now,
	})
	if err != nil {
		// 订单已建立但表单失败，保持 unpaid，用户可取消后重下
		slog.Error("build checkout form failed", "trade_no", order.MerchantTradeNo, "error", err)
		return nil, err
	}
	slog.Info("order created", "order_id", order.ID, "trade_no", order.MerchantTradeNo, "total", order.TotalPrice)
	return &CheckoutResult{Order: order, Payment: form}, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, userID uint) ([]models.OrderSummary, error) {
	orders, err := s.repo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]models.OrderSummary, 0, len(orders))
	for _, o := range orders {
		res = append(res, o.Summary())
	}
	return res, nil
}

// GetOrder 非本人订单与不存在同样返回 NotFound
func (s *orderServiceImpl) GetOrder(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, types.NotFound("order %d", orderID)
	}
	return order, nil
}

func (s *orderServiceImpl) GetSummary(ctx context.Context, userID, orderID uint) (*models.OrderSummary, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	sum := order.Summary()
	return &sum, nil
}

func (s *orderServiceImpl) CancelOrder(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	order, changed, err := s.repo.CancelOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if changed {
		slog.Info("order cancelled by user", "order_id", order.ID, "trade_no", order.MerchantTradeNo)
		s.notifier.Notify(ctx, orderEvent(order))
	}
	return order, nil
}

func orderEvent(o *models.Order) StatusEvent {
	return StatusEvent{
		Kind:    EventOrder,
		ID:      o.ID,
		TradeNo: o.MerchantTradeNo,
		UserID:  o.UserID,
		Status:  string(o.PaymentStatus),
		Amount:  o.TotalPrice,
	}
}

func donationEvent(d *models.Donation) StatusEvent {
	evt := StatusEvent{
		Kind:    EventDonation,
		TradeNo: d.TradeNo,
		Status:  string(d.Status),
		Amount:  d.Amount,
	}
	if d.UserID != nil {
		evt.UserID = *d.UserID
	}
	return evt
}
