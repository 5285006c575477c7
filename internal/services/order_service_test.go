package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) *ECPayGateway {
	cfg := testECPay
	cfg.ReturnURL = "https://shop.example.com/api/return"
	cfg.DonateReturnURL = "https://shop.example.com/api/donate/return"
	cfg.ClientBackURL = "https://shop.example.com/checkout/done"
	return NewECPayGateway(newTestSigner(t), cfg)
}

func checkoutSession(productID uint) *models.CheckoutSession {
	return &models.CheckoutSession{
		RecipientName:  "王小明",
		RecipientPhone: "0912345678",
		Address:        "台北市信义区市府路1号",
		PaymentMethod:  types.PAY_ATM,
		ShippingMethod: types.SHIP_HOME,
		Items:          []models.CartLine{{ProductID: productID, Quantity: 3}},
	}
}

func TestCheckoutBuildsSignedForm(t *testing.T) {
	repo := newTestRepo(t)
	gw := newTestGateway(t)
	svc := NewOrderService(repo, gw, nil).(*orderServiceImpl)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	p := &models.Product{Name: "猫抓板", Price: 250}
	require.NoError(t, repo.CreateProduct(ctx, p))

	res, err := svc.Checkout(ctx, 9, checkoutSession(p.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(750), res.Order.TotalPrice)
	assert.Equal(t, models.OrderStatusUnpaid, res.Order.PaymentStatus)
	assert.Len(t, res.Order.MerchantTradeNo, 20)
	assert.Equal(t, "PS240101120000", res.Order.MerchantTradeNo[:14])

	params := res.Payment.Params
	assert.Equal(t, ecpayStageURL, res.Payment.Action)
	assert.Equal(t, res.Order.MerchantTradeNo, params["MerchantTradeNo"])
	assert.Equal(t, "750", params["TotalAmount"])
	assert.Equal(t, "ATM", params["ChoosePayment"])
	assert.Equal(t, "猫抓板 x 3", params["ItemName"])
	assert.Equal(t, "https://shop.example.com/api/return", params["ReturnURL"])
	assert.True(t, gw.Signer().Verify(params, params[CheckMacField]))

	stored, err := repo.GetOrderByTradeNo(ctx, res.Order.MerchantTradeNo)
	require.NoError(t, err)
	assert.Equal(t, uint(9), stored.UserID)
}

func TestCheckoutRejectsInvalidSession(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewOrderService(repo, newTestGateway(t), nil)
	ctx := context.Background()

	s := checkoutSession(1)
	s.RecipientPhone = "123"
	_, err := svc.Checkout(ctx, 9, s)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.Checkout(ctx, 9, checkoutSession(4242))
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.Checkout(ctx, 9, nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCheckoutRejectsOverflowingCart(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewOrderService(repo, newTestGateway(t), nil)
	ctx := context.Background()
	p := &models.Product{Name: "成犬饲料", Price: 300}
	require.NoError(t, repo.CreateProduct(ctx, p))

	s := checkoutSession(p.ID)
	s.Items[0].Quantity = math.MaxInt
	_, err := svc.Checkout(ctx, 9, s)
	assert.ErrorIs(t, err, types.ErrValidation)

	list, err := svc.ListOrders(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrderQueriesScopedToOwner(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewOrderService(repo, newTestGateway(t), nil)
	ctx := context.Background()
	o := seedOrder(t, repo, "A0001", 7)

	got, err := svc.GetOrder(ctx, 7, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	_, err = svc.GetOrder(ctx, 8, o.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	sum, err := svc.GetSummary(ctx, 7, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), sum.TotalPrice)
	assert.Equal(t, 2, sum.ItemCount)

	list, err := svc.ListOrders(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = svc.ListOrders(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCancelOrderNotifiesOnce(t *testing.T) {
	repo := newTestRepo(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.MatchedBy(func(e StatusEvent) bool {
		return e.Status == string(models.OrderStatusCancelled)
	})).Once()
	svc := NewOrderService(repo, newTestGateway(t), n)
	ctx := context.Background()
	o := seedOrder(t, repo, "A0001", 7)

	got, err := svc.CancelOrder(ctx, 7, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.PaymentStatus)

	_, err = svc.CancelOrder(ctx, 7, o.ID)
	require.NoError(t, err)
	n.AssertExpectations(t)

	_, err = svc.CancelOrder(ctx, 8, o.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCancelPaidOrderConflicts(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewOrderService(repo, newTestGateway(t), nil)
	ctx := context.Background()
	o := seedOrder(t, repo, "A0001", 7)
	_, _, err := repo.TransitionOrderStatus(ctx, "A0001", models.OrderStatusPaid, "2401011159001234")
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, 7, o.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}
