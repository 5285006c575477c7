package services

import (
	"context"
	"sync"
	"testing"

	"github.com/Daneel-Li/petshop-back/internal/dao"
	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"
	"github.com/Daneel-Li/petshop-back/pkg/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, evt StatusEvent) {
	m.Called(ctx, evt)
}

func newTestRepo(t *testing.T) *dao.GormRepository {
	t.Helper()
	gdb, err := db.OpenSqlite(":memory:")
	require.NoError(t, err)
	require.NoError(t, dao.Migrate(gdb))
	t.Cleanup(func() { db.Close(gdb) })
	return dao.NewGormRepository(gdb)
}

// seedOrder 建一笔 2 x 300 = 600 的订单
func seedOrder(t *testing.T, repo *dao.GormRepository, tradeNo string, userID uint) *models.Order {
	t.Helper()
	ctx := context.Background()
	p := &models.Product{Name: "成犬饲料", Price: 300}
	require.NoError(t, repo.CreateProduct(ctx, p))
	o := &models.Order{
		MerchantTradeNo: tradeNo,
		UserID:          userID,
		PaymentMethod:   types.PAY_CREDIT,
		ShippingMethod:  types.SHIP_HOME,
		RecipientName:   "王小明",
		RecipientPhone:  "0912345678",
		Address:         "台北市",
	}
	require.NoError(t, repo.CreateOrder(ctx, o, []models.CartLine{{ProductID: p.ID, Quantity: 2}}))
	require.Equal(t, int64(600), o.TotalPrice)
	return o
}

func signed(t *testing.T, s *MacSigner, fields map[string]string) map[string]string {
	t.Helper()
	mac, err := s.Compute(fields)
	require.NoError(t, err)
	fields[CheckMacField] = mac
	return fields
}

func orderCallback(t *testing.T, s *MacSigner, tradeNo, rtnCode string) map[string]string {
	f := callbackFields()
	f["MerchantTradeNo"] = tradeNo
	f["RtnCode"] = rtnCode
	return signed(t, s, f)
}

func TestOrderCallbackPaidThenRedelivered(t *testing.T) {
	repo := newTestRepo(t)
	signer := newTestSigner(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.MatchedBy(func(e StatusEvent) bool {
		return e.Kind == EventOrder && e.Status == string(models.OrderStatusPaid) && e.UserID == 7
	})).Once()
	svc := NewCallbackService(repo, signer, false, n)
	ctx := context.Background()
	seedOrder(t, repo, "A0001", 7)

	out, err := svc.HandleOrderCallback(ctx, orderCallback(t, signer, "A0001", RtnPaid))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	order, err := repo.GetOrderByTradeNo(ctx, "A0001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.PaymentStatus)
	assert.Equal(t, "2401011159001234", order.GatewayTradeNo)
	assert.NotNil(t, order.PaidAt)

	out, err = svc.HandleOrderCallback(ctx, orderCallback(t, signer, "A0001", RtnPaid))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, out)

	count, err := repo.CountCallbacks(ctx, models.CallbackOrder, "A0001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "Notify", 1)
}

func TestOrderCallbackRejected(t *testing.T) {
	signer := newTestSigner(t)
	tests := []struct {
		name   string
		fields func() map[string]string
		want   error
	}{
		{"tampered amount", func() map[string]string {
			f := orderCallback(t, signer, "A0001", RtnPaid)
			f["TradeAmt"] = "1"
			return f
		}, ErrMacMismatch},
		{"tampered rtn code", func() map[string]string {
			f := orderCallback(t, signer, "A0001", "10100058")
			f["RtnCode"] = RtnPaid
			return f
		}, ErrMacMismatch},
		{"missing mac", func() map[string]string {
			f := callbackFields()
			return f
		}, ErrMacMismatch},
		{"other merchant", func() map[string]string {
			f := callbackFields()
			f["MerchantID"] = "2000132"
			return signed(t, signer, f)
		}, ErrMerchantMismatch},
		{"signed amount differs from order", func() map[string]string {
			f := callbackFields()
			f["TradeAmt"] = "599"
			return signed(t, signer, f)
		}, ErrAmountMismatch},
		{"unknown trade", func() map[string]string {
			return orderCallback(t, signer, "NOPE0001", RtnPaid)
		}, types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			n := new(MockNotifier)
			svc := NewCallbackService(repo, signer, false, n)
			ctx := context.Background()
			seedOrder(t, repo, "A0001", 7)

			_, err := svc.HandleOrderCallback(ctx, tt.fields())
			assert.ErrorIs(t, err, tt.want)

			order, err := repo.GetOrderByTradeNo(ctx, "A0001")
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatusUnpaid, order.PaymentStatus)
			count, err := repo.CountCallbacks(ctx, models.CallbackOrder, "A0001")
			require.NoError(t, err)
			assert.Zero(t, count)
			n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		})
	}
}

func TestOrderCallbackCodeIssuedKeepsUnpaid(t *testing.T) {
	repo := newTestRepo(t)
	signer := newTestSigner(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Once()
	svc := NewCallbackService(repo, signer, false, n)
	ctx := context.Background()
	seedOrder(t, repo, "A0001", 7)

	for _, code := range []string{RtnATMIssued, RtnCVSCodeIssued} {
		out, err := svc.HandleOrderCallback(ctx, orderCallback(t, signer, "A0001", code))
		require.NoError(t, err)
		assert.Equal(t, OutcomeInformational, out)
	}
	order, err := repo.GetOrderByTradeNo(ctx, "A0001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusUnpaid, order.PaymentStatus)

	out, err := svc.HandleOrderCallback(ctx, orderCallback(t, signer, "A0001", RtnPaid))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	count, err := repo.CountCallbacks(ctx, models.CallbackOrder, "A0001")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestOrderCallbackFailureCode(t *testing.T) {
	repo := newTestRepo(t)
	signer := newTestSigner(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Once()
	svc := NewCallbackService(repo, signer, false, n)
	ctx := context.Background()
	seedOrder(t, repo, "A0001", 7)

	out, err := svc.HandleOrderCallback(ctx, orderCallback(t, signer, "A0001", "10100058"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	order, err := repo.GetOrderByTradeNo(ctx, "A0001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, order.PaymentStatus)
	assert.Nil(t, order.PaidAt)
}

func TestOrderCallbackAfterUserCancel(t *testing.T) {
	repo := newTestRepo(t)
	signer := newTestSigner(t)
	n := new(MockNotifier)
	svc := NewCallbackService(repo, signer, false, n)
	ctx := context.Background()
	o := seedOrder(t, repo, "A0001", 7)

	_, changed, err := repo.CancelOrder(ctx, o.ID, 7)
	require.NoError(t, err)
	require.True(t, changed)

	out, err := svc.HandleOrderCallback(ctx, orderCallback(t, signer, "A0001", RtnPaid))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, out)

	order, err := repo.GetOrderByTradeNo(ctx, "A0001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.PaymentStatus)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestOrderCallbackSimulatePaid(t *testing.T) {
	signer := newTestSigner(t)
	simulated := func() map[string]string {
		f := callbackFields()
		f["SimulatePaid"] = "1"
		return signed(t, signer, f)
	}

	t.Run("production ignores", func(t *testing.T) {
		repo := newTestRepo(t)
		svc := NewCallbackService(repo, signer, true, new(MockNotifier))
		seedOrder(t, repo, "A0001", 7)
		out, err := svc.HandleOrderCallback(context.Background(), simulated())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSimulated, out)
		order, err := repo.GetOrderByTradeNo(context.Background(), "A0001")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusUnpaid, order.PaymentStatus)
	})

	t.Run("test mode applies", func(t *testing.T) {
		repo := newTestRepo(t)
		n := new(MockNotifier)
		n.On("Notify", mock.Anything, mock.Anything).Once()
		svc := NewCallbackService(repo, signer, false, n)
		seedOrder(t, repo, "A0001", 7)
		out, err := svc.HandleOrderCallback(context.Background(), simulated())
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, out)
	})
}

func TestOrderCallbackConcurrentDeliveries(t *testing.T) {
	repo := newTestRepo(t)
	signer := newTestSigner(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Once()
	svc := NewCallbackService(repo, signer, false, n)
	seedOrder(t, repo, "A0001", 7)

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := map[CallbackOutcome]int{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.HandleOrderCallback(context.Background(), orderCallback(t, signer, "A0001", RtnPaid))
			assert.NoError(t, err)
			mu.Lock()
			outcomes[out]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, outcomes[OutcomeApplied])
	assert.Equal(t, 7, outcomes[OutcomeReplay])
	n.AssertNumberOfCalls(t, "Notify", 1)
}

func donationCallback(t *testing.T, s *MacSigner, tradeNo, rtnCode, amount string) map[string]string {
	f := callbackFields()
	f["MerchantTradeNo"] = tradeNo
	f["RtnCode"] = rtnCode
	f["TradeAmt"] = amount
	return signed(t, s, f)
}

func TestDonationCallback(t *testing.T) {
	repo := newTestRepo(t)
	signer := newTestSigner(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.MatchedBy(func(e StatusEvent) bool {
		return e.Kind == EventDonation && e.Status == string(models.DonationCompleted)
	})).Once()
	svc := NewCallbackService(repo, signer, false, n)
	ctx := context.Background()
	require.NoError(t, repo.CreateDonation(ctx, &models.Donation{TradeNo: "D0001", Amount: 500}))
	require.NoError(t, repo.CreateDonation(ctx, &models.Donation{TradeNo: "D0002", Amount: 500}))

	out, err := svc.HandleDonationCallback(ctx, donationCallback(t, signer, "D0001", RtnPaid, "500"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	d, err := repo.GetDonation(ctx, "D0001")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, d.Status)

	_, err = svc.HandleDonationCallback(ctx, donationCallback(t, signer, "D0001", RtnPaid, "50"))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	// 已取消的捐款不会被之后的成功回调改写
	_, _, err = repo.CancelDonation(ctx, "D0002")
	require.NoError(t, err)
	out, err = svc.HandleDonationCallback(ctx, donationCallback(t, signer, "D0002", RtnPaid, "500"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, out)
	d, err = repo.GetDonation(ctx, "D0002")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCancelled, d.Status)

	_, err = svc.HandleDonationCallback(ctx, donationCallback(t, signer, "D9999", RtnPaid, "500"))
	assert.ErrorIs(t, err, types.ErrNotFound)
	n.AssertExpectations(t)
}
