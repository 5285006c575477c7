package services

import (
	"context"
	"testing"

	"github.com/Daneel-Li/petshop-back/internal/models"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateGuestDonation(t *testing.T) {
	repo := newTestRepo(t)
	gw := newTestGateway(t)
	svc := NewDonationService(repo, gw, nil)
	ctx := context.Background()

	res, err := svc.CreateDonation(ctx, 0, &models.DonationRequest{Amount: 1000, DonorName: " 陈小姐 ", Message: "加油"})
	require.NoError(t, err)
	assert.Nil(t, res.Donation.UserID)
	assert.Equal(t, "陈小姐", res.Donation.DonorName)
	assert.Equal(t, models.DonationPending, res.Donation.Status)
	assert.Equal(t, "DN", res.Donation.TradeNo[:2])
	assert.Equal(t, "1000", res.Payment.Params["TotalAmount"])
	assert.Equal(t, "ALL", res.Payment.Params["ChoosePayment"])
	assert.Equal(t, "https://shop.example.com/api/donate/return", res.Payment.Params["ReturnURL"])
	assert.True(t, gw.Signer().Verify(res.Payment.Params, res.Payment.Params[CheckMacField]))

	got, err := svc.GetDonation(ctx, res.Donation.TradeNo)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Amount)

	_, err = svc.CreateDonation(ctx, 0, &models.DonationRequest{Amount: -5})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCancelDonation(t *testing.T) {
	repo := newTestRepo(t)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Once()
	svc := NewDonationService(repo, newTestGateway(t), n)
	ctx := context.Background()
	require.NoError(t, repo.CreateDonation(ctx, &models.Donation{TradeNo: "D0001", Amount: 500}))
	require.NoError(t, repo.CreateDonation(ctx, &models.Donation{TradeNo: "D0002", Amount: 500}))

	d, err := svc.CancelDonation(ctx, "D0001")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCancelled, d.Status)

	d, err = svc.CancelDonation(ctx, "D0001")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCancelled, d.Status)

	_, _, err = repo.TransitionDonationStatus(ctx, "D0002", models.DonationCompleted, "")
	require.NoError(t, err)
	_, err = svc.CancelDonation(ctx, "D0002")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = svc.CancelDonation(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	n.AssertExpectations(t)
}
