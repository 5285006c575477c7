package models

import (
	"errors"
	"testing"

	"github.com/Daneel-Li/petshop-back/internal/types"

	"github.com/stretchr/testify/assert"
)

func validSession() CheckoutSession {
	return CheckoutSession{
		RecipientName:  "王小明",
		RecipientPhone: "0912345678",
		RecipientEmail: "ming@example.com",
		Address:        "台北市信义区市府路1号",
		PaymentMethod:  types.PAY_CREDIT,
		ShippingMethod: types.SHIP_HOME,
		Items:          []CartLine{{ProductID: 1, Quantity: 2}},
	}
}

func TestCheckoutSessionValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *CheckoutSession)
		ok     bool
	}{
		{"valid", func(s *CheckoutSession) {}, true},
		{"empty cart", func(s *CheckoutSession) { s.Items = nil }, false},
		{"zero quantity", func(s *CheckoutSession) { s.Items[0].Quantity = 0 }, false},
		{"negative quantity", func(s *CheckoutSession) { s.Items[0].Quantity = -1 }, false},
		{"max quantity", func(s *CheckoutSession) { s.Items[0].Quantity = MaxLineQuantity }, true},
		{"over max quantity", func(s *CheckoutSession) { s.Items[0].Quantity = MaxLineQuantity + 1 }, false},
		{"bad phone", func(s *CheckoutSession) { s.RecipientPhone = "12345" }, false},
		{"bad email", func(s *CheckoutSession) { s.RecipientEmail = "nope" }, false},
		{"unknown payment", func(s *CheckoutSession) { s.PaymentMethod = "paypal" }, false},
		{"home without address", func(s *CheckoutSession) { s.Address = " " }, false},
		{"pickup without store", func(s *CheckoutSession) { s.ShippingMethod = types.SHIP_STORE_PICKUP }, false},
		{"pickup with store", func(s *CheckoutSession) {
			s.ShippingMethod = types.SHIP_STORE_PICKUP
			s.Store = &StorePickup{StoreID: "131386", StoreName: "建新门市", SubType: "UNIMART"}
		}, true},
		{"company invoice bad tax id", func(s *CheckoutSession) { s.InvoiceType = "company"; s.TaxID = "123" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSession()
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)
			}
		})
	}
}

func TestCheckoutSessionToOrderPickupDropsAddress(t *testing.T) {
	s := validSession()
	s.ShippingMethod = types.SHIP_STORE_PICKUP
	s.Store = &StorePickup{StoreID: "131386", StoreName: "建新门市"}

	o := s.ToOrder(7)
	assert.Equal(t, uint(7), o.UserID)
	assert.Equal(t, OrderStatusUnpaid, o.PaymentStatus)
	assert.Equal(t, "131386", o.StoreID)
	assert.Empty(t, o.Address)
}

func TestDonationRequestValidate(t *testing.T) {
	assert.NoError(t, (&DonationRequest{Amount: 500}).Validate())
	assert.ErrorIs(t, (&DonationRequest{Amount: 0}).Validate(), types.ErrValidation)
	assert.ErrorIs(t, (&DonationRequest{Amount: 100, DonorEmail: "x"}).Validate(), types.ErrValidation)
}

func TestOrderTotal(t *testing.T) {
	total, err := OrderTotal([]OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 450},
		{ProductID: 2, Quantity: 1, UnitPrice: 180},
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1080), total)

	// 数量 1+2^62、单价 300 以 int64 相乘会绕回 300
	_, err = OrderTotal([]OrderItem{{ProductID: 1, Quantity: 1 + (1 << 62), UnitPrice: 300}})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = OrderTotal([]OrderItem{{ProductID: 1, Quantity: 999, UnitPrice: 1 << 40}})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = OrderTotal([]OrderItem{{ProductID: 1, Quantity: 1, UnitPrice: -5}})
	assert.ErrorIs(t, err, types.ErrValidation)
}
