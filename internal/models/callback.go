package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallbackKind string

const (
	CallbackOrder    CallbackKind = "order"
	CallbackDonation CallbackKind = "donation"
)

// PaymentCallback 已验签的绿界回调原文，同一笔交易同一结果码只记录一次
type PaymentCallback struct {
	ID              uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind            CallbackKind   `gorm:"type:varchar(16);not null;uniqueIndex:idx_callback_once" json:"kind"`
	MerchantTradeNo string         `gorm:"type:varchar(20);not null;uniqueIndex:idx_callback_once" json:"merchant_trade_no"`
	RtnCode         string         `gorm:"type:varchar(16);not null;uniqueIndex:idx_callback_once" json:"rtn_code"`
	GatewayTradeNo  string         `gorm:"type:varchar(20)" json:"gateway_trade_no"`
	Payload         datatypes.JSON `gorm:"type:json" json:"payload"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (PaymentCallback) TableName() string {
	return "payment_callbacks"
}
