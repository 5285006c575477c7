package models

import "time"

type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationCancelled DonationStatus = "cancelled"
)

func (s DonationStatus) Terminal() bool {
	return s == DonationCompleted || s == DonationCancelled
}

type Donation struct {
	TradeNo        string         `gorm:"primaryKey;type:varchar(20);comment:特店交易编号" json:"trade_no"`
	GatewayTradeNo string         `gorm:"type:varchar(20);comment:绿界交易编号" json:"gateway_trade_no,omitempty"`
	UserID         *uint          `gorm:"index" json:"user_id,omitempty"`
	Amount         int64          `gorm:"not null" json:"amount"`
	Status         DonationStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	DonorName      string         `gorm:"type:varchar(64)" json:"donor_name"`
	DonorEmail     string         `gorm:"type:varchar(128)" json:"donor_email"`
	DonorPhone     string         `gorm:"type:varchar(20)" json:"donor_phone"`
	Message        string         `gorm:"type:varchar(255);comment:留言" json:"message"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Donation) TableName() string {
	return "donations"
}
