package models

import (
	"math"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/types"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity 单项商品数量上限
const MaxLineQuantity = 999

// 绿界 TotalAmount 为 Int
var maxOrderTotal = decimal.NewFromInt(math.MaxInt32)

type OrderStatus string

const (
	OrderStatusUnpaid    OrderStatus = "unpaid"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal 终态只允许同状态的幂等重放
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled || s == OrderStatusFailed
}

type Order struct {
	ID              uint                 `gorm:"primaryKey;autoIncrement;comment:订单ID" json:"id"`
	MerchantTradeNo string               `gorm:"uniqueIndex;type:varchar(20);not null;comment:特店交易编号" json:"merchant_trade_no"`
	UserID          uint                 `gorm:"index;not null;comment:会员ID" json:"user_id"`
	TotalPrice      int64                `gorm:"not null;comment:订单金额(新台币元)" json:"total_price"`
	PaymentMethod   types.PaymentMethod  `gorm:"type:varchar(16);not null;comment:付款方式" json:"payment_method"`
	ShippingMethod  types.ShippingMethod `gorm:"type:varchar(16);not null;comment:配送方式" json:"shipping_method"`
	PaymentStatus   OrderStatus          `gorm:"type:varchar(16);not null;default:'unpaid';index;comment:付款状态" json:"payment_status"`
	RecipientName   string               `gorm:"type:varchar(64);not null" json:"recipient_name"`
	RecipientPhone  string               `gorm:"type:varchar(20);not null" json:"recipient_phone"`
	RecipientEmail  string               `gorm:"type:varchar(128)" json:"recipient_email"`
	Address         string               `gorm:"type:varchar(255)" json:"address"`
	StoreID         string               `gorm:"type:varchar(16);comment:超商门市代号" json:"store_id"`
	StoreName       string               `gorm:"type:varchar(64)" json:"store_name"`
	InvoiceType     string               `gorm:"type:varchar(16)" json:"invoice_type"`
	InvoiceCarrier  string               `gorm:"type:varchar(64)" json:"invoice_carrier"`
	TaxID           string               `gorm:"type:varchar(8)" json:"tax_id"`
	Remark          string               `gorm:"type:varchar(255)" json:"remark"`
	GatewayTradeNo  string               `gorm:"type:varchar(20);comment:绿界交易编号" json:"gateway_trade_no,omitempty"`
	PaidAt          *time.Time           `gorm:"comment:付款成功时间" json:"paid_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem 下单时快照单价与品名，不回读商品现价
type OrderItem struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     uint   `gorm:"index;not null" json:"order_id"`
	ProductID   uint   `gorm:"not null" json:"product_id"`
	VariantID   *uint  `json:"variant_id,omitempty"`
	ProductName string `gorm:"type:varchar(128);not null" json:"product_name"`
	VariantName string `gorm:"type:varchar(64)" json:"variant_name,omitempty"`
	Quantity    int    `gorm:"not null" json:"quantity"`
	UnitPrice   int64  `gorm:"not null;comment:下单时单价" json:"unit_price"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return decimal.NewFromInt(i.UnitPrice).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderTotal 明细合计，超出上限返回 ValidationError
func OrderTotal(items []OrderItem) (int64, error) {
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > MaxLineQuantity {
			return 0, types.Validation("商品 %d 数量必须介于 1 与 %d", it.ProductID, MaxLineQuantity)
		}
		if it.UnitPrice < 0 {
			return 0, types.Validation("商品 %d 单价不合法", it.ProductID)
		}
		total = total.Add(it.Subtotal())
	}
	if total.GreaterThan(maxOrderTotal) {
		return 0, types.Validation("订单金额超过上限: %s", total.String())
	}
	return total.IntPart(), nil
}

// OrderSummary 结帐摘要，前端轮询用
type OrderSummary struct {
	ID              uint                `json:"id"`
	MerchantTradeNo string              `json:"merchant_trade_no"`
	TotalPrice      int64               `json:"total_price"`
	ItemCount       int                 `json:"item_count"`
	PaymentMethod   types.PaymentMethod `json:"payment_method"`
	PaymentStatus   OrderStatus         `json:"payment_status"`
	RecipientName   string              `json:"recipient_name"`
	RecipientPhone  string              `json:"recipient_phone"`
	RecipientEmail  string              `json:"recipient_email"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (o *Order) Summary() OrderSummary {
	count := 0
	for _, it := range o.Items {
		count += it.Quantity
	}
	return OrderSummary{
		ID:              o.ID,
		MerchantTradeNo: o.MerchantTradeNo,
		TotalPrice:      o.TotalPrice,
		ItemCount:       count,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		RecipientName:   o.RecipientName,
		RecipientPhone:  o.RecipientPhone,
		RecipientEmail:  o.RecipientEmail,
		CreatedAt:       o.CreatedAt,
	}
}
