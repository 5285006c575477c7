package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Daneel-Li/petshop-back/internal/types"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^09\d{8}$`)
	taxIDRegex = regexp.MustCompile(`^\d{8}$`)
)

// CartLine 购物车一行
type CartLine struct {
	ProductID uint  `json:"product_id"`
	VariantID *uint `json:"variant_id,omitempty"`
	Quantity  int   `json:"quantity"`
}

// StorePickup 超商取货门市选择（绿界电子地图回传）
type StorePickup struct {
	StoreID   string `json:"store_id"`
	StoreName string `json:"store_name"`
	SubType   string `json:"sub_type"` // UNIMART/FAMI/HILIFE
}

// CheckoutSession 前端暂存的结帐资料，仅在提交时由服务端校验，不落库
type CheckoutSession struct {
	RecipientName  string               `json:"recipient_name"`
	RecipientPhone string               `json:"recipient_phone"`
	RecipientEmail string               `json:"recipient_email"`
	Address        string               `json:"address"`
	Store          *StorePickup         `json:"store,omitempty"`
	PaymentMethod  types.PaymentMethod  `json:"payment_method"`
	ShippingMethod types.ShippingMethod `json:"shipping_method"`
	InvoiceType    string               `json:"invoice_type"` // personal/carrier/company
	InvoiceCarrier string               `json:"invoice_carrier"`
	TaxID          string               `json:"tax_id"`
	Remark         string               `json:"remark"`
	Items          []CartLine           `json:"items"`
}

// Validate 返回第一个不合法字段
func (s *CheckoutSession) Validate() error {
	if len(s.Items) == 0 {
		return types.Validation("购物车是空的")
	}
	for _, it := range s.Items {
		if it.Quantity <= 0 || it.Quantity > MaxLineQuantity {
			return types.Validation("商品 %d 数量必须介于 1 与 %d", it.ProductID, MaxLineQuantity)
		}
	}
	name := strings.TrimSpace(s.RecipientName)
	if name == "" || utf8.RuneCountInString(name) > 64 {
		return types.Validation("收件人姓名不合法")
	}
	if !phoneRegex.MatchString(s.RecipientPhone) {
		return types.Validation("收件人手机格式错误")
	}
	if s.RecipientEmail != "" && !emailRegex.MatchString(s.RecipientEmail) {
		return types.Validation("email 格式错误")
	}
	if !s.PaymentMethod.Valid() {
		return types.Validation("不支持的付款方式: %s", s.PaymentMethod)
	}
	switch s.ShippingMethod {
	case types.SHIP_HOME:
		if strings.TrimSpace(s.Address) == "" {
			return types.Validation("宅配需要收件地址")
		}
	case types.SHIP_STORE_PICKUP:
		if s.Store == nil || s.Store.StoreID == "" {
			return types.Validation("超商取货需要选择门市")
		}
	default:
		return types.Validation("不支持的配送方式: %s", s.ShippingMethod)
	}
	if s.InvoiceType == "company" && !taxIDRegex.MatchString(s.TaxID) {
		return types.Validation("统一编号格式错误")
	}
	if utf8.RuneCountInString(s.Remark) > 255 {
		return types.Validation("备注过长")
	}
	return nil
}

// ToOrder 只填收件/付款字段，金额与明细由 store 快照
func (s *CheckoutSession) ToOrder(userID uint) *Order {
	o := &Order{
		UserID:         userID,
		PaymentMethod:  s.PaymentMethod,
		ShippingMethod: s.ShippingMethod,
		PaymentStatus:  OrderStatusUnpaid,
		RecipientName:  strings.TrimSpace(s.RecipientName),
		RecipientPhone: s.RecipientPhone,
		RecipientEmail: s.RecipientEmail,
		Address:        s.Address,
		InvoiceType:    s.InvoiceType,
		InvoiceCarrier: s.InvoiceCarrier,
		TaxID:          s.TaxID,
		Remark:         s.Remark,
	}
	if s.ShippingMethod == types.SHIP_STORE_PICKUP && s.Store != nil {
		o.StoreID = s.Store.StoreID
		o.StoreName = s.Store.StoreName
		o.Address = ""
	}
	return o
}

// DonationRequest 捐款表单
type DonationRequest struct {
	Amount     int64  `json:"amount"`
	DonorName  string `json:"donor_name"`
	DonorEmail string `json:"donor_email"`
	DonorPhone string `json:"donor_phone"`
	Message    string `json:"message"`
}

func (r *DonationRequest) Validate() error {
	if r.Amount <= 0 {
		return types.Validation("捐款金额必须大于 0")
	}
	if r.DonorEmail != "" && !emailRegex.MatchString(r.DonorEmail) {
		return types.Validation("email 格式错误")
	}
	if r.DonorPhone != "" && !phoneRegex.MatchString(r.DonorPhone) {
		return types.Validation("手机格式错误")
	}
	if utf8.RuneCountInString(r.Message) > 255 {
		return types.Validation("留言过长")
	}
	return nil
}
