package types

// PaymentMethod 付款方式
type PaymentMethod string

const (
	PAY_CREDIT  PaymentMethod = "credit"
	PAY_ATM     PaymentMethod = "atm"
	PAY_CVS     PaymentMethod = "cvs"
	PAY_BARCODE PaymentMethod = "barcode"
	PAY_WEBATM  PaymentMethod = "webatm"
)

// ECPay ChoosePayment 参数
var choosePayment = map[PaymentMethod]string{
	PAY_CREDIT:  "Credit",
	PAY_ATM:     "ATM",
	PAY_CVS:     "CVS",
	PAY_BARCODE: "BARCODE",
	PAY_WEBATM:  "WebATM",
}

func (p PaymentMethod) Valid() bool {
	_, ok := choosePayment[p]
	return ok
}

func (p PaymentMethod) ChoosePayment() string {
	return choosePayment[p]
}

// ShippingMethod 配送方式
type ShippingMethod string

const (
	SHIP_HOME         ShippingMethod = "home"
	SHIP_STORE_PICKUP ShippingMethod = "store_pickup"
)

func (s ShippingMethod) Valid() bool {
	return s == SHIP_HOME || s == SHIP_STORE_PICKUP
}
