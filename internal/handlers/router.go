package handlers

import (
	"time"

	"github.com/Daneel-Li/petshop-back/internal/services"
	"github.com/Daneel-Li/petshop-back/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

const (
	callbackRateLimit  = 300 // 每个 IP 每分钟回调次数
	callbackRateWindow = time.Minute
)

type RouterDeps struct {
	Shop    *ShopHandler
	Payment *PaymentHandler
	JWT     services.JWTService
	Limiter *IPRateLimiter // 可选
	Redis   redis.Scripter // 可选，配置后回调走分布式限流
	Proxies *utils.TrustedProxies
}

// NewRouter 设置路由
func NewRouter(d RouterDeps) *mux.Router {
	r := mux.NewRouter()
	h := d.Shop

	var public []Middleware
	if d.Limiter != nil {
		public = append(public, d.Limiter.Middleware)
	}
	member := append([]Middleware{JWTMiddleware(d.JWT)}, public...)
	guest := append([]Middleware{OptionalJWT(d.JWT)}, public...)
	callback := public
	if d.Redis != nil {
		callback = append([]Middleware{RedisRateLimit(d.Redis, "callback", callbackRateLimit, callbackRateWindow, d.Proxies)}, public...)
	}

	// 绿界回调，无会员身份
	r.HandleFunc("/api/return", WithMidWare(d.Payment.OrderReturn, callback...)).Methods("POST")
	r.HandleFunc("/api/donate/return", WithMidWare(d.Payment.DonationReturn, callback...)).Methods("POST")

	r.HandleFunc("/api/shop/orders", WithMidWare(h.ListOrders, member...)).Methods("GET")
	r.HandleFunc("/api/shop/orders/{id}", WithMidWare(h.GetOrder, member...)).Methods("GET")
	r.HandleFunc("/api/shop/orders/{id}/cancel", WithMidWare(h.CancelOrder, member...)).Methods("POST")
	r.HandleFunc("/api/shop/checkout", WithMidWare(h.Checkout, member...)).Methods("POST")
	r.HandleFunc("/api/shop/checkout/summary/{orderId}", WithMidWare(h.GetCheckoutSummary, member...)).Methods("GET")

	r.HandleFunc("/api/donate/donations", WithMidWare(h.CreateDonation, guest...)).Methods("POST")
	r.HandleFunc("/api/donate/donations/cancel/{id}", WithMidWare(h.CancelDonation, public...)).Methods("GET")
	r.HandleFunc("/api/donate/donations/{id}", WithMidWare(h.GetDonation, public...)).Methods("GET")

	r.HandleFunc("/api/auth/verify", WithMidWare(h.VerifyAuth, member...)).Methods("GET")
	r.HandleFunc("/ws", h.UpgradeWS).Methods("GET")
	return r
}
