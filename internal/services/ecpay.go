package services

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Daneel-Li/petshop-back/internal/config"
	"github.com/Daneel-Li/petshop-back/internal/types"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

const (
	CheckMacField = "CheckMacValue"

	ecpayStageURL = "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"
	ecpayProdURL  = "https://payment.ecpay.com.tw/Cashier/AioCheckOut/V5"

	encryptSHA256 = "1"
	encryptMD5    = "0"

	maxItemNameLen = 400
)

var taipei *time.Location

func init() {
	var err error
	if taipei, err = time.LoadLocation("Asia/Taipei"); err != nil {
		taipei = time.FixedZone("CST", 8*3600)
	}
}

// .NET HttpUtility.UrlEncode 与 url.QueryEscape 的差异
var dotnetUnescape = strings.NewReplacer(
	"%2d", "-",
	"%5f", "_",
	"%2e", ".",
	"%21", "!",
	"%2a", "*",
	"%28", "(",
	"%29", ")",
	"~", "%7e",
)

// MacSigner 计算与校验绿界 CheckMacValue，纯函数，无副作用
type MacSigner struct {
	merchantID string
	hashKey    string
	hashIV     string
}

// NewMacSigner 金流密钥缺失时直接返回错误，不允许以空密钥启动
func NewMacSigner(cfg config.ECPayConfig) (*MacSigner, error) {
	if cfg.MerchantID == "" || cfg.HashKey == "" || cfg.HashIV == "" {
		return nil, fmt.Errorf("%w: ecpay merchant id/hash key/hash iv not configured", types.ErrAuth)
	}
	return &MacSigner{merchantID: cfg.MerchantID, hashKey: cfg.HashKey, hashIV: cfg.HashIV}, nil
}

func (s *MacSigner) MerchantID() string {
	return s.merchantID
}

func (s *MacSigner) canonicalize(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == CheckMacField {
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	var sb strings.Builder
	sb.WriteString("HashKey=")
	sb.WriteString(s.hashKey)
	for _, k := range keys {
		sb.WriteByte('&')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
	}
	sb.WriteString("&HashIV=")
	sb.WriteString(s.hashIV)

	encoded := strings.ToLower(url.QueryEscape(sb.String()))
	return dotnetUnescape.Replace(encoded)
}

// Compute 返回大写十六进制 CheckMacValue；EncryptType=0 时用 MD5，其余 SHA256
func (s *MacSigner) Compute(fields map[string]string) (string, error) {
	if s == nil || s.hashKey == "" || s.hashIV == "" {
		return "", fmt.Errorf("%w: missing merchant secret", types.ErrAuth)
	}
	payload := []byte(s.canonicalize(fields))
	if fields["EncryptType"] == encryptMD5 {
		sum := md5.Sum(payload)
		return strings.ToUpper(hex.EncodeToString(sum[:])), nil
	}
	sum := sha256.Sum256(payload)
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// Verify 任何错误都视为校验失败
func (s *MacSigner) Verify(fields map[string]string, mac string) bool {
	if mac == "" {
		return false
	}
	expected, err := s.Compute(fields)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(mac))) == 1
}

// PaymentForm 前端自动提交到绿界的表单
type PaymentForm struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params"`
}

// CheckoutRequest AioCheckOut 所需的业务参数
type CheckoutRequest struct {
	MerchantTradeNo string
	TotalAmount     int64
	TradeDesc       string
	ItemNames       []string
	ReturnURL       string
	ClientBackURL   string
	PaymentMethod   types.PaymentMethod
	CreatedAt       time.Time
}

// ECPayGateway 组装带签名的 AioCheckOut 表单
type ECPayGateway struct {
	signer *MacSigner
	cfg    config.ECPayConfig
}

func NewECPayGateway(signer *MacSigner, cfg config.ECPayConfig) *ECPayGateway {
	return &ECPayGateway{signer: signer, cfg: cfg}
}

func (g *ECPayGateway) Signer() *MacSigner {
	return g.signer
}

func (g *ECPayGateway) Action() string {
	if g.cfg.IsProduction() {
		return ecpayProdURL
	}
	return ecpayStageURL
}

func (g *ECPayGateway) BuildCheckoutForm(req CheckoutRequest) (*PaymentForm, error) {
	if req.TotalAmount <= 0 {
		return nil, types.Validation("交易金额必须大于 0")
	}
	choose := "ALL"
	if req.PaymentMethod != "" {
		if !req.PaymentMethod.Valid() {
			return nil, types.Validation("不支持的付款方式: %s", req.PaymentMethod)
		}
		choose = req.PaymentMethod.ChoosePayment()
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	params := map[string]string{
		"MerchantID":        g.signer.MerchantID(),
		"MerchantTradeNo":   req.MerchantTradeNo,
		"MerchantTradeDate": created.In(taipei).Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatInt(req.TotalAmount, 10),
		"TradeDesc":         req.TradeDesc,
		"ItemName":          joinItemNames(req.ItemNames),
		"ReturnURL":         req.ReturnURL,
		"ChoosePayment":     choose,
		"EncryptType":       encryptSHA256,
	}
	if req.ClientBackURL != "" {
		params["ClientBackURL"] = req.ClientBackURL
	}
	mac, err := g.signer.Compute(params)
	if err != nil {
		return nil, err
	}
	params[CheckMacField] = mac
	return &PaymentForm{Action: g.Action(), Params: params}, nil
}

// 绿界 ItemName 以 # 分隔，总长 400
func joinItemNames(names []string) string {
	joined := strings.Join(names, "#")
	if utf8.RuneCountInString(joined) <= maxItemNameLen {
		return joined
	}
	return string([]rune(joined)[:maxItemNameLen])
}

// NewMerchantTradeNo 前缀 + 台北时间 yyMMddHHmmss + 随机码，共 20 码英数字
func NewMerchantTradeNo(prefix string, now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	no := prefix + now.In(taipei).Format("060102150405") + random
	if len(no) > 20 {
		no = no[:20]
	}
	return no
}
