package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/services"
	"github.com/Daneel-Li/petshop-back/pkg/utils"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type Middleware func(http.HandlerFunc) http.HandlerFunc

func WithMidWare(finalHandler http.HandlerFunc, middlwares ...Middleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := finalHandler
		for _, m := range middlwares {
			f = m(f)
		}
		f(w, r)
	}
}

type ctxKey string

const userIDKey ctxKey = "userid"

func withUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// getUserIDFromContext 未登录返回 0
func getUserIDFromContext(ctx context.Context) uint {
	if userID, ok := ctx.Value(userIDKey).(uint); ok {
		return userID
	}
	return 0
}

// JWTMiddleware 必须携带有效会员令牌
func JWTMiddleware(jwt services.JWTService) Middleware {
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if len(tokenString) < 1 {
				utils.WriteHttpError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			userid, err := jwt.ValidateToken(tokenString)
			if err != nil {
				slog.Debug("token rejected", "path", r.URL.Path, "error", err)
				utils.WriteHttpError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			slog.Debug(fmt.Sprintf("[%s] %s userid:[%v]", r.Method, r.URL.Path, userid))
			h.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userid)))
		}
	}
}

// OptionalJWT 访客可访问；带了有效令牌则记下会员
func OptionalJWT(jwt services.JWTService) Middleware {
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if tokenString := r.Header.Get("Authorization"); tokenString != "" {
				if userid, err := jwt.ValidateToken(tokenString); err == nil {
					r = r.WithContext(withUserID(r.Context(), userid))
				}
			}
			h.ServeHTTP(w, r)
		}
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 单机按 IP 令牌桶限流
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	proxies  *utils.TrustedProxies
}

// NewIPRateLimiter proxies 为空时只按 RemoteAddr 计数
func NewIPRateLimiter(qps float64, burst int, proxies *utils.TrustedProxies) *IPRateLimiter {
	return &IPRateLimiter{
		proxies:  proxies,
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(qps),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= 10000 {
			l.sweepLocked(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *IPRateLimiter) sweepLocked(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, ip)
		}
	}
}

func (l *IPRateLimiter) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.get(l.proxies.ClientIP(r)).Allow() {
			utils.WriteHttpError(w, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}
		h.ServeHTTP(w, r)
	}
}

// luaRateLimit 滑动窗口，KEYS[1]=限流key，ARGV: now, windowStart, windowSec, member, limit
// 返回窗口内请求数，超限返回 -1
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)
local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RedisRateLimit 多实例共享的按 IP 限流，Redis 出错时放行
func RedisRateLimit(rdb redis.Scripter, scope string, limit int, window time.Duration, proxies *utils.TrustedProxies) Middleware {
	script := redis.NewScript(luaRateLimit)
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("rate_limit:petshop:%s:ip:%s", scope, proxies.ClientIP(r))
			now := time.Now()
			windowSec := int64(window.Seconds())
			windowStart := now.Unix() - windowSec
			member := fmt.Sprintf("%d-%d", now.Unix(), now.UnixNano())

			res, err := script.Run(r.Context(), rdb, []string{key},
				now.Unix(), windowStart, windowSec, member, limit).Int()
			if err != nil {
				slog.Warn("redis rate limit unavailable", "scope", scope, "error", err)
				h.ServeHTTP(w, r)
				return
			}
			if res < 0 {
				utils.WriteText(w, http.StatusTooManyRequests, "0|Too Many Requests")
				return
			}
			h.ServeHTTP(w, r)
		}
	}
}
