package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enable bool    `json:"enable"`
	RPS    float64 `json:"rps"`
	Burst  int     `json:"burst"`
}

// 超过该数量时触发一次过期清理，防止map无界增长
const ipLimiterSweepAt = 1024

// 客户端超过该时长无请求后回收其限流器
const ipLimiterTTL = 10 * time.Minute

type ipEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

type ipLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	byIP  map[string]*ipEntry
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &ipLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		byIP:  make(map[string]*ipEntry),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byIP[ip]
	if !ok {
		if len(l.byIP) >= ipLimiterSweepAt {
			l.sweepLocked(now)
		}
		e = &ipEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.byIP[ip] = e
	}
	e.seen = now
	return e.lim.Allow()
}

func (l *ipLimiter) sweepLocked(now time.Time) {
	for ip, e := range l.byIP {
		if now.Sub(e.seen) > ipLimiterTTL {
			delete(l.byIP, ip)
		}
	}
}

// RateLimit 按客户端IP限流中间件
func RateLimit(cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enable {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newIPLimiter(cfg.RPS, cfg.Burst)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.allow(ip) {
			logger.Warn("rate limit exceeded",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", ip),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "too_many_requests",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		c.Next()
	}
}
