package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles requests per wallet so one aggressive
// front-end session cannot burn through the shared RPC endpoint quota.
// The wallet comes from the route param or query; anonymous requests
// share one bucket.
func RateLimitMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	qps := cfg.WalletQPS
	if qps <= 0 {
		qps = 5
	}
	burst := cfg.WalletBurst
	if burst <= 0 {
		burst = 10
	}

	limiterFor := func(wallet string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[wallet]
		if !ok {
			l = rate.NewLimiter(rate.Limit(qps), burst)
			limiters[wallet] = l
		}
		return l
	}

	return func(c *gin.Context) {
		wallet := c.Param("wallet")
		if wallet == "" {
			wallet = c.Query("wallet")
		}
		wallet = strings.ToLower(wallet)

		if !limiterFor(wallet).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
