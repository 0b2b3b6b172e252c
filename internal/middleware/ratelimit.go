package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit 使用令牌桶限制请求频率，超出时返回 429
//
// 每 interval 补充一个令牌，桶容量为 burst。interval 不大于零时不限流。
func RateLimit(interval time.Duration, burst int) gin.HandlerFunc {
	if interval <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := rate.NewLimiter(rate.Every(interval), burst)
	return func(c *gin.Context) {
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(delay.Round(time.Second)/time.Second)+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "请求过于频繁，请稍后再试",
			})
			return
		}

		c.Next()
	}
}
