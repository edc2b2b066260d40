package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/repository"
)

// RateLimit 返回一个 Gin 中间件，按用户 (已认证时) 或客户端 IP 限制请求频率。
// 计数器保存在 StateRepository 中，多个实例共享。
func RateLimit(stateRepo repository.StateRepository, maxRequests int, window time.Duration) gin.HandlerFunc {
	if stateRepo == nil {
		panic("StateRepository cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := c.Get(ContextUserID); ok {
			if id, ok := userID.(uint); ok {
				key = "user:" + strconv.FormatUint(uint64(id), 10)
			}
		}

		exceeded, err := stateRepo.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			// Redis 不可用时放行，限流不应影响保存
			logrus.WithError(err).WithField("key", key).Error("RateLimit: Failed to check rate limit")
			c.Next()
			return
		}
		if exceeded {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds()+0.5)))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
