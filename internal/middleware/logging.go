// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"sme-plug-go/pkg/log"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 查询文本可能含有 PII，只记录请求与响应体的大小。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"tenantId", TenantID(c),
			"requestBytes", c.Request.ContentLength,
			"responseBytes", c.Writer.Size(),
		)
	}
}
