// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func ok(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, message, data)
}

func fail(c *gin.Context, status int, message string) {
	respond(c, status, message, nil)
}
