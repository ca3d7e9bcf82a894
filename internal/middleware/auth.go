// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"sme-plug-go/internal/config"
	"sme-plug-go/pkg/hash"
	"sme-plug-go/pkg/log"
	"sme-plug-go/pkg/token"
)

// TenantKey 是 gin.Context 中保存租户 ID 的键。
const TenantKey = "tenantId"

// APIKeyHeader 是 API Key 认证使用的请求头。
const APIKeyHeader = "X-API-Key"

// apiKeyVerifier 用 bcrypt 校验 API Key，并缓存已验证 key 的指纹以避免重复计算。
type apiKeyVerifier struct {
	keys     []config.APIKeyConfig
	mu       sync.RWMutex
	verified map[string]string
}

func newAPIKeyVerifier(keys []config.APIKeyConfig) *apiKeyVerifier {
	return &apiKeyVerifier{keys: keys, verified: make(map[string]string)}
}

func (v *apiKeyVerifier) tenantFor(key string) (string, bool) {
	sum := sha256.Sum256([]byte(key))
	fp := hex.EncodeToString(sum[:])

	v.mu.RLock()
	tenant, ok := v.verified[fp]
	v.mu.RUnlock()
	if ok {
		return tenant, true
	}
	for _, k := range v.keys {
		if k.KeyHash != "" && hash.CheckKeyHash(key, k.KeyHash) {
			v.mu.Lock()
			v.verified[fp] = k.TenantID
			v.mu.Unlock()
			log.Debugf("[Auth] API Key %s 验证通过, tenant: %s", k.KeyID, k.TenantID)
			return k.TenantID, true
		}
	}
	return "", false
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": msg, "data": nil})
}

// AuthMiddleware 创建一个 Gin 中间件，支持 Bearer JWT、X-API-Key 和 WebSocket 的 token 查询参数。
// 认证成功后将租户 ID 存入上下文。
func AuthMiddleware(jwtManager *token.JWTManager, apiKeys []config.APIKeyConfig) gin.HandlerFunc {
	verifier := newAPIKeyVerifier(apiKeys)
	return func(c *gin.Context) {
		if key := c.GetHeader(APIKeyHeader); key != "" {
			tenant, ok := verifier.tenantFor(key)
			if !ok {
				abortUnauthorized(c, "无效的 API Key")
				return
			}
			c.Set(TenantKey, tenant)
			c.Next()
			return
		}

		var tokenString string
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Token 通常以 "Bearer <token>" 的形式提供
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				abortUnauthorized(c, "无效的授权头格式")
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		} else {
			// 浏览器 WebSocket 无法设置请求头
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abortUnauthorized(c, "请求未包含授权信息")
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			abortUnauthorized(c, "无效或已过期的 token")
			return
		}
		c.Set(TenantKey, claims.TenantID)
		c.Next()
	}
}

// TenantID 返回认证中间件写入的租户 ID。
func TenantID(c *gin.Context) string {
	return c.GetString(TenantKey)
}
