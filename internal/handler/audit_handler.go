package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sme-plug-go/internal/middleware"
	"sme-plug-go/internal/repository"
	"sme-plug-go/internal/service"
	"sme-plug-go/pkg/log"
)

// AuditHandler 负责审计记录查询。
type AuditHandler struct {
	auditService service.AuditService
}

// NewAuditHandler 创建一个新的 AuditHandler 实例。
func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// List 处理 GET /audit?page=&size=。
func (h *AuditHandler) List(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		fail(c, http.StatusBadRequest, "page 参数无效")
		return
	}
	size, err := intQuery(c, "size", 20)
	if err != nil {
		fail(c, http.StatusBadRequest, "size 参数无效")
		return
	}
	res, err := h.auditService.List(c.Request.Context(), middleware.TenantID(c), page, size)
	if err != nil {
		log.Error("List audit: failed", err)
		fail(c, http.StatusInternalServerError, "获取审计记录失败")
		return
	}
	ok(c, "获取审计记录成功", res)
}

// Get 处理 GET /audit/:queryId。
func (h *AuditHandler) Get(c *gin.Context) {
	entry, err := h.auditService.Get(c.Request.Context(), middleware.TenantID(c), c.Param("queryId"))
	if err != nil {
		if errors.Is(err, repository.ErrAuditNotFound) {
			fail(c, http.StatusNotFound, "审计记录不存在")
			return
		}
		log.Error("Get audit: failed", err)
		fail(c, http.StatusInternalServerError, "获取审计记录失败")
		return
	}
	ok(c, "获取审计记录成功", entry)
}
