package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sme-plug-go/internal/middleware"
	"sme-plug-go/internal/persona"
	"sme-plug-go/internal/service"
	"sme-plug-go/pkg/log"
)

// PersonaHandler 负责人设列表与切换。
type PersonaHandler struct {
	personaService service.PersonaService
}

// NewPersonaHandler 创建一个新的 PersonaHandler 实例。
func NewPersonaHandler(personaService service.PersonaService) *PersonaHandler {
	return &PersonaHandler{personaService: personaService}
}

// List 处理 GET /personas 与 GET /plugs。
func (h *PersonaHandler) List(c *gin.Context) {
	list, active, err := h.personaService.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		log.Error("List personas: failed", err)
		fail(c, http.StatusInternalServerError, "获取人设列表失败")
		return
	}
	ok(c, "获取人设列表成功", gin.H{"personas": list, "activeId": active})
}

// Get 处理 GET /plugs/:id。
func (h *PersonaHandler) Get(c *gin.Context) {
	p, err := h.personaService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, persona.ErrPersonaNotFound) {
			fail(c, http.StatusNotFound, "人设不存在")
			return
		}
		fail(c, http.StatusInternalServerError, "获取人设失败")
		return
	}
	ok(c, "获取人设成功", p)
}

type switchRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
}

// Switch 处理 PUT /personas/switch。
func (h *PersonaHandler) Switch(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "缺少 persona_id")
		return
	}
	res, err := h.personaService.Switch(c.Request.Context(), middleware.TenantID(c), req.PersonaID)
	if err != nil {
		if errors.Is(err, persona.ErrPersonaNotFound) {
			fail(c, http.StatusNotFound, "人设不存在")
			return
		}
		log.Error("Switch persona: failed", err)
		fail(c, http.StatusInternalServerError, "切换人设失败")
		return
	}
	ok(c, "切换人设成功", res)
}
