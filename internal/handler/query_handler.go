package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sme-plug-go/internal/middleware"
	"sme-plug-go/internal/model"
	"sme-plug-go/internal/persona"
	"sme-plug-go/internal/pipeline"
	"sme-plug-go/internal/service"
	"sme-plug-go/pkg/log"
)

// PlugIDHeader 允许客户端通过请求头指定人设。
const PlugIDHeader = "X-Plug-ID"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// QueryHandler 负责处理查询与对比请求。
type QueryHandler struct {
	queryService service.QueryService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// Query 处理 POST /query。compare_mode 为 true 时返回对比结果。
func (h *QueryHandler) Query(c *gin.Context) {
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求体格式错误")
		return
	}
	tenantID := middleware.TenantID(c)
	plugHeader := c.GetHeader(PlugIDHeader)

	if req.CompareMode {
		res, err := h.queryService.Compare(c.Request.Context(), tenantID, plugHeader, req)
		if err != nil {
			h.handleError(c, err)
			return
		}
		ok(c, "对比完成", res)
		return
	}

	res, err := h.queryService.Query(c.Request.Context(), tenantID, plugHeader, req, nil)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if res.BlockReason == model.BlockReasonGenerationFailed {
		respond(c, http.StatusInternalServerError, "回答生成失败", res)
		return
	}
	ok(c, "查询完成", res)
}

func (h *QueryHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, persona.ErrPersonaNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrQueryCanceled), errors.Is(err, context.Canceled):
		// 客户端已断开，不再写响应
		log.Infof("[QueryHandler] 客户端取消了查询")
		c.Abort()
	default:
		log.Errorf("[QueryHandler] 查询处理失败: %v", err)
		fail(c, http.StatusInternalServerError, "查询处理失败")
	}
}

// streamEvent 是 WebSocket 推送的消息。
type streamEvent struct {
	Type    string              `json:"type"`
	Step    *model.PipelineStep `json:"step,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Stream 处理 GET /query/stream。客户端每发送一条查询 JSON，
// 服务端依次推送每个阶段的 step 事件，最后推送 result 事件。
func (h *QueryHandler) Stream(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	plugHeader := c.GetHeader(PlugIDHeader)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，租户: %s", tenantID)

	send := func(ev streamEvent) bool {
		if err := conn.WriteJSON(ev); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			return false
		}
		return true
	}

	// 连接劫持后请求上下文不再感知断开，由读协程在连接关闭时取消
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	messages := make(chan []byte, 8)
	go func() {
		defer cancel()
		defer close(messages)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warnf("从 WebSocket 读取消息失败: %v", err)
				}
				return
			}
			select {
			case messages <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	for message := range messages {
		var req service.QueryRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if !send(streamEvent{Type: "error", Message: "请求体格式错误"}) {
				return
			}
			continue
		}

		if req.CompareMode {
			res, err := h.queryService.Compare(ctx, tenantID, plugHeader, req)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !send(streamEvent{Type: "error", Message: err.Error()}) {
					return
				}
				continue
			}
			if !send(streamEvent{Type: "result", Data: res}) {
				return
			}
			continue
		}

		// 观察者在流水线的调用协程中同步执行，写连接无需额外加锁
		observer := func(step model.PipelineStep) {
			s := step
			send(streamEvent{Type: "step", Step: &s})
		}
		res, err := h.queryService.Query(ctx, tenantID, plugHeader, req, observer)
		if err != nil {
			if ctx.Err() != nil {
				log.Infof("[QueryHandler] WebSocket 已关闭，查询已取消，租户: %s", tenantID)
				return
			}
			if !send(streamEvent{Type: "error", Message: err.Error()}) {
				return
			}
			continue
		}
		if !send(streamEvent{Type: "result", Data: res}) {
			return
		}
	}
}
