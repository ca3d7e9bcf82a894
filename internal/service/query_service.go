package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"sme-plug-go/internal/model"
	"sme-plug-go/internal/pipeline"
	"sme-plug-go/pkg/log"
)

// ErrEmptyQuery 表示请求缺少查询文本。
var ErrEmptyQuery = errors.New("query text is required")

// QueryRequest 是 /query 接口的请求体。
type QueryRequest struct {
	Text        string `json:"text"`
	PersonaID   string `json:"persona_id"`
	PluginID    string `json:"plugin_id"`
	CompareMode bool   `json:"compare_mode"`
}

// QueryService 负责请求校验、人设解析并驱动流水线。
type QueryService interface {
	Query(ctx context.Context, tenantID, headerPlugID string, req QueryRequest, observer pipeline.StepObserver) (*model.QueryResult, error)
	Compare(ctx context.Context, tenantID, headerPlugID string, req QueryRequest) (*model.ComparisonResult, error)
}

type queryService struct {
	personas     PersonaService
	orchestrator pipeline.Orchestrator
	comparison   pipeline.ComparisonRunner
}

var _ QueryService = (*queryService)(nil)

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(personas PersonaService, orchestrator pipeline.Orchestrator, comparison pipeline.ComparisonRunner) QueryService {
	return &queryService{personas: personas, orchestrator: orchestrator, comparison: comparison}
}

func (s *queryService) prepare(ctx context.Context, tenantID, headerPlugID string, req QueryRequest) (model.Query, *model.Persona, error) {
	if strings.TrimSpace(req.Text) == "" {
		return model.Query{}, nil, ErrEmptyQuery
	}
	p, err := s.personas.Resolve(ctx, tenantID, req.PersonaID, req.PluginID, headerPlugID)
	if err != nil {
		return model.Query{}, nil, err
	}
	q := model.Query{
		ID:         uuid.NewString(),
		Text:       req.Text,
		PluginID:   p.ID,
		TenantID:   tenantID,
		ReceivedAt: time.Now().UTC(),
	}
	return q, p, nil
}

func (s *queryService) Query(ctx context.Context, tenantID, headerPlugID string, req QueryRequest, observer pipeline.StepObserver) (*model.QueryResult, error) {
	q, p, err := s.prepare(ctx, tenantID, headerPlugID, req)
	if err != nil {
		return nil, err
	}
	log.Infof("[QueryService] 收到查询, queryID: %s, tenant: %s, persona: %s", q.ID, tenantID, p.ID)
	return s.orchestrator.Run(ctx, q, p, observer)
}

func (s *queryService) Compare(ctx context.Context, tenantID, headerPlugID string, req QueryRequest) (*model.ComparisonResult, error) {
	q, p, err := s.prepare(ctx, tenantID, headerPlugID, req)
	if err != nil {
		return nil, err
	}
	log.Infof("[QueryService] 收到对比查询, queryID: %s, tenant: %s, persona: %s", q.ID, tenantID, p.ID)
	return s.comparison.Compare(ctx, q, p)
}
