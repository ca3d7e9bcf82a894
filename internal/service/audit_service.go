package service

import (
	"context"

	"sme-plug-go/internal/model"
	"sme-plug-go/internal/repository"
)

// AuditPage 是审计列表接口的分页结果。
type AuditPage struct {
	Items []model.AuditSummary `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
}

// AuditService 提供按租户隔离的审计查询。
type AuditService interface {
	List(ctx context.Context, tenantID string, page, size int) (*AuditPage, error)
	Get(ctx context.Context, tenantID, queryID string) (*model.AuditEntry, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService 创建一个新的 AuditService 实例。
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) List(ctx context.Context, tenantID string, page, size int) (*AuditPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	items, total, err := s.repo.List(ctx, tenantID, page, size)
	if err != nil {
		return nil, err
	}
	return &AuditPage{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *auditService) Get(ctx context.Context, tenantID, queryID string) (*model.AuditEntry, error) {
	return s.repo.Get(ctx, tenantID, queryID)
}
