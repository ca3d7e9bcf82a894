// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sme-plug-go/internal/model"
)

var (
	// ErrAuditNotFound 表示审计条目不存在或不属于当前租户。
	ErrAuditNotFound = errors.New("audit entry not found")
	// ErrAuditDuplicate 表示同一 queryId 的审计条目已存在。
	ErrAuditDuplicate = errors.New("audit entry already exists")
)

// AuditRepository 定义了审计条目的追加写与查询接口。条目写入后不可修改。
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditEntry) error
	List(ctx context.Context, tenantID string, page, size int) ([]model.AuditSummary, int64, error)
	Get(ctx context.Context, tenantID, queryID string) (*model.AuditEntry, error)
}

type gormAuditRepository struct {
	db *gorm.DB
}

var _ AuditRepository = (*gormAuditRepository)(nil)

// NewAuditRepository 创建基于 MySQL 的审计仓库。
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &gormAuditRepository{db: db}
}

// Create 插入一条审计记录。
func (r *gormAuditRepository) Create(ctx context.Context, entry *model.AuditEntry) error {
	rec, err := model.NewAuditRecord(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrAuditDuplicate, entry.QueryID)
		}
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// List 按时间倒序分页返回租户的审计摘要。
func (r *gormAuditRepository) List(ctx context.Context, tenantID string, page, size int) ([]model.AuditSummary, int64, error) {
	page, size = normalizePage(page, size)
	var total int64
	q := r.db.WithContext(ctx).Model(&model.AuditRecord{}).Where("tenant_id = ?", tenantID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计审计记录失败: %w", err)
	}

	var records []model.AuditRecord
	err := q.Select("query_id", "persona_id", "persona_name", "query_text", "decision", "citation_count", "hallucination_score", "timestamp").
		Order("timestamp DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询审计记录失败: %w", err)
	}
	summaries := make([]model.AuditSummary, 0, len(records))
	for i := range records {
		summaries = append(summaries, records[i].Summary())
	}
	return summaries, total, nil
}

// Get 返回完整的审计条目并校验摘要。
func (r *gormAuditRepository) Get(ctx context.Context, tenantID, queryID string) (*model.AuditEntry, error) {
	var rec model.AuditRecord
	err := r.db.WithContext(ctx).Where("query_id = ? AND tenant_id = ?", queryID, tenantID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	entry, err := rec.Entry()
	if err != nil {
		return nil, err
	}
	entry.CheckIntegrity()
	return entry, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
