package service

import (
	"context"
	"fmt"
	"time"

	"sme-plug-go/internal/model"
	"sme-plug-go/internal/persona"
	"sme-plug-go/internal/repository"
	"sme-plug-go/pkg/log"
	"sme-plug-go/pkg/storage"
)

// PersonaService 提供人设列表、切换与解析。
type PersonaService interface {
	List(ctx context.Context, tenantID string) ([]model.PersonaSummary, string, error)
	Get(ctx context.Context, id string) (*model.PersonaSummary, error)
	Switch(ctx context.Context, tenantID, personaID string) (*model.PersonaSwitch, error)
	// Resolve 依次尝试 candidates 中第一个非空 id，全部为空时使用租户当前人设，再退回默认人设。
	Resolve(ctx context.Context, tenantID string, candidates ...string) (*model.Persona, error)
}

type personaService struct {
	registry persona.Registry
	state    repository.PersonaStateRepository
	corpus   storage.CorpusLister
}

var _ PersonaService = (*personaService)(nil)

// NewPersonaService 创建一个新的 PersonaService 实例。corpus 可以为 nil。
func NewPersonaService(registry persona.Registry, state repository.PersonaStateRepository, corpus storage.CorpusLister) PersonaService {
	return &personaService{registry: registry, state: state, corpus: corpus}
}

func (s *personaService) List(ctx context.Context, tenantID string) ([]model.PersonaSummary, string, error) {
	active, err := s.activeID(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	list := s.registry.List()
	summaries := make([]model.PersonaSummary, 0, len(list))
	for _, p := range list {
		summaries = append(summaries, s.summary(ctx, p))
	}
	return summaries, active, nil
}

func (s *personaService) Get(ctx context.Context, id string) (*model.PersonaSummary, error) {
	p, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	summary := s.summary(ctx, p)
	return &summary, nil
}

// Switch 校验人设存在后写入租户状态，返回切换前的人设与耗时。
func (s *personaService) Switch(ctx context.Context, tenantID, personaID string) (*model.PersonaSwitch, error) {
	start := time.Now()
	if _, err := s.registry.Get(personaID); err != nil {
		return nil, err
	}
	prev, err := s.state.SetActive(ctx, tenantID, personaID)
	if err != nil {
		return nil, fmt.Errorf("切换人设失败: %w", err)
	}
	if prev == "" {
		prev = s.registry.DefaultID()
	}
	log.Infof("[PersonaService] 租户 %s 切换人设: %s -> %s", tenantID, prev, personaID)
	return &model.PersonaSwitch{
		PersonaID:    personaID,
		PreviousID:   prev,
		SwitchTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (s *personaService) Resolve(ctx context.Context, tenantID string, candidates ...string) (*model.Persona, error) {
	for _, id := range candidates {
		if id != "" {
			return s.registry.Get(id)
		}
	}
	id, err := s.activeID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	p, err := s.registry.Get(id)
	if err != nil {
		// 已下线的人设不应阻断查询
		log.Warnf("[PersonaService] 租户 %s 的活跃人设 %s 不存在，使用默认人设", tenantID, id)
		return s.registry.Get(s.registry.DefaultID())
	}
	return p, nil
}

func (s *personaService) activeID(ctx context.Context, tenantID string) (string, error) {
	id, err := s.state.GetActive(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("读取活跃人设失败: %w", err)
	}
	if id == "" {
		id = s.registry.DefaultID()
	}
	return id, nil
}

// summary 合并配置中的语料文件与对象存储中的文件，配置顺序在前。
func (s *personaService) summary(ctx context.Context, p *model.Persona) model.PersonaSummary {
	summary := p.Summary()
	if s.corpus == nil {
		return summary
	}
	remote, err := s.corpus.ListCorpusFiles(ctx, p.ID)
	if err != nil {
		log.Warnf("[PersonaService] 读取人设 %s 的语料清单失败: %v", p.ID, err)
		return summary
	}
	seen := make(map[string]struct{}, len(summary.CorpusFiles))
	files := make([]string, 0, len(summary.CorpusFiles)+len(remote))
	for _, f := range summary.CorpusFiles {
		seen[f] = struct{}{}
		files = append(files, f)
	}
	for _, f := range remote {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		files = append(files, f)
	}
	summary.CorpusFiles = files
	return summary
}
