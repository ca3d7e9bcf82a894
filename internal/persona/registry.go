// Package persona 管理领域专家人设（SME plug）的定义。
package persona

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"sme-plug-go/internal/model"
	"sme-plug-go/pkg/log"
)

//go:embed personas/*.yaml
var builtin embed.FS

// ErrPersonaNotFound 表示请求的人设不存在。
var ErrPersonaNotFound = errors.New("persona not found")

// Registry 提供人设的只读查询。
type Registry interface {
	Get(id string) (*model.Persona, error)
	List() []*model.Persona
	DefaultID() string
}

type registry struct {
	mu        sync.RWMutex
	personas  map[string]*model.Persona
	defaultID string
}

var _ Registry = (*registry)(nil)

// NewRegistry 加载内置人设，dir 非空时再加载目录下的 yaml 文件，同 id 覆盖内置定义。
func NewRegistry(dir, defaultID string) (Registry, error) {
	r := &registry{personas: make(map[string]*model.Persona)}
	if err := r.loadFS(builtin, "personas"); err != nil {
		return nil, fmt.Errorf("加载内置人设失败: %w", err)
	}
	if dir != "" {
		if err := r.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, fmt.Errorf("加载人设目录 %s 失败: %w", dir, err)
		}
	}
	if defaultID == "" {
		defaultID = "legal"
	}
	if _, ok := r.personas[defaultID]; !ok {
		return nil, fmt.Errorf("默认人设 %q 不存在: %w", defaultID, ErrPersonaNotFound)
	}
	r.defaultID = defaultID
	log.Infof("[PersonaRegistry] 已加载 %d 个人设, 默认: %s", len(r.personas), defaultID)
	return r, nil
}

// NewStaticRegistry 用给定的人设构建注册表，主要用于测试。
func NewStaticRegistry(defaultID string, personas ...*model.Persona) Registry {
	r := &registry{personas: make(map[string]*model.Persona), defaultID: defaultID}
	for _, p := range personas {
		r.personas[p.ID] = p
	}
	return r
}

func (r *registry) loadFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		p, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		r.personas[p.ID] = p
		return nil
	})
}

// Parse 解析单个人设 yaml 并校验必填字段。
func Parse(data []byte) (*model.Persona, error) {
	var p model.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("解析人设失败: %w", err)
	}
	if p.ID == "" {
		return nil, errors.New("人设缺少 id")
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.GuardrailLevel == "" {
		p.GuardrailLevel = model.GuardrailStandard
	}
	if !p.GuardrailLevel.Valid() {
		return nil, fmt.Errorf("人设 %s 的护栏等级无效: %q", p.ID, p.GuardrailLevel)
	}
	return &p, nil
}

// Get 按 id 返回人设。
func (r *registry) Get(id string) (*model.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
	}
	return p, nil
}

// List 按 id 排序返回全部人设。
func (r *registry) List() []*model.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*model.Persona, 0, len(r.personas))
	for _, p := range r.personas {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (r *registry) DefaultID() string {
	return r.defaultID
}
