package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const activePersonaTTL = 30 * 24 * time.Hour

// PersonaStateRepository 保存每个租户当前激活的人设。
type PersonaStateRepository interface {
	// GetActive 返回租户当前的人设，未设置时返回空字符串。
	GetActive(ctx context.Context, tenantID string) (string, error)
	// SetActive 设置新的人设并返回之前的值。
	SetActive(ctx context.Context, tenantID, personaID string) (string, error)
}

type redisPersonaStateRepository struct {
	redisClient *redis.Client
}

// NewPersonaStateRepository 创建一个基于 Redis 的 PersonaStateRepository 实例。
// redisClient 为 nil 时退化为进程内存储。
func NewPersonaStateRepository(redisClient *redis.Client) PersonaStateRepository {
	if redisClient == nil {
		return NewMemoryPersonaStateRepository()
	}
	return &redisPersonaStateRepository{redisClient: redisClient}
}

func activePersonaKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:active_persona", tenantID)
}

func (r *redisPersonaStateRepository) GetActive(ctx context.Context, tenantID string) (string, error) {
	id, err := r.redisClient.Get(ctx, activePersonaKey(tenantID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active persona: %w", err)
	}
	return id, nil
}

func (r *redisPersonaStateRepository) SetActive(ctx context.Context, tenantID, personaID string) (string, error) {
	key := activePersonaKey(tenantID)
	prev, err := r.redisClient.GetSet(ctx, key, personaID).Result()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("failed to set active persona: %w", err)
	}
	if err := r.redisClient.Expire(ctx, key, activePersonaTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to set active persona ttl: %w", err)
	}
	return prev, nil
}

type memoryPersonaStateRepository struct {
	mu     sync.RWMutex
	active map[string]string
}

// NewMemoryPersonaStateRepository 创建进程内的人设状态存储，用于测试和单机演示。
func NewMemoryPersonaStateRepository() PersonaStateRepository {
	return &memoryPersonaStateRepository{active: make(map[string]string)}
}

func (r *memoryPersonaStateRepository) GetActive(_ context.Context, tenantID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[tenantID], nil
}

func (r *memoryPersonaStateRepository) SetActive(_ context.Context, tenantID, personaID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.active[tenantID]
	r.active[tenantID] = personaID
	return prev, nil
}
