package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"sme-plug-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。addr 为空时跳过，人设状态仅保存在进程内。
func InitRedis(addr, password string, db int) {
	if addr == "" {
		log.Warnf("Redis 地址为空，活跃人设将不会持久化")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx := context.Background()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
