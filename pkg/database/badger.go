package database

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"sme-plug-go/pkg/log"
)

var KV *badger.DB

// badgerLogger 将 badger 的内部日志转发到 zap。
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { log.Errorf("[Badger] "+format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { log.Warnf("[Badger] "+format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { log.Debugf("[Badger] "+format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { log.Debugf("[Badger] "+format, args...) }

// OpenBadger 打开一个 badger 实例。inMemory 为 true 时忽略 path。
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, fmt.Errorf("badger 持久化模式需要配置 path")
		}
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("创建 badger 目录失败 %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开 badger 失败: %w", err)
	}
	return db, nil
}

// InitBadger 初始化全局 KV 实例。
func InitBadger(path string, inMemory bool) {
	var err error
	KV, err = OpenBadger(path, inMemory)
	if err != nil {
		log.Fatal("failed to open badger", err)
	}
	log.Info("Badger audit store opened successfully")
}
