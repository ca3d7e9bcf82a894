package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"

	"sme-plug-go/internal/model"
)

// 键布局：
//
//	audit:entry:<queryId>                         -> 条目 JSON
//	audit:tenant:<hex(tenantId)>:<倒序时间戳>:<queryId> -> queryId
//
// 租户 ID 十六进制编码，不含分隔符，"acme" 的前缀不会匹配 "acme:eu"。
// 倒序时间戳使前缀遍历天然按时间从新到旧。
const (
	auditEntryPrefix  = "audit:entry:"
	auditTenantPrefix = "audit:tenant:"
)

type badgerAuditRepository struct {
	db *badger.DB
}

var _ AuditRepository = (*badgerAuditRepository)(nil)

// NewBadgerAuditRepository 创建基于 badger 的审计仓库。
func NewBadgerAuditRepository(db *badger.DB) AuditRepository {
	return &badgerAuditRepository{db: db}
}

func entryKey(queryID string) []byte {
	return []byte(auditEntryPrefix + queryID)
}

func tenantPrefix(tenantID string) []byte {
	return []byte(auditTenantPrefix + hex.EncodeToString([]byte(tenantID)) + ":")
}

func tenantKey(e *model.AuditEntry) []byte {
	inverted := math.MaxInt64 - e.Timestamp.UnixNano()
	return []byte(fmt.Sprintf("%s%019d:%s", tenantPrefix(e.TenantID), inverted, e.QueryID))
}

// Create 在同一事务中写入条目与租户索引，已存在时返回 ErrAuditDuplicate。
func (r *badgerAuditRepository) Create(ctx context.Context, entry *model.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化审计条目失败: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		key := entryKey(entry.QueryID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrAuditDuplicate, entry.QueryID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(tenantKey(entry), []byte(entry.QueryID))
	})
	if err != nil {
		if errors.Is(err, ErrAuditDuplicate) {
			return err
		}
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// List 按时间倒序分页返回租户的审计摘要。
func (r *badgerAuditRepository) List(ctx context.Context, tenantID string, page, size int) ([]model.AuditSummary, int64, error) {
	page, size = normalizePage(page, size)
	skip := (page - 1) * size
	summaries := make([]model.AuditSummary, 0, size)
	var total int64

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := tenantPrefix(tenantID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total++
			if total <= int64(skip) || len(summaries) >= size {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			queryID, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := readEntry(txn, string(queryID))
			if err != nil {
				return err
			}
			summaries = append(summaries, entry.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("查询审计记录失败: %w", err)
	}
	return summaries, total, nil
}

// Get 返回完整的审计条目并校验摘要，其他租户的条目视为不存在。
func (r *badgerAuditRepository) Get(ctx context.Context, tenantID, queryID string) (*model.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry *model.AuditEntry
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = readEntry(txn, queryID)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	if entry.TenantID != tenantID {
		return nil, ErrAuditNotFound
	}
	entry.CheckIntegrity()
	return entry, nil
}

func readEntry(txn *badger.Txn, queryID string) (*model.AuditEntry, error) {
	item, err := txn.Get(entryKey(queryID))
	if err != nil {
		return nil, err
	}
	var entry model.AuditEntry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("解析审计条目失败: %w", err)
	}
	return &entry, nil
}
