package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// 完整性校验结果。
const (
	IntegrityOK       = "ok"
	IntegrityMismatch = "mismatch"
)

// AuditEntry 是每次查询的不可变审计记录，写入后不再修改。
type AuditEntry struct {
	QueryID            string           `json:"queryId"`
	TenantID           string           `json:"tenantId"`
	QueryText          string           `json:"queryText"`
	PersonaID          string           `json:"personaId"`
	PersonaName        string           `json:"personaName"`
	Decision           Decision         `json:"decision"`
	BlockReason        string           `json:"blockReason,omitempty"`
	CitationCount      int              `json:"citationCount"`
	HallucinationScore float64          `json:"hallucinationScore"`
	InputGuardrail     *GuardrailResult `json:"inputGuardrail"`
	OutputGuardrail    *GuardrailResult `json:"outputGuardrail,omitempty"`
	RetrievedSections  []SectionRef     `json:"retrievedSections"`
	Citations          []Citation       `json:"citations"`
	PipelineSteps      []PipelineStep   `json:"pipelineSteps"`
	RawResponseText    string           `json:"rawResponseText"`
	FinalResponseText  string           `json:"finalResponseText"`
	TotalDurationMs    int64            `json:"totalDurationMs"`
	Timestamp          time.Time        `json:"timestamp"`
	Digest             string           `json:"digest"`
	// Integrity 仅在读取时填充，不参与摘要计算。
	Integrity string `json:"integrity,omitempty"`
}

// ComputeDigest 计算条目的 SHA-256 摘要，Digest 与 Integrity 字段不参与计算。
func (e AuditEntry) ComputeDigest() (string, error) {
	e.Digest = ""
	e.Integrity = ""
	e.Timestamp = e.Timestamp.UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("序列化审计条目失败: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal 写入前填充摘要。
func (e *AuditEntry) Seal() error {
	digest, err := e.ComputeDigest()
	if err != nil {
		return err
	}
	e.Digest = digest
	return nil
}

// CheckIntegrity 重新计算摘要并填充 Integrity。
func (e *AuditEntry) CheckIntegrity() {
	digest, err := e.ComputeDigest()
	if err != nil || digest != e.Digest {
		e.Integrity = IntegrityMismatch
		return
	}
	e.Integrity = IntegrityOK
}

// Summary 返回列表展示用的摘要。
func (e *AuditEntry) Summary() AuditSummary {
	return AuditSummary{
		QueryID:            e.QueryID,
		PersonaID:          e.PersonaID,
		PersonaName:        e.PersonaName,
		QueryText:          e.QueryText,
		Decision:           e.Decision,
		CitationCount:      e.CitationCount,
		HallucinationScore: e.HallucinationScore,
		Timestamp:          e.Timestamp,
	}
}

// AuditSummary 是审计列表中的一行。
type AuditSummary struct {
	QueryID            string    `json:"queryId"`
	PersonaID          string    `json:"personaId"`
	PersonaName        string    `json:"personaName"`
	QueryText          string    `json:"queryText"`
	Decision           Decision  `json:"decision"`
	CitationCount      int       `json:"citationCount"`
	HallucinationScore float64   `json:"hallucinationScore"`
	Timestamp          time.Time `json:"timestamp"`
}

// AuditRecord 对应于数据库中的 audit_entries 表。
// JSON 字段使用 longtext 原样保存，避免 MySQL JSON 类型改写键顺序。
type AuditRecord struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	QueryID            string    `gorm:"type:varchar(36);not null;uniqueIndex"`
	TenantID           string    `gorm:"type:varchar(64);not null;index:idx_audit_tenant_time,priority:1"`
	QueryText          string    `gorm:"type:text;not null"`
	PersonaID          string    `gorm:"type:varchar(64)"`
	PersonaName        string    `gorm:"type:varchar(128)"`
	Decision           string    `gorm:"type:varchar(16);not null"`
	BlockReason        string    `gorm:"type:varchar(32)"`
	CitationCount      int       `gorm:"not null;default:0"`
	HallucinationScore float64   `gorm:"not null;default:0"`
	InputGuardrail     string    `gorm:"type:longtext"`
	OutputGuardrail    string    `gorm:"type:longtext"`
	RetrievedSections  string    `gorm:"type:longtext"`
	Citations          string    `gorm:"type:longtext"`
	PipelineSteps      string    `gorm:"type:longtext"`
	RawResponseText    string    `gorm:"type:longtext"`
	FinalResponseText  string    `gorm:"type:longtext"`
	TotalDurationMs    int64     `gorm:"not null;default:0"`
	Digest             string    `gorm:"type:char(64)"`
	Timestamp          time.Time `gorm:"type:datetime(6);not null;index:idx_audit_tenant_time,priority:2"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AuditRecord) TableName() string {
	return "audit_entries"
}

// NewAuditRecord 将审计条目转换为数据库记录。
func NewAuditRecord(e *AuditEntry) (*AuditRecord, error) {
	rec := &AuditRecord{
		QueryID:            e.QueryID,
		TenantID:           e.TenantID,
		QueryText:          e.QueryText,
		PersonaID:          e.PersonaID,
		PersonaName:        e.PersonaName,
		Decision:           string(e.Decision),
		BlockReason:        e.BlockReason,
		CitationCount:      e.CitationCount,
		HallucinationScore: e.HallucinationScore,
		RawResponseText:    e.RawResponseText,
		FinalResponseText:  e.FinalResponseText,
		TotalDurationMs:    e.TotalDurationMs,
		Digest:             e.Digest,
		Timestamp:          e.Timestamp.UTC(),
	}
	fields := []struct {
		dst *string
		src interface{}
	}{
		{&rec.InputGuardrail, e.InputGuardrail},
		{&rec.OutputGuardrail, e.OutputGuardrail},
		{&rec.RetrievedSections, e.RetrievedSections},
		{&rec.Citations, e.Citations},
		{&rec.PipelineSteps, e.PipelineSteps},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("序列化审计字段失败: %w", err)
		}
		*f.dst = string(data)
	}
	return rec, nil
}

// Entry 将数据库记录还原为审计条目。
func (r *AuditRecord) Entry() (*AuditEntry, error) {
	e := &AuditEntry{
		QueryID:            r.QueryID,
		TenantID:           r.TenantID,
		QueryText:          r.QueryText,
		PersonaID:          r.PersonaID,
		PersonaName:        r.PersonaName,
		Decision:           Decision(r.Decision),
		BlockReason:        r.BlockReason,
		CitationCount:      r.CitationCount,
		HallucinationScore: r.HallucinationScore,
		RawResponseText:    r.RawResponseText,
		FinalResponseText:  r.FinalResponseText,
		TotalDurationMs:    r.TotalDurationMs,
		Digest:             r.Digest,
		Timestamp:          r.Timestamp.UTC(),
	}
	fields := []struct {
		src string
		dst interface{}
	}{
		{r.InputGuardrail, &e.InputGuardrail},
		{r.OutputGuardrail, &e.OutputGuardrail},
		{r.RetrievedSections, &e.RetrievedSections},
		{r.Citations, &e.Citations},
		{r.PipelineSteps, &e.PipelineSteps},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("解析审计字段失败: %w", err)
		}
	}
	return e, nil
}

// Summary 返回记录的列表摘要。
func (r *AuditRecord) Summary() AuditSummary {
	return AuditSummary{
		QueryID:            r.QueryID,
		PersonaID:          r.PersonaID,
		PersonaName:        r.PersonaName,
		QueryText:          r.QueryText,
		Decision:           Decision(r.Decision),
		CitationCount:      r.CitationCount,
		HallucinationScore: r.HallucinationScore,
		Timestamp:          r.Timestamp.UTC(),
	}
}
