// Package model 定义了流水线、审计与人设相关的数据结构。
package model

import "time"

// 流水线阶段名称，按执行顺序排列。
const (
	StepInputGuardrails      = "InputGuardrails"
	StepDocumentRetrieval    = "DocumentRetrieval"
	StepGeneration           = "Generation"
	StepCitationVerification = "CitationVerification"
	StepOutputGuardrails     = "OutputGuardrails"
)

// StepOrder 是状态机的固定阶段顺序。
var StepOrder = []string{
	StepInputGuardrails,
	StepDocumentRetrieval,
	StepGeneration,
	StepCitationVerification,
	StepOutputGuardrails,
}

// 拦截原因。
const (
	BlockReasonPolicy           = "policy_block"
	BlockReasonGenerationFailed = "generation_failed"
)

// Query 是一次请求进入时创建的不可变查询。ID 是审计关联键。
type Query struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	PluginID   string    `json:"pluginId"`
	TenantID   string    `json:"tenantId"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// PipelineStep 记录一个已执行阶段的结果。
type PipelineStep struct {
	Name       string            `json:"name"`
	Status     Decision          `json:"status"`
	DurationMs int64             `json:"durationMs"`
	Details    map[string]string `json:"details,omitempty"`
}

// QueryResult 是流水线返回给调用方的结果。
type QueryResult struct {
	QueryID            string           `json:"queryId"`
	PersonaID          string           `json:"personaId"`
	PersonaName        string           `json:"personaName"`
	ResponseText       string           `json:"responseText"`
	Citations          []Citation       `json:"citations"`
	HallucinationScore float64          `json:"hallucinationScore"`
	PipelineSteps      []PipelineStep   `json:"pipelineSteps"`
	TotalDurationMs    int64            `json:"totalDurationMs"`
	InputGuardrail     *GuardrailResult `json:"inputGuardrail"`
	OutputGuardrail    *GuardrailResult `json:"outputGuardrail,omitempty"`
	Decision           Decision         `json:"decision"`
	BlockReason        string           `json:"blockReason,omitempty"`
	RetrievedSections  []SectionRef     `json:"retrievedSections"`
	AuditWarning       string           `json:"auditWarning,omitempty"`
}

// Blocked 判断结果是否被拦截。
func (r *QueryResult) Blocked() bool {
	return r.Decision == DecisionBlocked
}
