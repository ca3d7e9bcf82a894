// Package pipeline 实现查询校验流水线：输入护栏、检索、生成、引用校验、输出护栏与审计。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sme-plug-go/internal/citation"
	"sme-plug-go/internal/config"
	"sme-plug-go/internal/guardrail"
	"sme-plug-go/internal/model"
	"sme-plug-go/internal/scoring"
	"sme-plug-go/pkg/llm"
	"sme-plug-go/pkg/log"
	"sme-plug-go/pkg/metrics"
)

// ErrQueryCanceled 表示调用方在流水线完成前取消了请求，此时不写审计。
var ErrQueryCanceled = errors.New("query canceled by client")

const auditWarningText = "audit record could not be persisted"

var tracer = otel.Tracer("smeplug.pipeline")

// Retriever 按插件范围检索候选段落。
type Retriever interface {
	Retrieve(ctx context.Context, query, pluginID string, topK int) ([]model.RetrievedChunk, error)
}

// AuditWriter 追加写入审计条目。
type AuditWriter interface {
	Create(ctx context.Context, entry *model.AuditEntry) error
}

// EventPublisher 在审计写入成功后发布事件。
type EventPublisher interface {
	PublishAudit(ctx context.Context, entry *model.AuditEntry) error
}

// StepObserver 在每个阶段完成后被调用。
type StepObserver func(step model.PipelineStep)

// Orchestrator 定义了流水线编排器的接口。
type Orchestrator interface {
	Run(ctx context.Context, q model.Query, persona *model.Persona, observer StepObserver) (*model.QueryResult, error)
}

// Deps 汇总编排器的依赖。Events 可以为空。
type Deps struct {
	Guardrails guardrail.Engine
	Retriever  Retriever
	LLM        llm.Client
	Verifier   citation.Verifier
	Scorer     scoring.Scorer
	Audit      AuditWriter
	Events     EventPublisher
	Pipeline   config.PipelineConfig
	Prompt     config.LLMPromptConfig
	Generation *llm.GenerationParams
}

type orchestrator struct {
	Deps
}

var _ Orchestrator = (*orchestrator)(nil)

// NewOrchestrator 创建一个新的编排器。
func NewOrchestrator(d Deps) Orchestrator {
	d.Pipeline = d.Pipeline.Normalize()
	if d.Verifier == nil {
		d.Verifier = citation.NewVerifier(citation.DefaultPartialPenalty)
	}
	if d.Scorer == nil {
		d.Scorer = scoring.NewScorer()
	}
	return &orchestrator{Deps: d}
}

// run 保存单次查询的可变状态，不在查询间共享。
type run struct {
	o        *orchestrator
	ctx      context.Context
	query    model.Query
	persona  *model.Persona
	observer StepObserver
	start    time.Time
	result   *model.QueryResult
	raw      string
}

// Run 依次执行各阶段。被拦截时返回拒答文本；生成失败时 BlockReason 为 generation_failed。
func (o *orchestrator) Run(ctx context.Context, q model.Query, persona *model.Persona, observer StepObserver) (*model.QueryResult, error) {
	if persona == nil {
		return nil, fmt.Errorf("pipeline: persona is required")
	}
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("query.id", q.ID),
		attribute.String("persona.id", persona.ID),
	))
	defer span.End()

	r := &run{
		o:        o,
		ctx:      ctx,
		query:    q,
		persona:  persona,
		observer: observer,
		start:    time.Now(),
		result: &model.QueryResult{
			QueryID:           q.ID,
			PersonaID:         persona.ID,
			PersonaName:       persona.Name,
			Citations:         []model.Citation{},
			PipelineSteps:     []model.PipelineStep{},
			RetrievedSections: []model.SectionRef{},
			Decision:          model.DecisionPassed,
		},
	}
	log.Infof("[Orchestrator] 开始处理查询, queryID: %s, persona: %s", q.ID, persona.ID)

	res, err := r.execute()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("decision", string(res.Decision)),
		attribute.Float64("hallucination.score", res.HallucinationScore),
	)
	return res, nil
}

func (r *run) execute() (*model.QueryResult, error) {
	o := r.o
	res := r.result

	// 1. 输入护栏
	var input *model.GuardrailResult
	r.stage(model.StepInputGuardrails, o.Pipeline.Timeouts.Guardrail, func(ctx context.Context) (model.Decision, map[string]string) {
		input = o.Guardrails.CheckInput(r.query.Text, r.persona)
		return input.Decision, copyDetails(input.Details)
	})
	res.InputGuardrail = input
	if r.canceled() {
		return nil, ErrQueryCanceled
	}
	if input.Decision == model.DecisionBlocked {
		return r.block(model.BlockReasonPolicy, o.Pipeline.RefusalMessage)
	}
	queryText := r.query.Text
	if passed, ok := input.Checks.Get(guardrail.CheckPIISafe); ok && !passed {
		queryText = o.Guardrails.RedactPII(queryText)
	}

	// 2. 检索，失败时降级为无上下文
	var chunks []model.RetrievedChunk
	r.stage(model.StepDocumentRetrieval, o.Pipeline.Timeouts.Retrieval, func(ctx context.Context) (model.Decision, map[string]string) {
		details := map[string]string{}
		rctx, cancel := context.WithTimeout(ctx, o.Pipeline.Timeouts.Retrieval)
		defer cancel()
		got, err := o.Retriever.Retrieve(rctx, queryText, r.persona.ID, o.Pipeline.TopK)
		if err != nil {
			log.Warnf("[Orchestrator] 检索失败, 降级为无上下文, queryID: %s, error: %v", r.query.ID, err)
			details["error"] = err.Error()
			details["degraded"] = "true"
			got = nil
		}
		chunks = normalizeChunks(got)
		details["chunks"] = strconv.Itoa(len(chunks))
		return model.DecisionPassed, details
	})
	if r.canceled() {
		return nil, ErrQueryCanceled
	}
	res.RetrievedSections = model.SectionsOf(chunks)

	// 3. 生成，允许一次较短超时的重试
	var genErr error
	r.stage(model.StepGeneration, o.Pipeline.Timeouts.Generation+o.Pipeline.Timeouts.GenerationRetry, func(ctx context.Context) (model.Decision, map[string]string) {
		messages := BuildMessages(r.persona, chunks, queryText, o.Prompt)
		text, attempts, err := generateWithRetry(ctx, o.LLM, messages, o.Generation, o.Pipeline.Timeouts.Generation, o.Pipeline.Timeouts.GenerationRetry)
		details := map[string]string{"attempts": strconv.Itoa(attempts)}
		if err != nil {
			genErr = err
			details["error"] = err.Error()
			return model.DecisionBlocked, details
		}
		r.raw = text
		details["response_chars"] = strconv.Itoa(len(text))
		return model.DecisionPassed, details
	})
	if r.canceled() {
		return nil, ErrQueryCanceled
	}
	if genErr != nil {
		log.Errorf("[Orchestrator] 生成失败, queryID: %s, error: %v", r.query.ID, genErr)
		return r.block(model.BlockReasonGenerationFailed, o.Pipeline.GenerationFailedText)
	}

	// 4. 引用校验与幻觉评分
	var score scoring.Result
	r.stage(model.StepCitationVerification, o.Pipeline.Timeouts.Verification, func(ctx context.Context) (model.Decision, map[string]string) {
		res.Citations = o.Verifier.Verify(r.raw, chunks)
		score = o.Scorer.Score(r.raw, res.Citations)
		verified, partial, unverified := model.CountByStatus(res.Citations)
		details := map[string]string{
			"citations":           strconv.Itoa(len(res.Citations)),
			"verified":            strconv.Itoa(verified),
			"partial":             strconv.Itoa(partial),
			"unverified":          strconv.Itoa(unverified),
			"hallucination_score": strconv.FormatFloat(score.Score, 'f', 4, 64),
			"claim_sentences":     strconv.Itoa(score.ClaimSentences),
			"uncited_claims":      strconv.Itoa(score.UncitedClaims),
		}
		if unverified > 0 || partial > 0 || score.Score > o.Pipeline.HallucinationThreshold {
			return model.DecisionFlagged, details
		}
		return model.DecisionPassed, details
	})
	res.HallucinationScore = score.Score
	metrics.HallucinationScore.Observe(score.Score)
	if r.canceled() {
		return nil, ErrQueryCanceled
	}

	// 5. 输出护栏
	var output *model.GuardrailResult
	r.stage(model.StepOutputGuardrails, o.Pipeline.Timeouts.Guardrail, func(ctx context.Context) (model.Decision, map[string]string) {
		output = o.Guardrails.CheckOutput(guardrail.OutputInput{
			Response:           r.raw,
			Citations:          res.Citations,
			HallucinationScore: score.Score,
		}, r.persona)
		return output.Decision, copyDetails(output.Details)
	})
	res.OutputGuardrail = output
	if r.canceled() {
		return nil, ErrQueryCanceled
	}
	if output.Decision == model.DecisionBlocked {
		return r.block(model.BlockReasonPolicy, o.Pipeline.RefusalMessage)
	}

	res.ResponseText = r.raw
	for _, s := range res.PipelineSteps {
		if s.Status == model.DecisionFlagged {
			res.Decision = model.DecisionFlagged
		}
	}
	return r.finish()
}

// stage 计时执行一个阶段并追加 PipelineStep。budget 仅用于超时统计，阶段本身的超时由 fn 内部控制。
func (r *run) stage(name string, budget time.Duration, fn func(ctx context.Context) (model.Decision, map[string]string)) {
	ctx, span := tracer.Start(r.ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	status, details := fn(ctx)
	elapsed := time.Since(start)

	if budget > 0 && elapsed > budget {
		if details == nil {
			details = map[string]string{}
		}
		details["budget_exceeded"] = "true"
		metrics.StageBudgetExceeded.WithLabelValues(name).Inc()
		log.Warnf("[Orchestrator] 阶段 %s 超出时间预算, 耗时: %s, 预算: %s", name, elapsed, budget)
	}
	metrics.StageDuration.WithLabelValues(name, string(status)).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.String("status", string(status)))
	if status == model.DecisionBlocked {
		span.SetStatus(codes.Error, "blocked")
	}

	step := model.PipelineStep{
		Name:       name,
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
		Details:    details,
	}
	r.result.PipelineSteps = append(r.result.PipelineSteps, step)
	if r.observer != nil {
		r.observer(step)
	}
}

func (r *run) canceled() bool {
	return r.ctx.Err() != nil
}

func (r *run) block(reason, text string) (*model.QueryResult, error) {
	r.result.Decision = model.DecisionBlocked
	r.result.BlockReason = reason
	r.result.ResponseText = text
	log.Infof("[Orchestrator] 查询被拦截, queryID: %s, reason: %s", r.query.ID, reason)
	return r.finish()
}

// finish 写入审计并返回结果。审计写入使用独立超时，不受请求取消影响。
func (r *run) finish() (*model.QueryResult, error) {
	res := r.result
	res.TotalDurationMs = time.Since(r.start).Milliseconds()
	if r.canceled() {
		return nil, ErrQueryCanceled
	}
	metrics.QueriesTotal.WithLabelValues(string(res.Decision), res.BlockReason).Inc()

	entry := r.auditEntry()
	if err := entry.Seal(); err != nil {
		r.auditFailed(err)
		return res, nil
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.o.Pipeline.Timeouts.Audit)
	defer cancel()
	if err := r.o.Audit.Create(actx, entry); err != nil {
		r.auditFailed(err)
		return res, nil
	}
	if r.o.Events != nil {
		if err := r.o.Events.PublishAudit(actx, entry); err != nil {
			metrics.AuditEventFailures.Inc()
			log.Warnf("[Orchestrator] 发布审计事件失败, queryID: %s, error: %v", res.QueryID, err)
		}
	}
	log.Infof("[Orchestrator] 查询处理完成, queryID: %s, decision: %s, 耗时: %dms", res.QueryID, res.Decision, res.TotalDurationMs)
	return res, nil
}

func (r *run) auditFailed(err error) {
	metrics.AuditWriteFailures.Inc()
	log.Errorw("[Orchestrator] 审计写入失败", "queryID", r.result.QueryID, "error", err)
	r.result.AuditWarning = auditWarningText
}

func (r *run) auditEntry() *model.AuditEntry {
	res := r.result
	steps := make([]model.PipelineStep, len(res.PipelineSteps))
	copy(steps, res.PipelineSteps)
	return &model.AuditEntry{
		QueryID:            r.query.ID,
		TenantID:           r.query.TenantID,
		QueryText:          r.query.Text,
		PersonaID:          res.PersonaID,
		PersonaName:        res.PersonaName,
		Decision:           res.Decision,
		BlockReason:        res.BlockReason,
		CitationCount:      len(res.Citations),
		HallucinationScore: res.HallucinationScore,
		InputGuardrail:     res.InputGuardrail,
		OutputGuardrail:    res.OutputGuardrail,
		RetrievedSections:  res.RetrievedSections,
		Citations:          res.Citations,
		PipelineSteps:      steps,
		RawResponseText:    r.raw,
		FinalResponseText:  res.ResponseText,
		TotalDurationMs:    res.TotalDurationMs,
		// MySQL datetime(6) 只保留微秒
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// normalizeChunks 将相关度限制在 [0,1] 并按降序排列。
func normalizeChunks(chunks []model.RetrievedChunk) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.RelevanceScore < 0 {
			c.RelevanceScore = 0
		}
		if c.RelevanceScore > 1 {
			c.RelevanceScore = 1
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out
}

func copyDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
