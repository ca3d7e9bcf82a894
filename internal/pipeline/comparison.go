package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"sme-plug-go/internal/citation"
	"sme-plug-go/internal/config"
	"sme-plug-go/internal/model"
	"sme-plug-go/pkg/llm"
	"sme-plug-go/pkg/log"
)

// citationStyleClaim 匹配未带引用标记却引用法规或文献的说法。
var citationStyleClaim = regexp.MustCompile(`(?i)(\baccording to\b|\bas stated in\b|\bpursuant to\b|\bunder (article|section|clause|regulation)\b|\barticle\s+\d+|\bsection\s+\d+|§\s*\d+|\bpage\s+\d+|\bcited in\b)`)

const rawMaxTokens = 1024

// ComparisonRunner 同时运行受控流水线与无护栏生成。
type ComparisonRunner interface {
	Compare(ctx context.Context, q model.Query, persona *model.Persona) (*model.ComparisonResult, error)
}

type comparisonRunner struct {
	orchestrator   Orchestrator
	llm            llm.Client
	verifier       citation.Verifier
	prompt         config.LLMPromptConfig
	rawParams      *llm.GenerationParams
	guardedTimeout time.Duration
	rawTimeout     time.Duration
}

var _ ComparisonRunner = (*comparisonRunner)(nil)

// NewComparisonRunner 创建一个新的对比运行器。
func NewComparisonRunner(o Orchestrator, client llm.Client, verifier citation.Verifier, cfg config.PipelineConfig, prompt config.LLMPromptConfig, gen config.LLMGenerationConfig) ComparisonRunner {
	cfg = cfg.Normalize()
	if verifier == nil {
		verifier = citation.NewVerifier(citation.DefaultPartialPenalty)
	}
	temp := gen.VanillaTemperature
	if temp == 0 {
		temp = 0.7
	}
	maxTokens := rawMaxTokens
	return &comparisonRunner{
		orchestrator:   o,
		llm:            client,
		verifier:       verifier,
		prompt:         prompt,
		rawParams:      &llm.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens},
		guardedTimeout: cfg.Comparison.GuardedTimeout,
		rawTimeout:     cfg.Comparison.RawTimeout,
	}
}

// Compare 两个分支各自超时、互不取消，全部结束后合并结果。
func (c *comparisonRunner) Compare(ctx context.Context, q model.Query, persona *model.Persona) (*model.ComparisonResult, error) {
	var (
		g          errgroup.Group
		guarded    *model.QueryResult
		guardedErr error
		rawText    string
		rawErr     error
	)
	g.Go(func() error {
		gctx, cancel := context.WithTimeout(ctx, c.guardedTimeout)
		defer cancel()
		guarded, guardedErr = c.orchestrator.Run(gctx, q, persona, nil)
		return nil
	})
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, c.rawTimeout)
		defer cancel()
		rawText, rawErr = c.llm.ChatMessages(rctx, VanillaMessages(q.Text, c.prompt), c.rawParams)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ErrQueryCanceled
	}
	if guardedErr != nil {
		if errors.Is(guardedErr, ErrQueryCanceled) {
			guardedErr = fmt.Errorf("guarded branch timed out after %s", c.guardedTimeout)
		}
		return nil, fmt.Errorf("comparison: %w", guardedErr)
	}

	result := &model.ComparisonResult{
		Query:    q.Text,
		PluginID: persona.ID,
		Verified: model.VerifiedSide{
			Response:     guarded.ResponseText,
			Citations:    guarded.Citations,
			HasCitations: len(guarded.Citations) > 0,
			ChunksUsed:   len(guarded.RetrievedSections),
		},
		SMEPlugResponse: guarded.ResponseText,
		Result:          guarded,
	}

	if rawErr != nil {
		log.Warnf("[ComparisonRunner] 无护栏分支失败, queryID: %s, error: %v", q.ID, rawErr)
		result.Raw = model.RawSide{Citations: []model.Citation{}, Error: rawErr.Error()}
	} else {
		// 用受控一侧的检索结果校验无护栏回答中的引用
		rawCitations := c.verifier.Verify(rawText, chunksFromSections(guarded.RetrievedSections))
		result.Raw = model.RawSide{
			Response:     rawText,
			Citations:    rawCitations,
			HasCitations: len(rawCitations) > 0,
		}
		result.VanillaResponse = rawText
	}

	result.Verdict = verdict(result.Raw, guarded.Citations, rawErr == nil)
	return result, nil
}

func verdict(raw model.RawSide, guardedCitations []model.Citation, rawOK bool) model.Verdict {
	verified, _, _ := model.CountByStatus(guardedCitations)
	v := model.Verdict{SMEVerified: verified > 0}
	if rawOK {
		v.HallucinationDetected = hasFabricated(raw.Citations) ||
			(len(raw.Citations) == 0 && citationStyleClaim.MatchString(raw.Response))
	}
	switch {
	case v.HallucinationDetected && v.SMEVerified:
		v.Summary = "The raw model cited sources that are not in the knowledge base. SME-Plug cited verified sources from your documents."
	case v.HallucinationDetected:
		v.Summary = "The raw model cited sources that are not in the knowledge base. SME-Plug found no verifiable source for this query."
	case v.SMEVerified:
		v.Summary = "SME-Plug cited verified sources from your documents. No fabricated citations were detected in the raw answer."
	case !rawOK:
		v.Summary = "The raw model did not answer. Only the SME-Plug result is available."
	default:
		v.Summary = "No verified citations on either side. Upload documents to see verified citations in action."
	}
	return v
}

// hasFabricated 判断是否存在指向未检索文件或页码的引用。
// 文件匹配但页码不在检索结果中（partial 且带页码）同样视为捏造。
func hasFabricated(citations []model.Citation) bool {
	for _, c := range citations {
		if c.Status == model.CitationUnverified || (c.Status == model.CitationPartial && c.Page != "") {
			return true
		}
	}
	return false
}

func chunksFromSections(sections []model.SectionRef) []model.RetrievedChunk {
	chunks := make([]model.RetrievedChunk, 0, len(sections))
	for _, s := range sections {
		chunks = append(chunks, model.RetrievedChunk{
			Filename:       s.Filename,
			Page:           s.Page,
			Section:        s.Section,
			RelevanceScore: s.RelevanceScore,
		})
	}
	return chunks
}
