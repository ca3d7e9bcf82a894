package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-plug-go/internal/config"
	"sme-plug-go/internal/model"
	"sme-plug-go/pkg/llm"
)

// splitLLM 根据系统提示区分受控分支与无护栏分支。
func splitLLM(guarded string, raw func(ctx context.Context) (string, error)) *fakeLLM {
	return &fakeLLM{fn: func(ctx context.Context, _ int, messages []llm.Message) (string, error) {
		if messages[0].Content == defaultVanilla {
			return raw(ctx)
		}
		return guarded, nil
	}}
}

func newRunner(h *harness, cfg config.PipelineConfig) ComparisonRunner {
	return NewComparisonRunner(h.orch, h.llm, nil, cfg, config.LLMPromptConfig{}, config.LLMGenerationConfig{})
}

func TestCompare_DetectsFabricatedCitation(t *testing.T) {
	client := splitLLM(gdprAnswer, func(context.Context) (string, error) {
		return "GDPR fines are capped at 2% of turnover [Source: GDPR.pdf, Page 112].", nil
	})
	h := newHarness(t, gdprRetriever(), client)

	res, err := newRunner(h, config.DefaultPipeline()).Compare(context.Background(), newQuery("What are the GDPR penalties under Article 83?"), standardPersona())
	require.NoError(t, err)

	assert.True(t, res.Verdict.SMEVerified)
	assert.True(t, res.Verdict.HallucinationDetected)
	assert.NotEmpty(t, res.Verdict.Summary)

	require.Len(t, res.Raw.Citations, 1)
	assert.Equal(t, model.CitationPartial, res.Raw.Citations[0].Status)
	assert.True(t, res.Raw.HasCitations)
	assert.Equal(t, gdprAnswer, res.SMEPlugResponse)
	assert.Equal(t, res.Raw.Response, res.VanillaResponse)
	assert.Equal(t, 1, res.Verified.ChunksUsed)
	assert.Equal(t, "legal", res.PluginID)
	require.Len(t, h.audit.entries, 1)
}

func TestCompare_UnknownFileIsHallucination(t *testing.T) {
	client := splitLLM(gdprAnswer, func(context.Context) (string, error) {
		return "Fines are set out in the directive [Source: EU Directive 95-46.pdf, Page 9].", nil
	})
	h := newHarness(t, gdprRetriever(), client)

	res, err := newRunner(h, config.DefaultPipeline()).Compare(context.Background(), newQuery("What are the GDPR penalties?"), standardPersona())
	require.NoError(t, err)
	assert.Equal(t, model.CitationUnverified, res.Raw.Citations[0].Status)
	assert.True(t, res.Verdict.HallucinationDetected)
}

func TestCompare_CitationStyleClaimWithoutMarkers(t *testing.T) {
	client := splitLLM(gdprAnswer, func(context.Context) (string, error) {
		return "According to Article 83 of the GDPR, fines can reach 4% of turnover.", nil
	})
	h := newHarness(t, gdprRetriever(), client)

	res, err := newRunner(h, config.DefaultPipeline()).Compare(context.Background(), newQuery("What are the GDPR penalties?"), standardPersona())
	require.NoError(t, err)
	assert.Empty(t, res.Raw.Citations)
	assert.False(t, res.Raw.HasCitations)
	assert.True(t, res.Verdict.HallucinationDetected)
}

func TestCompare_RawFailureDoesNotCancelGuarded(t *testing.T) {
	client := splitLLM(gdprAnswer, func(context.Context) (string, error) {
		return "", errors.New("raw upstream down")
	})
	h := newHarness(t, gdprRetriever(), client)

	res, err := newRunner(h, config.DefaultPipeline()).Compare(context.Background(), newQuery("What are the GDPR penalties?"), standardPersona())
	require.NoError(t, err)
	assert.Equal(t, "raw upstream down", res.Raw.Error)
	assert.False(t, res.Verdict.HallucinationDetected)
	assert.True(t, res.Verdict.SMEVerified)
	assert.Equal(t, gdprAnswer, res.Verified.Response)
}

func TestCompare_RawTimeoutIsIndependent(t *testing.T) {
	client := splitLLM(gdprAnswer, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := newHarness(t, gdprRetriever(), client)
	cfg := config.DefaultPipeline()
	cfg.Comparison.RawTimeout = 20 * time.Millisecond

	res, err := newRunner(h, cfg).Compare(context.Background(), newQuery("What are the GDPR penalties?"), standardPersona())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Raw.Error)
	assert.Equal(t, model.DecisionPassed, res.Result.Decision)
}
