package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-plug-go/internal/model"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleEntry(t *testing.T, queryID, tenantID string, ts time.Time) *model.AuditEntry {
	t.Helper()
	e := &model.AuditEntry{
		QueryID:            queryID,
		TenantID:           tenantID,
		QueryText:          "What are the GDPR penalties under Article 83?",
		PersonaID:          "legal",
		PersonaName:        "Legal Compliance Advisor",
		Decision:           model.DecisionPassed,
		CitationCount:      1,
		HallucinationScore: 0.0421,
		InputGuardrail: &model.GuardrailResult{
			Stage:    model.StageInput,
			Decision: model.DecisionPassed,
			Checks: model.Checks{
				{Name: "query_valid", Passed: true},
				{Name: "prompt_injection_safe", Passed: true},
				{Name: "pii_safe", Passed: true},
			},
		},
		RetrievedSections: []model.SectionRef{{Filename: "GDPR.pdf", Page: "47", Section: "Article 83", RelevanceScore: 0.9}},
		Citations: []model.Citation{{
			SourceFile: "GDPR.pdf", Page: "47", Section: "Article 83",
			Confidence: 0.9, Status: model.CitationVerified,
			Claim: "Fines can reach 4% of turnover.", Marker: "[Source: GDPR.pdf, Page 47, Section Article 83]",
		}},
		PipelineSteps: []model.PipelineStep{
			{Name: model.StepInputGuardrails, Status: model.DecisionPassed, DurationMs: 1},
			{Name: model.StepDocumentRetrieval, Status: model.DecisionPassed, DurationMs: 12},
			{Name: model.StepGeneration, Status: model.DecisionPassed, DurationMs: 800},
			{Name: model.StepCitationVerification, Status: model.DecisionPassed, DurationMs: 1},
			{Name: model.StepOutputGuardrails, Status: model.DecisionPassed, DurationMs: 1},
		},
		RawResponseText:   "Fines can reach 4% of turnover [Source: GDPR.pdf, Page 47, Section Article 83].",
		FinalResponseText: "Fines can reach 4% of turnover [Source: GDPR.pdf, Page 47, Section Article 83].",
		TotalDurationMs:   815,
		Timestamp:         ts.UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, e.Seal())
	return e
}

func TestBadgerAudit_RoundTripPreservesEntry(t *testing.T) {
	repo := NewBadgerAuditRepository(openTestBadger(t))
	ctx := context.Background()
	in := sampleEntry(t, "q-1", "acme", time.Now())
	require.NoError(t, repo.Create(ctx, in))

	out, err := repo.Get(ctx, "acme", "q-1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityOK, out.Integrity)
	assert.Equal(t, in.HallucinationScore, out.HallucinationScore)

	wantCitations, _ := json.Marshal(in.Citations)
	gotCitations, _ := json.Marshal(out.Citations)
	assert.Equal(t, string(wantCitations), string(gotCitations))

	wantSteps, _ := json.Marshal(in.PipelineSteps)
	gotSteps, _ := json.Marshal(out.PipelineSteps)
	assert.Equal(t, string(wantSteps), string(gotSteps))

	wantChecks, _ := json.Marshal(in.InputGuardrail.Checks)
	gotChecks, _ := json.Marshal(out.InputGuardrail.Checks)
	assert.Equal(t, string(wantChecks), string(gotChecks))
}

func TestBadgerAudit_DuplicateRejected(t *testing.T) {
	repo := NewBadgerAuditRepository(openTestBadger(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleEntry(t, "q-1", "acme", time.Now())))
	err := repo.Create(ctx, sampleEntry(t, "q-1", "acme", time.Now()))
	assert.ErrorIs(t, err, ErrAuditDuplicate)
}

func TestBadgerAudit_GetOtherTenantIsNotFound(t *testing.T) {
	repo := NewBadgerAuditRepository(openTestBadger(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleEntry(t, "q-1", "acme", time.Now())))

	_, err := repo.Get(ctx, "globex", "q-1")
	assert.ErrorIs(t, err, ErrAuditNotFound)
	_, err = repo.Get(ctx, "acme", "missing")
	assert.ErrorIs(t, err, ErrAuditNotFound)
}

func TestBadgerAudit_ListNewestFirstWithPaging(t *testing.T) {
	repo := NewBadgerAuditRepository(openTestBadger(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"q-1", "q-2", "q-3"} {
		require.NoError(t, repo.Create(ctx, sampleEntry(t, id, "acme", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, sampleEntry(t, "other", "globex", base.Add(time.Hour))))

	page1, total, err := repo.List(ctx, "acme", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "q-3", page1[0].QueryID)
	assert.Equal(t, "q-2", page1[1].QueryID)

	page2, _, err := repo.List(ctx, "acme", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "q-1", page2[0].QueryID)
}

func TestBadgerAudit_ListDoesNotMatchTenantWithSharedPrefix(t *testing.T) {
	repo := NewBadgerAuditRepository(openTestBadger(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, sampleEntry(t, "q-acme", "acme", now)))
	require.NoError(t, repo.Create(ctx, sampleEntry(t, "q-eu", "acme:eu", now.Add(time.Second))))

	items, total, err := repo.List(ctx, "acme", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "q-acme", items[0].QueryID)

	items, total, err = repo.List(ctx, "acme:eu", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "q-eu", items[0].QueryID)
}

func TestBadgerAudit_TamperedEntryReportsMismatch(t *testing.T) {
	db := openTestBadger(t)
	repo := NewBadgerAuditRepository(db)
	ctx := context.Background()
	e := sampleEntry(t, "q-1", "acme", time.Now())
	require.NoError(t, repo.Create(ctx, e))

	e.FinalResponseText = "altered"
	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey("q-1"), data)
	}))

	out, err := repo.Get(ctx, "acme", "q-1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityMismatch, out.Integrity)
}

func TestMemoryPersonaState_ReturnsPrevious(t *testing.T) {
	repo := NewPersonaStateRepository(nil)
	ctx := context.Background()

	active, err := repo.GetActive(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, active)

	prev, err := repo.SetActive(ctx, "acme", "legal")
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = repo.SetActive(ctx, "acme", "healthcare")
	require.NoError(t, err)
	assert.Equal(t, "legal", prev)

	active, _ = repo.GetActive(ctx, "globex")
	assert.Empty(t, active)
}
