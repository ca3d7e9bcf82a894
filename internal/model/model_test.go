package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecks_PreservesEvaluationOrder(t *testing.T) {
	checks := Checks{
		{Name: "query_valid", Passed: true},
		{Name: "prompt_injection_safe", Passed: false},
		{Name: "forbidden_topic_absent", Passed: true},
		{Name: "pii_safe", Passed: true},
	}
	data, err := json.Marshal(checks)
	require.NoError(t, err)
	assert.Equal(t, `{"query_valid":true,"prompt_injection_safe":false,"forbidden_topic_absent":true,"pii_safe":true}`, string(data))

	var back Checks
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, checks, back)

	again, err := json.Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
	assert.Equal(t, []string{"prompt_injection_safe"}, back.Failed())

	passed, ok := back.Get("pii_safe")
	assert.True(t, ok)
	assert.True(t, passed)
	_, ok = back.Get("topic_in_scope")
	assert.False(t, ok)
}

func TestChecks_RejectsNonObject(t *testing.T) {
	var c Checks
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"a":"yes"}`), &c))
	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	assert.Nil(t, c)
}

func newEntry() *AuditEntry {
	return &AuditEntry{
		QueryID:   "q-1",
		TenantID:  "acme",
		QueryText: "What are the GDPR penalties?",
		Decision:  DecisionPassed,
		Citations: []Citation{{SourceFile: "GDPR.pdf", Page: "47", Confidence: 0.9, Status: CitationVerified}},
		InputGuardrail: &GuardrailResult{
			Stage:    StageInput,
			Checks:   Checks{{Name: "query_valid", Passed: true}},
			Decision: DecisionPassed,
		},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC),
	}
}

func TestAuditEntry_DigestIgnoresIntegrityAndZone(t *testing.T) {
	e := newEntry()
	require.NoError(t, e.Seal())
	assert.Len(t, e.Digest, 64)

	e.CheckIntegrity()
	assert.Equal(t, IntegrityOK, e.Integrity)

	local := *e
	local.Timestamp = e.Timestamp.In(time.FixedZone("CET", 3600))
	local.CheckIntegrity()
	assert.Equal(t, IntegrityOK, local.Integrity)
}

func TestAuditEntry_TamperDetected(t *testing.T) {
	e := newEntry()
	require.NoError(t, e.Seal())
	e.Citations[0].Status = CitationPartial
	e.CheckIntegrity()
	assert.Equal(t, IntegrityMismatch, e.Integrity)
}

func TestAuditRecord_RoundTrip(t *testing.T) {
	e := newEntry()
	e.PipelineSteps = []PipelineStep{{Name: StepInputGuardrails, Status: DecisionPassed, DurationMs: 2}}
	require.NoError(t, e.Seal())

	rec, err := NewAuditRecord(e)
	require.NoError(t, err)
	assert.Equal(t, `{"query_valid":true}`, mustField(t, rec.InputGuardrail, "checks"))

	back, err := rec.Entry()
	require.NoError(t, err)
	back.CheckIntegrity()
	assert.Equal(t, IntegrityOK, back.Integrity)
	assert.Equal(t, e.Citations, back.Citations)
	assert.Equal(t, e.PipelineSteps, back.PipelineSteps)
	assert.Equal(t, "q-1", rec.Summary().QueryID)
}

func mustField(t *testing.T, raw, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return string(m[field])
}

func TestCountByStatus(t *testing.T) {
	v, p, u := CountByStatus([]Citation{
		{Status: CitationVerified}, {Status: CitationPartial}, {Status: CitationUnverified}, {Status: CitationVerified},
	})
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, u)
}
