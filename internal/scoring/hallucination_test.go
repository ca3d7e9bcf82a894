package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sme-plug-go/internal/model"
)

func TestScore_AllVerifiedNoUncitedClaims(t *testing.T) {
	s := NewScorer()
	text := "Under Article 83, fines can reach EUR 20 million or 4% of annual turnover [Source: GDPR.pdf, Page 47]."
	r := s.Score(text, []model.Citation{{Status: model.CitationVerified, Confidence: 0.9}})

	assert.Zero(t, r.Score)
	assert.Equal(t, 1, r.ClaimSentences)
	assert.Zero(t, r.UncitedClaims)
}

func TestScore_MarkerAfterSentence(t *testing.T) {
	s := NewScorer()
	text := "Fines can reach EUR 20 million in total. [Source: GDPR.pdf, Page 47]\nThe documents do not contain more detail."
	r := s.Score(text, []model.Citation{{Status: model.CitationVerified}})
	assert.Zero(t, r.Score)
	assert.Equal(t, 1, r.ClaimSentences)
}

func TestScore_MarkerBeforeSentence(t *testing.T) {
	s := NewScorer()
	text := "[Source: GDPR.pdf, Page 47] Fines under Article 83 can reach 20 million euros."
	r := s.Score(text, []model.Citation{{Status: model.CitationVerified, Confidence: 0.9}})

	assert.Zero(t, r.Score)
	assert.Equal(t, 1, r.ClaimSentences)
	assert.Zero(t, r.UncitedClaims)
}

func TestScore_LeadingMarkerOnNewLine(t *testing.T) {
	s := NewScorer()
	text := "Controllers must notify breaches within 72 hours [Source: GDPR.pdf, Page 52].\n" +
		"[Source: GDPR.pdf, Page 47] Fines under Article 83 can reach 20 million euros."
	r := s.Score(text, []model.Citation{
		{Status: model.CitationVerified},
		{Status: model.CitationVerified},
	})

	assert.Zero(t, r.Score)
	assert.Equal(t, 2, r.ClaimSentences)
	assert.Zero(t, r.UncitedClaims)
}

func TestScore_AllUnverified(t *testing.T) {
	s := NewScorer()
	text := "Fines are capped at 10% of turnover [Source: Made Up.pdf, Page 3]."
	r := s.Score(text, []model.Citation{{Status: model.CitationUnverified}})
	assert.Equal(t, 1.0, r.Score)
}

func TestScore_PartialAndUncited(t *testing.T) {
	s := NewScorer()
	text := "Controllers must notify breaches within 72 hours [Source: GDPR.pdf]. " +
		"Processors face the same penalties as controllers do."
	r := s.Score(text, []model.Citation{{Status: model.CitationPartial}})

	// c = 0.4, u = 0.5 => 1 - 0.6*0.5
	assert.InDelta(t, 0.4, r.CitationRisk, 1e-9)
	assert.InDelta(t, 0.5, r.UncitedRatio, 1e-9)
	assert.Equal(t, 0.7, r.Score)
}

func TestScore_NoCitationsNoClaims(t *testing.T) {
	s := NewScorer()
	r := s.Score("The provided documents do not contain information about this topic.", nil)
	assert.Zero(t, r.Score)
	assert.Zero(t, r.ClaimSentences)
}

func TestScore_UncitedClaimsOnly(t *testing.T) {
	s := NewScorer()
	r := s.Score("GDPR fines can be as high as twenty million euros.", nil)
	assert.Equal(t, 1.0, r.Score)
}

func TestScore_Monotonic(t *testing.T) {
	s := NewScorer()
	text := "A verified claim sentence here [Source: a.pdf, Page 1]. Another claim sentence here [Source: b.pdf, Page 2]."
	verified := s.Score(text, []model.Citation{{Status: model.CitationVerified}, {Status: model.CitationVerified}})
	partial := s.Score(text, []model.Citation{{Status: model.CitationVerified}, {Status: model.CitationPartial}})
	unverified := s.Score(text, []model.Citation{{Status: model.CitationVerified}, {Status: model.CitationUnverified}})

	assert.Less(t, verified.Score, partial.Score)
	assert.Less(t, partial.Score, unverified.Score)
	assert.LessOrEqual(t, unverified.Score, 1.0)
}

func TestSplitSentences_DecimalsStayTogether(t *testing.T) {
	spans := splitSentences("The rate is 4.5 percent. Next one!")
	assert.Len(t, spans, 2)
}
