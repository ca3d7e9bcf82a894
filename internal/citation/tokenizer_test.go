package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_Formats(t *testing.T) {
	text := "Fines reach EUR 20 million [Source: GDPR.pdf, Page 47, Section Article 83]. " +
		"Controllers must keep records [source: gdpr_guide, pg 12]. " +
		"See also the annex [SOURCE: Annex B.docx, p. 3, §4.2, Scope]."

	markers := Tokenize(text)
	require.Len(t, markers, 3)

	assert.Equal(t, "GDPR.pdf", markers[0].File)
	assert.Equal(t, "47", markers[0].Page)
	assert.Equal(t, "Article 83", markers[0].Section)
	assert.Equal(t, "Fines reach EUR 20 million", markers[0].Claim)
	assert.Equal(t, "[Source: GDPR.pdf, Page 47, Section Article 83]", markers[0].Raw)
	assert.Equal(t, markers[0].Raw, text[markers[0].Start:markers[0].End])

	assert.Equal(t, "gdpr_guide", markers[1].File)
	assert.Equal(t, "12", markers[1].Page)
	assert.Empty(t, markers[1].Section)
	assert.Equal(t, "Controllers must keep records", markers[1].Claim)

	assert.Equal(t, "Annex B.docx", markers[2].File)
	assert.Equal(t, "3", markers[2].Page)
	assert.Equal(t, "4.2, Scope", markers[2].Section)

	assert.Less(t, markers[0].Start, markers[1].Start)
	assert.Less(t, markers[1].Start, markers[2].Start)
}

func TestTokenize_ClaimAfterSentenceEnd(t *testing.T) {
	markers := Tokenize("The regulation applies to all processors. [Source: GDPR.pdf, Page 2]")
	require.Len(t, markers, 1)
	assert.Equal(t, "The regulation applies to all processors", markers[0].Claim)
}

func TestTokenize_IgnoresMalformed(t *testing.T) {
	assert.Empty(t, Tokenize("no markers here"))
	assert.Empty(t, Tokenize("unterminated [Source: GDPR.pdf, Page 4"))
	assert.Empty(t, Tokenize("empty file [Source: , Page 4]"))

	markers := Tokenize("broken [Source: a.pdf [Source: b.pdf, Page 1]")
	require.Len(t, markers, 1)
	assert.Equal(t, "b.pdf", markers[0].File)
}

func TestTokenize_BarePageNumber(t *testing.T) {
	markers := Tokenize("Claim text goes here [Source: manual.pdf, 15]")
	require.Len(t, markers, 1)
	assert.Equal(t, "15", markers[0].Page)
}

func TestStrip(t *testing.T) {
	text := "A claim [Source: x.pdf] here."
	markers := Tokenize(text)
	stripped := Strip(text, markers)
	assert.Len(t, stripped, len(text))
	assert.NotContains(t, stripped, "Source")
}
