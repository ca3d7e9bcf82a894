package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"sme-plug-go/internal/model"
)

func TestTruncateUTF8_KeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 5))
	// "€" 占 3 字节，截到第 4 字节时应退回到字符边界
	assert.Equal(t, "a€", truncateUTF8("a€€", 5))
	assert.Equal(t, "a", truncateUTF8("a€€", 3))
}

func TestBuildContextText_TruncatesMultiByteSnippet(t *testing.T) {
	text := "a" + strings.Repeat("§", maxSnippetLen)
	out := buildContextText([]model.RetrievedChunk{{Filename: "GDPR.pdf", Page: "47", Text: text}})

	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "[1] File: GDPR.pdf\nPage: 47\n")
	assert.Contains(t, out, "…")
}
