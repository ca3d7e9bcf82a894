package citation

import (
	"math"
	"path"
	"strings"

	"sme-plug-go/internal/model"
)

// DefaultPartialPenalty 是仅文件名匹配时的置信度系数。
const DefaultPartialPenalty = 0.6

// Verifier 定义了引用校验器的接口。
type Verifier interface {
	// Verify 解析文本中的标记并逐一校验，输出顺序与标记顺序一致。
	Verify(text string, chunks []model.RetrievedChunk) []model.Citation
	// VerifyMarkers 校验已解析的标记。
	VerifyMarkers(markers []Marker, chunks []model.RetrievedChunk) []model.Citation
}

type verifier struct {
	partialPenalty float64
}

var _ Verifier = (*verifier)(nil)

// NewVerifier 创建一个新的引用校验器。partialPenalty 不在 (0,1] 内时使用默认值。
func NewVerifier(partialPenalty float64) Verifier {
	if partialPenalty <= 0 || partialPenalty > 1 {
		partialPenalty = DefaultPartialPenalty
	}
	return &verifier{partialPenalty: partialPenalty}
}

func (v *verifier) Verify(text string, chunks []model.RetrievedChunk) []model.Citation {
	return v.VerifyMarkers(Tokenize(text), chunks)
}

func (v *verifier) VerifyMarkers(markers []Marker, chunks []model.RetrievedChunk) []model.Citation {
	citations := make([]model.Citation, 0, len(markers))
	for _, m := range markers {
		citations = append(citations, v.match(m, chunks))
	}
	return citations
}

func (v *verifier) match(m Marker, chunks []model.RetrievedChunk) model.Citation {
	c := model.Citation{
		SourceFile: m.File,
		Page:       m.Page,
		Section:    m.Section,
		Status:     model.CitationUnverified,
		Claim:      m.Claim,
		Marker:     m.Raw,
	}
	bestPage, bestFile := -1.0, -1.0
	for _, chunk := range chunks {
		if !SameFile(m.File, chunk.Filename) {
			continue
		}
		if m.Page != "" && samePage(m.Page, chunk.Page) {
			bestPage = math.Max(bestPage, chunk.RelevanceScore)
		}
		bestFile = math.Max(bestFile, chunk.RelevanceScore)
	}
	switch {
	case bestPage >= 0:
		c.Status = model.CitationVerified
		c.Confidence = clamp01(bestPage)
	case bestFile >= 0:
		c.Status = model.CitationPartial
		c.Confidence = round4(clamp01(bestFile) * v.partialPenalty)
	}
	return c
}

// SameFile 比较文件名：大小写不敏感，空格与下划线等价；标记无扩展名时按主文件名比较。
func SameFile(marker, filename string) bool {
	a := normalizeName(marker)
	b := normalizeName(filename)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if path.Ext(a) == "" {
		return a == strings.TrimSuffix(b, path.Ext(b))
	}
	return false
}

func normalizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	name = strings.ToLower(name)
	return strings.Join(strings.FieldsFunc(name, func(r rune) bool { return r == ' ' || r == '_' }), "_")
}

func samePage(a, b string) bool {
	a = strings.TrimLeft(strings.TrimSpace(a), "0")
	b = strings.TrimLeft(strings.TrimSpace(b), "0")
	return a != "" && strings.EqualFold(a, b)
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
