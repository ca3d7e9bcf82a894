// Package scoring 根据引用校验结果与未引用的断言计算幻觉分数。
//
// 分数定义为 1-(1-c)(1-u)：
//   - c = (unverified + 0.4*partial) / n，n 为引用数，n=0 时 c=0；
//   - u = 未引用的断言句数 / 断言句数，无断言句时 u=0。
//
// 只有全部引用均为 verified 且不存在未引用断言时分数为 0。
package scoring

import (
	"math"
	"strings"
	"unicode"

	"sme-plug-go/internal/citation"
	"sme-plug-go/internal/model"
)

const (
	// PartialWeight 是 partial 引用计入风险的权重。
	PartialWeight = 0.4
	// MinClaimWords 是断言句的最少词数。
	MinClaimWords = 4
	// DefaultThreshold 是通过与标记的分界。
	DefaultThreshold = 0.1
)

// nonClaimPhrases 中的句子不视为事实断言。
var nonClaimPhrases = []string{
	"do not contain",
	"does not contain",
	"cannot verify",
	"can't verify",
	"could not find",
	"no information",
	"not enough information",
	"i don't know",
	"i do not know",
	"not legal advice",
	"not medical advice",
	"disclaimer",
	"please consult",
	"please note",
}

// Result 是一次评分的明细。
type Result struct {
	Score          float64
	CitationRisk   float64
	UncitedRatio   float64
	ClaimSentences int
	UncitedClaims  int
}

// Scorer 定义了幻觉评分器的接口。
type Scorer interface {
	Score(text string, citations []model.Citation) Result
}

type scorer struct{}

var _ Scorer = (*scorer)(nil)

// NewScorer 创建一个新的幻觉评分器。
func NewScorer() Scorer {
	return &scorer{}
}

func (s *scorer) Score(text string, citations []model.Citation) Result {
	var r Result
	if n := len(citations); n > 0 {
		_, partial, unverified := model.CountByStatus(citations)
		r.CitationRisk = (float64(unverified) + PartialWeight*float64(partial)) / float64(n)
	}
	r.ClaimSentences, r.UncitedClaims = uncitedClaims(text)
	if r.ClaimSentences > 0 {
		r.UncitedRatio = float64(r.UncitedClaims) / float64(r.ClaimSentences)
	}
	score := 1 - (1-r.CitationRisk)*(1-r.UncitedRatio)
	score = math.Min(1, math.Max(0, score))
	r.Score = math.Round(score*1e4) / 1e4
	return r
}

type span struct{ start, end int }

// uncitedClaims 统计断言句数量以及其中没有引用标记的句子数。
// 标记位于句内、紧跟句末或紧贴句首时都视为该句已引用。
func uncitedClaims(text string) (claims, uncited int) {
	markers := citation.Tokenize(text)
	clean := citation.Strip(text, markers)
	sentences := splitSentences(clean)

	cited := make([]bool, len(sentences))
	inside := make([]bool, len(sentences))
	owners := make([]int, len(markers))
	for j, m := range markers {
		owners[j] = lastStartingAt(sentences, m.Start)
		if idx := owners[j]; idx >= 0 && m.Start < sentences[idx].end {
			cited[idx] = true
			inside[idx] = true
		}
	}
	for j, m := range markers {
		idx := owners[j]
		if idx >= 0 && m.Start < sentences[idx].end {
			continue
		}
		next := idx + 1
		leads := next < len(sentences) && !strings.Contains(clean[m.End:sentences[next].start], "\n")
		switch {
		case idx < 0:
			// 文本以标记开头
			if leads {
				cited[next] = true
			}
		case leads && (inside[idx] || strings.Contains(clean[sentences[idx].end:m.Start], "\n")):
			// 上一句已有句内标记，或标记另起一行
			cited[next] = true
		default:
			cited[idx] = true
		}
	}

	for i, s := range sentences {
		if !isClaim(clean[s.start:s.end]) {
			continue
		}
		claims++
		if !cited[i] {
			uncited++
		}
	}
	return claims, uncited
}

// lastStartingAt 返回起点不晚于 pos 的最后一个句子下标，没有时返回 -1。
func lastStartingAt(sentences []span, pos int) int {
	idx := -1
	for i, s := range sentences {
		if s.start > pos {
			break
		}
		idx = i
	}
	return idx
}

// splitSentences 按 . ! ? 后接空白或换行切分句子，去掉首尾空白。
func splitSentences(text string) []span {
	var out []span
	start := 0
	emit := func(end int) {
		s, e := start, end
		for s < e && isSpaceByte(text[s]) {
			s++
		}
		for e > s && isSpaceByte(text[e-1]) {
			e--
		}
		if e > s {
			out = append(out, span{s, e})
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			emit(i)
			start = i + 1
			continue
		}
		if (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || isSpaceByte(text[i+1])) {
			emit(i + 1)
			start = i + 1
		}
	}
	emit(len(text))
	return out
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isClaim(sentence string) bool {
	words := strings.FieldsFunc(sentence, func(r rune) bool {
		return unicode.IsSpace(r) || r == '*' || r == '-' || r == '#'
	})
	if len(words) < MinClaimWords {
		return false
	}
	lower := strings.ToLower(sentence)
	for _, p := range nonClaimPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
