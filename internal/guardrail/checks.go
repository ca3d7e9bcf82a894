package guardrail

import (
	"strings"
	"unicode/utf8"

	"sme-plug-go/internal/model"
)

// 输入检查名称，按评估顺序。
const (
	CheckQueryValid           = "query_valid"
	CheckPromptInjectionSafe  = "prompt_injection_safe"
	CheckForbiddenTopicAbsent = "forbidden_topic_absent"
	CheckTopicInScope         = "topic_in_scope"
	CheckPIISafe              = "pii_safe"
)

// 输出检查名称，按评估顺序。
const (
	CheckResponseValid           = "response_valid"
	CheckHasCitations            = "has_citations"
	CheckCitationsVerified       = "citations_verified"
	CheckHallucinationAcceptable = "hallucination_acceptable"
	CheckNoForbiddenTopics       = "no_forbidden_topics"
	CheckPIILeakSafe             = "pii_leak_safe"
	CheckDisclaimerPresent       = "disclaimer_present"
)

func queryValid(text string, maxChars int) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return maxChars <= 0 || utf8.RuneCountInString(trimmed) <= maxChars
}

func responseValid(text string, minChars int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > minChars
}

// termsIn 返回文本中出现的词项（大小写不敏感）。
func termsIn(text string, terms []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			found = append(found, t)
		}
	}
	return found
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// decide 根据检查结果与硬性检查集合得出判定。
func decide(checks model.Checks, isHard func(string) bool) model.Decision {
	decision := model.DecisionPassed
	for _, c := range checks {
		if c.Passed {
			continue
		}
		if isHard(c.Name) {
			return model.DecisionBlocked
		}
		decision = model.DecisionFlagged
	}
	return decision
}
