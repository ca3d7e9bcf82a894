// Package guardrail 实现输入与输出护栏。每个检查都是纯函数，相同文本、策略与人设得到相同判定。
package guardrail

import (
	"strconv"
	"strings"

	"sme-plug-go/internal/model"
)

// OutputInput 是输出护栏的输入。
type OutputInput struct {
	Response           string
	Citations          []model.Citation
	HallucinationScore float64
}

// Engine 定义了护栏引擎的接口。
type Engine interface {
	CheckInput(query string, persona *model.Persona) *model.GuardrailResult
	CheckOutput(in OutputInput, persona *model.Persona) *model.GuardrailResult
	RedactPII(text string) string
}

type engine struct {
	policy    *Policy
	threshold float64
}

var _ Engine = (*engine)(nil)

// NewEngine 创建一个新的护栏引擎。threshold 为幻觉分数的通过上限。
func NewEngine(policy *Policy, threshold float64) Engine {
	return &engine{policy: policy, threshold: threshold}
}

func levelOf(persona *model.Persona) model.GuardrailLevel {
	if persona == nil || !persona.GuardrailLevel.Valid() {
		return model.GuardrailStandard
	}
	return persona.GuardrailLevel
}

// CheckInput 依次执行输入检查。
func (e *engine) CheckInput(query string, persona *model.Persona) *model.GuardrailResult {
	level := levelOf(persona)
	details := map[string]string{"guardrail_level": string(level)}
	checks := model.Checks{}

	checks = append(checks, model.CheckOutcome{Name: CheckQueryValid, Passed: queryValid(query, e.policy.MaxQueryChars)})

	pattern := e.policy.matchInjection(query)
	checks = append(checks, model.CheckOutcome{Name: CheckPromptInjectionSafe, Passed: pattern == ""})
	if pattern != "" {
		details["injection_pattern"] = pattern
	}

	var forbidden, allowed []string
	if persona != nil {
		forbidden = termsIn(query, persona.ForbiddenTopics)
		if len(persona.AllowedTopics) > 0 {
			allowed = termsIn(query, persona.AllowedTopics)
		}
	}
	checks = append(checks, model.CheckOutcome{Name: CheckForbiddenTopicAbsent, Passed: len(forbidden) == 0})
	if len(forbidden) > 0 {
		details["forbidden_topics_found"] = strings.Join(forbidden, ", ")
	}
	if persona != nil && len(persona.AllowedTopics) > 0 {
		checks = append(checks, model.CheckOutcome{Name: CheckTopicInScope, Passed: len(allowed) > 0})
	}

	pii := e.policy.detectPII(query)
	checks = append(checks, model.CheckOutcome{Name: CheckPIISafe, Passed: len(pii) == 0})
	if len(pii) > 0 {
		details["pii_detected"] = strings.Join(pii, ", ")
		details["pii_action"] = "redacted before retrieval and generation"
	}

	return &model.GuardrailResult{
		Stage:    model.StageInput,
		Checks:   checks,
		Decision: decide(checks, func(name string) bool { return e.policy.IsHard(level, name) }),
		Details:  details,
	}
}

// CheckOutput 依次执行输出检查。
func (e *engine) CheckOutput(in OutputInput, persona *model.Persona) *model.GuardrailResult {
	level := levelOf(persona)
	details := map[string]string{"guardrail_level": string(level)}
	checks := model.Checks{}

	checks = append(checks, model.CheckOutcome{Name: CheckResponseValid, Passed: responseValid(in.Response, e.policy.MinResponseChars)})

	checks = append(checks, model.CheckOutcome{Name: CheckHasCitations, Passed: len(in.Citations) > 0})
	details["citation_count"] = strconv.Itoa(len(in.Citations))

	_, _, unverified := model.CountByStatus(in.Citations)
	checks = append(checks, model.CheckOutcome{Name: CheckCitationsVerified, Passed: unverified == 0})
	if unverified > 0 {
		details["unverified_citations"] = strconv.Itoa(unverified)
	}

	checks = append(checks, model.CheckOutcome{Name: CheckHallucinationAcceptable, Passed: in.HallucinationScore <= e.threshold})
	details["hallucination_score"] = strconv.FormatFloat(in.HallucinationScore, 'f', 4, 64)

	var forbidden []string
	if persona != nil {
		forbidden = termsIn(in.Response, persona.ForbiddenTopics)
	}
	checks = append(checks, model.CheckOutcome{Name: CheckNoForbiddenTopics, Passed: len(forbidden) == 0})
	if len(forbidden) > 0 {
		details["forbidden_terms_in_output"] = strings.Join(forbidden, ", ")
	}

	pii := e.policy.detectPII(in.Response)
	checks = append(checks, model.CheckOutcome{Name: CheckPIILeakSafe, Passed: len(pii) == 0})
	if len(pii) > 0 {
		details["pii_in_output"] = strings.Join(pii, ", ")
	}

	if persona != nil && persona.RequireDisclaimer {
		markers := persona.DisclaimerMarkers
		if len(markers) == 0 {
			markers = e.policy.DisclaimerMarkers
		}
		checks = append(checks, model.CheckOutcome{Name: CheckDisclaimerPresent, Passed: len(termsIn(in.Response, markers)) > 0})
	}

	return &model.GuardrailResult{
		Stage:    model.StageOutput,
		Checks:   checks,
		Decision: decide(checks, func(name string) bool { return e.policy.IsHard(level, name) }),
		Details:  details,
	}
}

// RedactPII 将文本中的 PII 替换为占位符。
func (e *engine) RedactPII(text string) string {
	return e.policy.redact(text)
}
