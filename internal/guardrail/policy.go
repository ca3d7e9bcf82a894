package guardrail

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"sme-plug-go/internal/model"
)

//go:embed policies/default.yaml
var defaultPolicyYAML []byte

// PatternRule 是一条提示注入规则。命中时若第一个捕获组属于 Exempt，则视为未命中。
type PatternRule struct {
	Pattern string   `yaml:"pattern"`
	Exempt  []string `yaml:"exempt"`

	re *regexp.Regexp
}

// PIIRule 是一条具名的 PII 规则。
type PIIRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// LevelRule 列出某个护栏等级下的硬性检查。
type LevelRule struct {
	Hard []string `yaml:"hard"`
}

// Policy 是强类型的护栏策略，加载一次后只读。
type Policy struct {
	MaxQueryChars     int                                `yaml:"max_query_chars"`
	MinResponseChars  int                                `yaml:"min_response_chars"`
	InjectionPatterns []PatternRule                      `yaml:"injection_patterns"`
	PIIPatterns       []PIIRule                          `yaml:"pii_patterns"`
	DisclaimerMarkers []string                           `yaml:"disclaimer_markers"`
	Levels            map[model.GuardrailLevel]LevelRule `yaml:"levels"`

	hard map[model.GuardrailLevel]map[string]bool
}

// DefaultPolicy 解析内嵌的默认策略。
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicyYAML)
}

// ParsePolicy 解析并编译 YAML 策略。
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("解析护栏策略失败: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) compile() error {
	for i := range p.InjectionPatterns {
		re, err := regexp.Compile("(?i)" + p.InjectionPatterns[i].Pattern)
		if err != nil {
			return fmt.Errorf("编译注入规则 %q 失败: %w", p.InjectionPatterns[i].Pattern, err)
		}
		p.InjectionPatterns[i].re = re
	}
	for i := range p.PIIPatterns {
		re, err := regexp.Compile(p.PIIPatterns[i].Pattern)
		if err != nil {
			return fmt.Errorf("编译 PII 规则 %s 失败: %w", p.PIIPatterns[i].Name, err)
		}
		p.PIIPatterns[i].re = re
	}
	for _, level := range []model.GuardrailLevel{model.GuardrailStrict, model.GuardrailStandard, model.GuardrailRelaxed} {
		if _, ok := p.Levels[level]; !ok {
			return fmt.Errorf("护栏策略缺少等级 %s", level)
		}
	}
	p.hard = make(map[model.GuardrailLevel]map[string]bool, len(p.Levels))
	for level, rule := range p.Levels {
		set := make(map[string]bool, len(rule.Hard))
		for _, name := range rule.Hard {
			set[name] = true
		}
		p.hard[level] = set
	}
	return nil
}

// IsHard 判断检查在给定等级下是否为硬性检查。未知等级按 standard 处理。
func (p *Policy) IsHard(level model.GuardrailLevel, check string) bool {
	set, ok := p.hard[level]
	if !ok {
		set = p.hard[model.GuardrailStandard]
	}
	return set[check]
}

// matchInjection 返回命中的规则，未命中返回空字符串。
func (p *Policy) matchInjection(text string) string {
	for _, rule := range p.InjectionPatterns {
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 && len(rule.Exempt) > 0 && containsFold(rule.Exempt, m[len(m)-1]) {
				continue
			}
			return rule.Pattern
		}
	}
	return ""
}

// detectPII 返回文本中出现的 PII 类型，顺序与策略一致。
func (p *Policy) detectPII(text string) []string {
	var found []string
	for _, rule := range p.PIIPatterns {
		if rule.re.MatchString(text) {
			found = append(found, rule.Name)
		}
	}
	return found
}

// redact 将所有 PII 替换为 [REDACTED-<TYPE>]。
func (p *Policy) redact(text string) string {
	for _, rule := range p.PIIPatterns {
		text = rule.re.ReplaceAllLiteralString(text, "[REDACTED-"+strings.ToUpper(rule.Name)+"]")
	}
	return text
}
