package model

// GuardrailLevel 是人设的护栏等级，决定哪些检查为硬性检查。
type GuardrailLevel string

const (
	GuardrailStrict   GuardrailLevel = "strict"
	GuardrailStandard GuardrailLevel = "standard"
	GuardrailRelaxed  GuardrailLevel = "relaxed"
)

// Valid 判断等级是否为已知取值。
func (l GuardrailLevel) Valid() bool {
	switch l {
	case GuardrailStrict, GuardrailStandard, GuardrailRelaxed:
		return true
	}
	return false
}

// Persona 描述一个领域专家插件（SME plug）。
type Persona struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	Description       string         `json:"description" yaml:"description"`
	Domain            string         `json:"domain" yaml:"domain"`
	GuardrailLevel    GuardrailLevel `json:"guardrailLevel" yaml:"guardrail_level"`
	CorpusFiles       []string       `json:"corpusFiles" yaml:"corpus_files"`
	SystemPrompt      string         `json:"systemPrompt" yaml:"system_prompt"`
	AllowedTopics     []string       `json:"allowedTopics,omitempty" yaml:"allowed_topics"`
	ForbiddenTopics   []string       `json:"forbiddenTopics,omitempty" yaml:"forbidden_topics"`
	RequireDisclaimer bool           `json:"requireDisclaimer" yaml:"require_disclaimer"`
	DisclaimerMarkers []string       `json:"disclaimerMarkers,omitempty" yaml:"disclaimer_markers"`
}

// PersonaSummary 是人设列表接口返回的结构。
type PersonaSummary struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	GuardrailLevel GuardrailLevel `json:"guardrailLevel"`
	CorpusFiles    []string       `json:"corpusFiles"`
}

// Summary 返回人设的列表摘要。
func (p *Persona) Summary() PersonaSummary {
	files := p.CorpusFiles
	if files == nil {
		files = []string{}
	}
	return PersonaSummary{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		GuardrailLevel: p.GuardrailLevel,
		CorpusFiles:    files,
	}
}

// PersonaSwitch 是切换人设接口的返回结构。
type PersonaSwitch struct {
	PersonaID    string `json:"persona_id"`
	PreviousID   string `json:"previous_id"`
	SwitchTimeMs int64  `json:"switch_time_ms"`
}
