package model

// RawSide 是无护栏生成的结果。
type RawSide struct {
	Response     string     `json:"response"`
	Citations    []Citation `json:"citations"`
	HasCitations bool       `json:"hasCitations"`
	Error        string     `json:"error,omitempty"`
}

// VerifiedSide 是完整流水线一侧的结果。
type VerifiedSide struct {
	Response     string     `json:"response"`
	Citations    []Citation `json:"citations"`
	HasCitations bool       `json:"hasCitations"`
	ChunksUsed   int        `json:"chunksUsed"`
}

// Verdict 是对比模式的结论。
type Verdict struct {
	HallucinationDetected bool   `json:"hallucinationDetected"`
	SMEVerified           bool   `json:"smeVerified"`
	Summary               string `json:"summary"`
}

// ComparisonResult 是对比模式的返回结构，不单独持久化。
// vanilla_response 字段用于区分普通查询结果。
type ComparisonResult struct {
	Query           string       `json:"query"`
	PluginID        string       `json:"pluginId"`
	Raw             RawSide      `json:"raw"`
	Verified        VerifiedSide `json:"verified"`
	Verdict         Verdict      `json:"verdict"`
	VanillaResponse string       `json:"vanilla_response"`
	SMEPlugResponse string       `json:"smeplug_response"`
	Result          *QueryResult `json:"result,omitempty"`
}
