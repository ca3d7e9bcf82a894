package model

// CitationStatus 是引用的校验状态。
type CitationStatus string

const (
	CitationVerified   CitationStatus = "verified"
	CitationPartial    CitationStatus = "partial"
	CitationUnverified CitationStatus = "unverified"
)

// Citation 是生成文本中一个引用标记的校验结果。
type Citation struct {
	SourceFile string         `json:"sourceFile"`
	Page       string         `json:"page,omitempty"`
	Section    string         `json:"section,omitempty"`
	Confidence float64        `json:"confidence"`
	Status     CitationStatus `json:"status"`
	Claim      string         `json:"claim,omitempty"`
	Marker     string         `json:"marker"`
}

// CountByStatus 统计各状态的引用数量。
func CountByStatus(citations []Citation) (verified, partial, unverified int) {
	for _, c := range citations {
		switch c.Status {
		case CitationVerified:
			verified++
		case CitationPartial:
			partial++
		default:
			unverified++
		}
	}
	return
}
