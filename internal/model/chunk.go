package model

// RetrievedChunk 是检索返回的候选段落，按相关度降序排列。
type RetrievedChunk struct {
	Filename       string  `json:"filename"`
	Page           string  `json:"page,omitempty"`
	Section        string  `json:"section,omitempty"`
	Title          string  `json:"title,omitempty"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// SectionRef 是审计中记录的检索来源摘要。
type SectionRef struct {
	Filename       string  `json:"filename"`
	Page           string  `json:"page,omitempty"`
	Section        string  `json:"section,omitempty"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// SectionsOf 提取检索块的来源信息。
func SectionsOf(chunks []RetrievedChunk) []SectionRef {
	refs := make([]SectionRef, 0, len(chunks))
	for _, c := range chunks {
		refs = append(refs, SectionRef{
			Filename:       c.Filename,
			Page:           c.Page,
			Section:        c.Section,
			RelevanceScore: c.RelevanceScore,
		})
	}
	return refs
}

// EsChunk 定义了存储在 Elasticsearch 中的语料块结构。
type EsChunk struct {
	ChunkID  string    `json:"chunk_id"` // 唯一标识，例如 filename + page + 序号
	PluginID string    `json:"plugin_id"`
	Filename string    `json:"filename"`
	Page     string    `json:"page,omitempty"`
	Section  string    `json:"section,omitempty"`
	Title    string    `json:"title,omitempty"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"` // 文本内容的向量表示
}
