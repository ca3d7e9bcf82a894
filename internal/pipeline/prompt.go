package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"sme-plug-go/internal/config"
	"sme-plug-go/internal/model"
	"sme-plug-go/pkg/llm"
)

const (
	defaultRefStart     = "<<REF>>"
	defaultRefEnd       = "<<END>>"
	defaultNoResultText = "No relevant documents found."
	defaultVanilla      = "You are a helpful AI assistant. Answer the user's question. If you reference any sources, include them as citations in [Source: ...] format."
	citationInstruction = "Answer using only the retrieved documents. For every factual claim include a citation in the form [Source: filename, Page X, Section Y]. " +
		"If the documents do not contain the answer, say: \"The provided documents do not contain information about this topic.\""
	// 与索引时的分块大小对齐，尽量不截断分块内容
	maxSnippetLen = 1500
)

// buildContextText 将检索块按顺序编号，每块包含文件、页码、章节与内容。
func buildContextText(chunks []model.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		snippet := c.Text
		if len(snippet) > maxSnippetLen {
			snippet = truncateUTF8(snippet, maxSnippetLen) + "…"
		}
		fmt.Fprintf(&b, "[%d] File: %s\n", i+1, orUnknown(c.Filename))
		if c.Page != "" {
			fmt.Fprintf(&b, "Page: %s\n", c.Page)
		}
		section := c.Section
		if section == "" {
			section = c.Title
		}
		if section != "" {
			fmt.Fprintf(&b, "Section: %s\n", section)
		}
		fmt.Fprintf(&b, "Content:\n%s\n\n", snippet)
	}
	return b.String()
}

// truncateUTF8 截取不超过 n 字节的前缀，不切断多字节字符。
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// buildSystemMessage 组合人设提示、规则与引用包裹的上下文。
func buildSystemMessage(persona *model.Persona, contextText string, cfg config.LLMPromptConfig) string {
	refStart := cfg.RefStart
	if refStart == "" {
		refStart = defaultRefStart
	}
	refEnd := cfg.RefEnd
	if refEnd == "" {
		refEnd = defaultRefEnd
	}
	var sys strings.Builder
	if persona != nil {
		if persona.SystemPrompt != "" {
			sys.WriteString(persona.SystemPrompt)
		} else {
			fmt.Fprintf(&sys, "You are %s. %s. Cite all sources using [Source: filename, Page X, Section Y] format.", persona.Name, persona.Description)
		}
		sys.WriteString("\n\n")
	}
	if cfg.Rules != "" {
		sys.WriteString(cfg.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := cfg.NoResultText
		if noRes == "" {
			noRes = defaultNoResultText
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// BuildMessages 生成受控一侧的对话消息。
func BuildMessages(persona *model.Persona, chunks []model.RetrievedChunk, query string, cfg config.LLMPromptConfig) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: buildSystemMessage(persona, buildContextText(chunks), cfg)},
		{Role: "user", Content: query + "\n\n" + citationInstruction},
	}
}

// VanillaMessages 生成无检索、无人设的对话消息。
func VanillaMessages(query string, cfg config.LLMPromptConfig) []llm.Message {
	sys := cfg.VanillaSystem
	if sys == "" {
		sys = defaultVanilla
	}
	return []llm.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: query},
	}
}
