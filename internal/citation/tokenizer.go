// Package citation 解析生成文本中的引用标记，并与检索结果逐一比对。
package citation

import (
	"strings"
	"unicode"
)

const markerPrefix = "[source:"

// Marker 是文本中的一个引用标记，Start/End 为字节偏移。
type Marker struct {
	Raw     string
	File    string
	Page    string
	Section string
	Claim   string
	Start   int
	End     int
}

var (
	pagePrefixes    = []string{"page", "pg.", "pg", "pp.", "p."}
	sectionPrefixes = []string{"section", "sect.", "sec.", "sec", "§"}
)

// Tokenize 识别形如 [Source: file, Page N, Section S] 的标记，大小写不敏感，按出现顺序返回。
// 未闭合或文件名为空的标记会被忽略。
func Tokenize(text string) []Marker {
	var markers []Marker
	prevEnd := 0
	for i := 0; i+len(markerPrefix) <= len(text); {
		if text[i] != '[' || !strings.EqualFold(text[i:i+len(markerPrefix)], markerPrefix) {
			i++
			continue
		}
		closeAt := strings.IndexByte(text[i:], ']')
		if closeAt < 0 {
			break
		}
		end := i + closeAt + 1
		// 嵌套的 '[' 说明当前标记未闭合
		if nested := strings.IndexByte(text[i+1:end-1], '['); nested >= 0 {
			i += nested + 1
			continue
		}
		m, ok := parseInner(text[i+len(markerPrefix) : end-1])
		if ok {
			m.Raw = text[i:end]
			m.Start = i
			m.End = end
			m.Claim = precedingClaim(text[prevEnd:i])
			markers = append(markers, m)
			prevEnd = end
		}
		i = end
	}
	return markers
}

func parseInner(inner string) (Marker, bool) {
	parts := strings.Split(inner, ",")
	m := Marker{File: strings.TrimSpace(parts[0])}
	if m.File == "" {
		return m, false
	}
	for idx := 1; idx < len(parts); idx++ {
		part := strings.TrimSpace(parts[idx])
		if part == "" {
			continue
		}
		if v, ok := cutPrefixFold(part, sectionPrefixes); ok {
			// 章节名可能包含逗号，取剩余全部内容
			rest := append([]string{v}, parts[idx+1:]...)
			m.Section = strings.TrimSpace(strings.Join(rest, ","))
			break
		}
		if v, ok := cutPrefixFold(part, pagePrefixes); ok {
			m.Page = v
			continue
		}
		if m.Page == "" && isDigits(part) {
			m.Page = part
		}
	}
	return m, true
}

// cutPrefixFold 去掉大小写不敏感的前缀以及其后的冒号和空白。
func cutPrefixFold(s string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if len(s) < len(p) || !strings.EqualFold(s[:len(p)], p) {
			continue
		}
		rest := s[len(p):]
		// "pg" 不应匹配 "pgs"，"sec" 不应匹配 "secure"
		if rest != "" && !strings.HasSuffix(p, ".") && p != "§" {
			r := rune(rest[0])
			if unicode.IsLetter(r) {
				continue
			}
		}
		rest = strings.TrimLeft(rest, " :.\t")
		return strings.TrimSpace(rest), true
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// precedingClaim 返回标记前最近的一句话。
func precedingClaim(before string) string {
	s := strings.TrimRightFunc(before, unicode.IsSpace)
	s = strings.TrimRight(s, ".!?")
	if idx := strings.LastIndexAny(s, ".!?\n"); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}

// Strip 将文本中的标记替换为等长空格，偏移保持不变。
func Strip(text string, markers []Marker) string {
	if len(markers) == 0 {
		return text
	}
	b := []byte(text)
	for _, m := range markers {
		for i := m.Start; i < m.End && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}
