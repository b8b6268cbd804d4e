// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CleanModelOutput strips a wrapping markdown code fence and control
// characters from raw model output so that downstream title and tag
// derivation sees plain text.
func CleanModelOutput(s string) string {
	return SanitizeText(stripFence(strings.TrimSpace(s)))
}

// stripFence drops a fence that wraps the whole output. The opening fence may
// carry a language tag (```json and friends).
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	i := strings.IndexByte(body, '\n')
	if i < 0 {
		return strings.TrimSpace(strings.TrimSuffix(body, "```"))
	}
	if first := strings.TrimSpace(body[:i]); first == "" || isFenceTag(first) {
		body = body[i+1:]
	}
	body = strings.TrimSpace(body)
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return len(s) > 0
}

const (
	titleMaxLen = 50
	titleCutLen = 47
	maxTags     = 8
)

// DeriveTitle builds a short title from the first non-empty content line,
// with markdown markers removed. Titles longer than 50 characters are cut at
// 47 and get an ellipsis.
func DeriveTitle(content string) string {
	line := firstLine(CleanModelOutput(content))
	line = strings.TrimLeft(line, "#*->• \t")
	line = strings.Trim(line, `"'`)
	line = collapseSpaces(line)
	r := []rune(line)
	if len(r) > titleMaxLen {
		return string(r[:titleCutLen]) + "..."
	}
	return line
}

var (
	hashtagRe  = regexp.MustCompile(`#([\p{L}\d][\p{L}\d_-]{1,31})`)
	tagsLineRe = regexp.MustCompile(`(?im)^tags?\s*:\s*(.+)$`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+\.)\s+`)
	tableRowRe = regexp.MustCompile(`(?m)^\s*\|.+\|\s*$`)
)

// ExtractTags derives tags from content: an explicit "Tags:" line, inline
// hashtags, and coarse structure markers (code, list, table). Tags are
// lowercased, deduplicated and capped at eight, in order of appearance.
func ExtractTags(content string) []string {
	var tags []string
	seen := map[string]bool{}
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.Trim(tag, "#.,;")
		if tag == "" || len(tag) > 32 || seen[tag] || len(tags) >= maxTags {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	if m := tagsLineRe.FindStringSubmatch(content); m != nil {
		for _, part := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' }) {
			add(part)
		}
	}
	for _, m := range hashtagRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	if strings.Contains(content, "```") {
		add("code")
	}
	if len(bulletRe.FindAllString(content, -1)) >= 3 {
		add("list")
	}
	if len(tableRowRe.FindAllString(content, -1)) >= 2 {
		add("table")
	}
	return tags
}

// Snippet returns at most max characters of s on a single line, cut near a
// word boundary with an ellipsis when truncated.
func Snippet(s string, max int) string {
	s = collapseSpaces(SanitizeText(s))
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func firstLine(s string) string {
	for _, ln := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(ln); t != "" {
			return t
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
