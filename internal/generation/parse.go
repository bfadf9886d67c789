package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFence   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	listMarker  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	headingMark = regexp.MustCompile(`^\s*#{1,6}\s*`)
	labelPrefix = regexp.MustCompile(`(?i)^\s*(seo\s*title|meta\s*description)\s*:\s*`)
)

type outlineEntry struct {
	Heading string `json:"heading"`
	Summary string `json:"summary"`
}

type metadata struct {
	SEOTitle        string `json:"seoTitle"`
	MetaDescription string `json:"metaDescription"`
}

// unfence returns the contents of the first fenced block, or s trimmed.
func unfence(s string) string {
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// between returns the substring from the first open to the last close delimiter.
func between(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// parseTitles reads theme candidates from a JSON array, a {"titles": [...]}
// object or a plain list with one title per line.
func parseTitles(raw string) []string {
	body := unfence(raw)

	var titles []string
	if arr, ok := between(body, '[', ']'); ok && json.Unmarshal([]byte(arr), &titles) == nil {
		return cleanTitles(titles)
	}
	var wrapped struct {
		Titles []string `json:"titles"`
	}
	if obj, ok := between(body, '{', '}'); ok && json.Unmarshal([]byte(obj), &wrapped) == nil && len(wrapped.Titles) > 0 {
		return cleanTitles(wrapped.Titles)
	}

	titles = nil
	for _, line := range itemLines(body, listMarker.MatchString) {
		titles = append(titles, listMarker.ReplaceAllString(line, ""))
	}
	return cleanTitles(titles)
}

// itemLines returns the non-empty lines of body that can be list items.
// Lines introducing a list (ending in a colon) are dropped, and when any
// line is marked, unmarked lines are treated as commentary.
func itemLines(body string, marked func(string) bool) []string {
	var all, items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") || strings.HasSuffix(line, "：") {
			continue
		}
		all = append(all, line)
		if marked(line) {
			items = append(items, line)
		}
	}
	if len(items) > 0 {
		return items
	}
	return all
}

func cleanTitles(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.Trim(collapseSpace(t), `"'“”「」`)
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// parseOutline reads sections from a JSON array, a {"sections": [...]} object
// or Markdown headings / list items.
func parseOutline(raw string) []outlineEntry {
	body := unfence(raw)

	var entries []outlineEntry
	if arr, ok := between(body, '[', ']'); ok && json.Unmarshal([]byte(arr), &entries) == nil {
		return cleanOutline(entries)
	}
	var wrapped struct {
		Sections []outlineEntry `json:"sections"`
	}
	if obj, ok := between(body, '{', '}'); ok && json.Unmarshal([]byte(obj), &wrapped) == nil && len(wrapped.Sections) > 0 {
		return cleanOutline(wrapped.Sections)
	}

	entries = entries[:0]
	marked := func(line string) bool {
		return listMarker.MatchString(line) || headingMark.MatchString(line)
	}
	for _, line := range itemLines(body, marked) {
		line = listMarker.ReplaceAllString(headingMark.ReplaceAllString(line, ""), "")
		heading, summary, _ := strings.Cut(line, " - ")
		entries = append(entries, outlineEntry{Heading: heading, Summary: summary})
	}
	return cleanOutline(entries)
}

func cleanOutline(entries []outlineEntry) []outlineEntry {
	out := make([]outlineEntry, 0, len(entries))
	for _, e := range entries {
		e.Heading = strings.Trim(collapseSpace(e.Heading), `"*`)
		e.Summary = collapseSpace(e.Summary)
		if e.Heading != "" {
			out = append(out, e)
		}
	}
	return out
}

// parseMetadata reads SEO metadata from a JSON object or labelled lines.
func parseMetadata(raw string) metadata {
	body := unfence(raw)

	var m metadata
	if obj, ok := between(body, '{', '}'); ok && json.Unmarshal([]byte(obj), &m) == nil {
		m.SEOTitle = collapseSpace(m.SEOTitle)
		m.MetaDescription = collapseSpace(m.MetaDescription)
		return m
	}

	for _, line := range strings.Split(body, "\n") {
		label := labelPrefix.FindStringSubmatch(line)
		if label == nil {
			continue
		}
		value := collapseSpace(labelPrefix.ReplaceAllString(line, ""))
		if strings.HasPrefix(strings.ToLower(label[1]), "seo") {
			m.SEOTitle = value
		} else {
			m.MetaDescription = value
		}
	}
	return m
}

// cleanAltText reduces a model reply to a single alt-text sentence.
func cleanAltText(raw string) string {
	text := collapseSpace(unfence(raw))
	for _, prefix := range []string{"Alt text:", "alt text:", "Alt:"} {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	return strings.TrimSpace(strings.Trim(text, `"'“”`))
}

var genericAltText = map[string]bool{
	"":                  true,
	"image":             true,
	"an image":          true,
	"photo":             true,
	"a photo":           true,
	"picture":           true,
	"a picture":         true,
	"illustration":      true,
	"an illustration":   true,
	"image description": true,
}

func isGenericAltText(text string) bool {
	return genericAltText[strings.ToLower(strings.TrimRight(text, "."))]
}
