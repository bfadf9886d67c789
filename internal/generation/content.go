package generation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const ellipsis = "..."

// renderMarkdown converts a section body to HTML. Parsers carry state, so a
// new one is built per call.
func renderMarkdown(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return strings.TrimSpace(string(markdown.ToHTML([]byte(md), p, renderer)))
}

// plainText reduces rendered HTML to one line of text per top-level block.
func plainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}

	var lines []string
	doc.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		if s.Is("ul, ol") {
			s.Find("li").Each(func(_ int, li *goquery.Selection) {
				if text := collapseSpace(li.Text()); text != "" {
					lines = append(lines, text)
				}
			})
			return
		}
		if text := collapseSpace(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return collapseSpace(doc.Text())
	}
	return strings.Join(lines, "\n")
}

// stripLeadingHeading drops a first-line Markdown heading that repeats heading.
func stripLeadingHeading(md, heading string) string {
	md = strings.TrimSpace(md)
	first, rest, _ := strings.Cut(md, "\n")
	trimmed := strings.TrimSpace(strings.TrimLeft(first, "#"))
	if strings.HasPrefix(first, "#") && strings.EqualFold(trimmed, strings.TrimSpace(heading)) {
		return strings.TrimSpace(rest)
	}
	return md
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate limits s to max runes, ending with "..." when it had to cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-len(ellipsis)]) + ellipsis
}

// tail returns the last max runes of s.
func tail(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}

// firstSentence returns text up to and including its first sentence terminator.
func firstSentence(text string) string {
	text = collapseSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '。' {
			return text[:i+utf8.RuneLen(r)]
		}
	}
	return text
}

// slugify builds a URL slug from title. Titles with no ASCII letters or
// digits fall back to "article-" plus fallback.
func slugify(title, fallback string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			hyphen = false
		case b.Len() > 0 && !hyphen:
			b.WriteByte('-')
			hyphen = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	if slug == "" {
		return "article-" + fallback
	}
	return slug
}
