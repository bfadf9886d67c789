package generation

import (
	"fmt"
	"strings"

	"mediacms/internal/core"
)

const (
	defaultComposition   = "Open with a short hook, then develop the topic across four to six focused sections and close with a practical takeaway."
	defaultImageTemplate = `Editorial photograph illustrating "{{section}}" for an article titled "{{title}}" in the {{category}} category. No text in the image.`
)

// brief is the tenant context every prompt is built from.
type brief struct {
	category *core.Category
	writer   *core.Writer
	pattern  *core.CompositionPattern
	images   *core.ImagePromptPattern
	style    *core.WritingStyle
	audience string
}

func (b *brief) composition() string {
	if b.pattern != nil && strings.TrimSpace(b.pattern.Instruction) != "" {
		return b.pattern.Instruction
	}
	return defaultComposition
}

// system is the shared system instruction carrying persona, style and audience.
func (b *brief) system() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a writer for the %q category", b.writer.DisplayName, b.category.Name)
	if b.category.Description != "" {
		fmt.Fprintf(&sb, " (%s)", b.category.Description)
	}
	sb.WriteString(".\n")
	if b.writer.Persona != "" {
		fmt.Fprintf(&sb, "Persona: %s\n", b.writer.Persona)
	}
	if b.style != nil && b.style.Instruction != "" {
		fmt.Fprintf(&sb, "Writing style: %s\n", b.style.Instruction)
	}
	fmt.Fprintf(&sb, "Target audience: %s\n", b.audience)
	sb.WriteString("Write original, accurate content. Never mention that you are an AI.")
	return sb.String()
}

func themesPrompt(b *brief, count int, excluded []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Propose %d distinct article titles for the %q category.\n", count, b.category.Name)
	fmt.Fprintf(&sb, "Each article will follow this structure: %s\n", b.composition())
	if len(excluded) > 0 {
		sb.WriteString("\nThese titles were rejected as too similar to published articles. Do not propose them or close variations:\n")
		for _, title := range excluded {
			fmt.Fprintf(&sb, "- %s\n", title)
		}
	}
	sb.WriteString("\nReturn only a JSON array of strings.")
	return sb.String()
}

func outlinePrompt(b *brief, title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Article title: %s\n\n", title)
	sb.WriteString("Follow this composition pattern:\n")
	sb.WriteString(b.composition())
	sb.WriteString("\n\nReturn only a JSON array of objects with \"heading\" and \"summary\" fields, one per section, in reading order.")
	return sb.String()
}

func sectionPrompt(title string, outline []outlineEntry, index int, soFar string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Article title: %s\n\nOutline:\n", title)
	for i, e := range outline {
		fmt.Fprintf(&sb, "%d. %s", i+1, e.Heading)
		if e.Summary != "" {
			fmt.Fprintf(&sb, " - %s", e.Summary)
		}
		sb.WriteString("\n")
	}

	entry := outline[index]
	fmt.Fprintf(&sb, "\nWrite section %d: %s\n", index+1, entry.Heading)
	if entry.Summary != "" {
		fmt.Fprintf(&sb, "Section brief: %s\n", entry.Summary)
	}
	if soFar != "" {
		fmt.Fprintf(&sb, "\nThe article so far:\n%s\n", soFar)
		sb.WriteString("\nContinue consistently with it and do not repeat what it already covers.\n")
	}
	sb.WriteString("\nReturn only this section's body in Markdown, without its heading.")
	return sb.String()
}

func imagePrompt(b *brief, title, section string) string {
	template := defaultImageTemplate
	if b.images != nil && strings.TrimSpace(b.images.Template) != "" {
		template = b.images.Template
	}
	return strings.NewReplacer(
		"{{title}}", title,
		"{{section}}", section,
		"{{category}}", b.category.Name,
	).Replace(template)
}

func altTextPrompt(heading, text, prompt string) string {
	var sb strings.Builder
	sb.WriteString("Write alt text for an image that illustrates the article section below.\n")
	sb.WriteString("One sentence, at most 125 characters, describing what the image shows. Do not start with \"Image of\".\n\n")
	fmt.Fprintf(&sb, "Section: %s\n%s\n\nImage prompt: %s", heading, truncate(text, 1200), prompt)
	return sb.String()
}

func metadataPrompt(title, content string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Article title: %s\n\nArticle:\n%s\n\n", title, truncate(content, 3000))
	sb.WriteString("Write search metadata for this article. ")
	fmt.Fprintf(&sb, "The SEO title must be at most %d characters and the meta description at most %d characters.\n", seoTitleMax, metaDescriptionMax)
	sb.WriteString(`Return only a JSON object: {"seoTitle": "...", "metaDescription": "..."}`)
	return sb.String()
}
