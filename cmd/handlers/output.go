package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"mediacms/internal/config"
	"mediacms/internal/core"
	"mediacms/internal/generation"
	"mediacms/internal/llm"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderArticle(result *generation.Result) string {
	a := result.Article
	status := "draft"
	switch {
	case a.IsPublished:
		status = "published"
	case a.IsScheduled:
		status = "scheduled"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(a.Title) + "\n")
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("id:"), a.ID)
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("slug:"), a.Slug)
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("status:"), okStyle.Render(status))
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("seo title:"), a.MetaTitle)
	fmt.Fprintf(&sb, "%s %s\n\n", dimStyle.Render("description:"), a.MetaDescription)

	s := result.Stats
	fmt.Fprintf(&sb, "%d sections, %d images, %d provider calls, ~%d tokens, $%.4f, %s",
		s.Sections, s.Images, s.ProviderCalls, s.EstimatedTokens, s.EstimatedCostUSD, s.Duration.Round(time.Millisecond))
	if len(s.RejectedThemes) > 0 {
		fmt.Fprintf(&sb, "\n%s %s", dimStyle.Render("rejected themes:"), strings.Join(s.RejectedThemes, "; "))
	}
	return boxStyle.Render(sb.String())
}

func renderSummary(summary core.TriggerSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s executed %d, %s, %s\n",
		titleStyle.Render("Scheduled generation:"),
		summary.ExecutedCount,
		okStyle.Render(fmt.Sprintf("%d succeeded", summary.Succeeded)),
		errStyle.Render(fmt.Sprintf("%d failed", summary.Failed)))

	for _, r := range summary.Results {
		if r.Success {
			fmt.Fprintf(&sb, "  %s %s %s %q\n", okStyle.Render("ok"), r.ScheduleID, dimStyle.Render(r.ArticleID), r.Title)
		} else {
			fmt.Fprintf(&sb, "  %s %s %s\n", errStyle.Render("failed"), r.ScheduleID, r.Error)
		}
	}
	return sb.String()
}

// stepModels resolves each routed step to the model its provider is configured with.
func stepModels(cfg *config.Config) map[string]string {
	models := make(map[string]string, len(llm.Steps))
	for _, step := range llm.Steps {
		switch cfg.AI.Routes[string(step)] {
		case llm.ProviderOpenAI:
			if step == llm.StepImage {
				models[string(step)] = cfg.AI.OpenAI.ImageModel
			} else {
				models[string(step)] = cfg.AI.OpenAI.Model
			}
		case llm.ProviderGemini:
			models[string(step)] = cfg.AI.Gemini.Model
		}
	}
	return models
}
