package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/export"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/pkg/anthropic"
)

const digestSystemPrompt = `You are an analyst writing a short briefing on
corporate registry activity. You are given aggregate counts and a sample of
individual change events. Write 2-4 plain paragraphs: overall volume, what
kinds of changes dominate, and anything notable in the sample. No headings,
no bullet lists, no speculation beyond the data given.`

// maxPromptEvents caps how many individual events go into the prompt.
const maxPromptEvents = 40

// Generator produces a natural-language digest of a change-log window.
// With a nil client it degrades to a deterministic template.
type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewGenerator builds a digest generator. client may be nil when no API
// key is configured.
func NewGenerator(client anthropic.Client, aiModel string) *Generator {
	if aiModel == "" {
		aiModel = anthropic.DefaultModel
	}
	return &Generator{client: client, model: aiModel, maxTokens: 1024}
}

// Digest writes a briefing for the given window of change events.
func (g *Generator) Digest(ctx context.Context, window string, events []model.ChangeEvent) (string, error) {
	stats := SummarizeChanges(events)
	if g.client == nil {
		zap.L().Info("no api key configured, using template digest")
		return templateDigest(window, stats), nil
	}

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    digestSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(window, stats, events)},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "summary: generate digest")
	}
	resp.Usage.LogCost(g.model)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("summary: empty digest response")
	}
	return text, nil
}

// buildPrompt lays out counts first, then a bounded sample of events.
func buildPrompt(window string, stats ChangeSummary, events []model.ChangeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s\n", window)
	fmt.Fprintf(&b, "Total changes: %d\n", stats.Total)
	fmt.Fprintf(&b, "New incorporations: %d\n", stats.NewIncorporation)
	fmt.Fprintf(&b, "Deregistrations: %d\n", stats.Deregistration)
	fmt.Fprintf(&b, "Field updates: %d\n", stats.FieldUpdate)
	for _, c := range stats.UpdatedFields {
		fmt.Fprintf(&b, "  updated %s: %d\n", c.Label, c.Count)
	}

	b.WriteString("\nSample events:\n")
	n := len(events)
	if n > maxPromptEvents {
		n = maxPromptEvents
	}
	for _, ev := range events[:n] {
		switch ev.Kind {
		case model.ChangeFieldUpdate:
			fmt.Fprintf(&b, "- %s %s (%s): %s %q -> %q\n",
				ev.CIN, ev.CompanyName, ev.State, ev.Field, ev.OldDisplay(), ev.NewDisplay())
		default:
			fmt.Fprintf(&b, "- %s %s (%s): %s\n",
				ev.CIN, ev.CompanyName, ev.State, export.KindLabel(ev.Kind))
		}
	}
	if len(events) > n {
		fmt.Fprintf(&b, "... and %d more\n", len(events)-n)
	}
	return b.String()
}

// templateDigest is the deterministic fallback used without an API key.
func templateDigest(window string, stats ChangeSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Registry activity for %s: %d changes in total.\n", window, stats.Total)
	fmt.Fprintf(&b, "New incorporations: %d. Deregistrations: %d. Field updates: %d.\n",
		stats.NewIncorporation, stats.Deregistration, stats.FieldUpdate)
	if len(stats.UpdatedFields) > 0 {
		top := stats.UpdatedFields[0]
		fmt.Fprintf(&b, "Most-changed field: %s (%d updates).\n", top.Label, top.Count)
	}
	if len(stats.ByState) > 0 {
		top := stats.ByState[0]
		fmt.Fprintf(&b, "Most active state: %s (%d changes).\n", top.Label, top.Count)
	}
	return strings.TrimSpace(b.String())
}
