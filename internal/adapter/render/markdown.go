// Package render turns finished analyses into Markdown, terminal, HTML and
// PDF documents.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lexroute/internal/domain"
)

// Markdown renders a deterministic Markdown report. The other renderers
// start from its output.
type Markdown struct{}

func (Markdown) ContentType() string { return "text/markdown; charset=utf-8" }

func (m Markdown) Render(_ context.Context, r *domain.LegalAnalysisResult) ([]byte, error) {
	if r == nil {
		return nil, domain.NewSubSystemError("render", "Markdown.Render", domain.ErrRender, "nil result")
	}
	return []byte(Document(r)), nil
}

// Document builds the Markdown text of r.
func Document(r *domain.LegalAnalysisResult) string {
	var b strings.Builder

	title := r.AgentName
	if title == "" {
		title = r.AgentID
	}
	fmt.Fprintf(&b, "# Legal Analysis: %s\n\n", title)

	if r.ID != "" {
		fmt.Fprintf(&b, "- **Reference:** `%s`\n", r.ID)
	}
	fmt.Fprintf(&b, "- **Agent:** %s (`%s`)\n", title, r.AgentID)
	status := string(r.Status)
	if len(r.MissingSections) > 0 {
		status += " (missing: " + strings.Join(r.MissingSections, ", ") + ")"
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", status)
	if r.Query.Jurisdiction != "" {
		fmt.Fprintf(&b, "- **Jurisdiction:** %s\n", r.Query.Jurisdiction)
	}
	if r.Routing.Overridden {
		b.WriteString("- **Routing:** selected by caller\n")
	} else if r.Routing.AgentID != "" {
		fmt.Fprintf(&b, "- **Routing confidence:** %.0f%%\n", r.Routing.Confidence*100)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Generated:** %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")

	if q := strings.TrimSpace(r.Query.Text); q != "" {
		b.WriteString("## Query\n\n")
		for _, line := range strings.Split(q, "\n") {
			b.WriteString("> " + line + "\n")
		}
		b.WriteString("\n")
	}

	if r.Summary != "" {
		section(&b, "Summary")
		b.WriteString(r.Summary + "\n\n")
	}

	if c := r.Classification; c != nil {
		section(&b, "Legal Classification")
		field(&b, "Domain", c.Domain)
		field(&b, "Jurisdiction", c.Jurisdiction)
		field(&b, "Relevant forum", strings.Join(c.Forums, "; "))
		b.WriteString("\n")
	}

	citations(&b, "Applicable Laws", r.Laws())
	citations(&b, "Landmark Judgments", r.Judgments())

	if len(r.RemedySteps) > 0 {
		section(&b, "Legal Remedy Path")
		for i, s := range r.RemedySteps {
			n := s.Step
			if n <= 0 {
				n = i + 1
			}
			fmt.Fprintf(&b, "%d. %s", n, s.Action)
			if s.TimeLimit != "" {
				fmt.Fprintf(&b, " *(time limit: %s)*", s.TimeLimit)
			}
			if s.TemplateAvailable {
				b.WriteString(" [template available]")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if in := r.Insights; in != nil && !in.IsZero() {
		section(&b, "Additional Insights")
		if in.BailApplicable != nil {
			bail := "not applicable"
			if *in.BailApplicable {
				bail = "applicable"
			}
			if in.BailReasoning != "" {
				bail += ": " + in.BailReasoning
			}
			field(&b, "Bail", bail)
		} else {
			field(&b, "Bail", in.BailReasoning)
		}
		field(&b, "Estimated legal fees", in.EstimatedFees)
		field(&b, "Timeline", in.Timeline)
		success := in.SuccessPercent
		if in.SuccessReasoning != "" {
			if success != "" {
				success += ": "
			}
			success += in.SuccessReasoning
		}
		field(&b, "Likelihood of success", success)
		b.WriteString("\n")
	}

	list(&b, "Recommended Actions", r.RecommendedActions)
	list(&b, "Evidence Required", r.EvidenceRequired)
	list(&b, "Risk Factors", r.RiskFactors)

	for _, x := range r.Extra {
		title := x.Title
		if title == "" {
			title = x.Key
		}
		list(&b, title, x.Items)
	}

	if len(r.Warnings) > 0 {
		list(&b, "Processing Notes", r.Warnings)
	}

	if len(r.Disclaimers) > 0 {
		section(&b, "Disclaimer")
		for i, d := range r.Disclaimers {
			if i > 0 {
				b.WriteString(">\n")
			}
			b.WriteString("> " + d + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, title string) {
	b.WriteString("## " + title + "\n\n")
}

func field(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", name, value)
}

func list(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	section(b, title)
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
	b.WriteString("\n")
}

func citations(b *strings.Builder, title string, cs []domain.Citation) {
	if len(cs) == 0 {
		return
	}
	section(b, title)
	for i, c := range cs {
		fmt.Fprintf(b, "%d. **%s**", i+1, c.Title)
		if c.Reference != "" {
			fmt.Fprintf(b, " (%s)", c.Reference)
		}
		if c.Description != "" {
			b.WriteString(": " + c.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
