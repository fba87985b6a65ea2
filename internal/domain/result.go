package domain

import (
	"context"
	"time"
)

// Completeness tags a normalized result.
type Completeness string

const (
	StatusComplete Completeness = "complete"
	StatusPartial  Completeness = "partial"
)

// StandardDisclaimer is attached to every analysis.
const StandardDisclaimer = "This analysis is generated automatically for general guidance only. " +
	"It is not legal advice; consult a qualified advocate before acting on it."

// LegalClassification places the matter in a legal domain and forum.
type LegalClassification struct {
	Domain       string   `json:"domain,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	Forums       []string `json:"relevant_forum,omitempty"`
}

// CitationKind distinguishes statutes from case law.
type CitationKind string

const (
	CitationLaw      CitationKind = "law"
	CitationJudgment CitationKind = "judgment"
)

// Citation is an applicable provision or a landmark judgment.
type Citation struct {
	Kind        CitationKind `json:"kind"`
	Title       string       `json:"title"`
	Reference   string       `json:"reference,omitempty"`
	Description string       `json:"description,omitempty"`
}

// RemedyStep is one step of the suggested legal remedy path.
type RemedyStep struct {
	Step              int    `json:"step"`
	Action            string `json:"action"`
	TimeLimit         string `json:"time_limit,omitempty"`
	TemplateAvailable bool   `json:"template_available,omitempty"`
}

// Insights carries the optional estimates a model may add.
type Insights struct {
	BailApplicable   *bool  `json:"bail_applicable,omitempty"`
	BailReasoning    string `json:"bail_reasoning,omitempty"`
	EstimatedFees    string `json:"estimated_legal_fees,omitempty"`
	Timeline         string `json:"timeline_estimate,omitempty"`
	SuccessPercent   string `json:"success_percentage,omitempty"`
	SuccessReasoning string `json:"success_reasoning,omitempty"`
}

// ExtraSection holds an agent-defined section with no dedicated field.
type ExtraSection struct {
	Key   string   `json:"key"`
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// IsZero reports whether no insight was extracted.
func (i Insights) IsZero() bool {
	return i == Insights{}
}

// LegalAnalysisResult is the normalized answer handed to renderers and the API.
// It is built once by the normalizer and not modified after dispatch completes.
type LegalAnalysisResult struct {
	ID              string       `json:"id"`
	AgentID         string       `json:"agent_id"`
	AgentName       string       `json:"agent_name"`
	Query           Query        `json:"query"`
	Status          Completeness `json:"status"`
	MissingSections []string     `json:"missing_sections,omitempty"`

	Summary            string               `json:"summary,omitempty"`
	Classification     *LegalClassification `json:"classification,omitempty"`
	Citations          []Citation           `json:"citations,omitempty"`
	RemedySteps        []RemedyStep         `json:"remedy_steps,omitempty"`
	RecommendedActions []string             `json:"recommended_actions,omitempty"`
	EvidenceRequired   []string             `json:"evidence_required,omitempty"`
	RiskFactors        []string             `json:"risk_factors,omitempty"`
	Insights           *Insights            `json:"insights,omitempty"`
	Extra              []ExtraSection       `json:"extra_sections,omitempty"`
	Disclaimers        []string             `json:"disclaimers"`
	Warnings           []string             `json:"warnings,omitempty"`

	Routing   RoutingDecision `json:"routing"`
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	Usage     Usage           `json:"usage"`
	Latency   time.Duration   `json:"latency_ns"`
	CreatedAt time.Time       `json:"created_at"`
}

// Incomplete reports whether required sections were missing from the model answer.
func (r *LegalAnalysisResult) Incomplete() bool {
	return r.Status == StatusPartial
}

// Laws returns the statutory citations.
func (r *LegalAnalysisResult) Laws() []Citation { return r.citationsOf(CitationLaw) }

// Judgments returns the case-law citations.
func (r *LegalAnalysisResult) Judgments() []Citation { return r.citationsOf(CitationJudgment) }

func (r *LegalAnalysisResult) citationsOf(kind CitationKind) []Citation {
	var out []Citation
	for _, c := range r.Citations {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Renderer turns a finished analysis into a document.
type Renderer interface {
	Render(ctx context.Context, result *LegalAnalysisResult) ([]byte, error)
	ContentType() string
}
