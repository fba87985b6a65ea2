package normalizer

import (
	"sort"
	"strconv"
	"strings"

	"lexroute/internal/domain"
	"lexroute/internal/usecase/registry"
)

const (
	summaryKey        = registry.SectionSummary
	classificationKey = registry.SectionClassification
	lawsKey           = registry.SectionLaws
	judgmentsKey      = registry.SectionJudgments
	remedyKey         = registry.SectionRemedyPath
	insightsKey       = registry.SectionInsights
	adviceKey         = registry.SectionAdvice
)

// apply decodes v into the result field for spec and reports whether any
// content was extracted. Agent-defined sections without a dedicated field,
// and known sections whose content fits no field, land in Extra.
func apply(r *domain.LegalAnalysisResult, spec domain.SectionSpec, v any) bool {
	var ok bool
	switch spec.Key {
	case summaryKey:
		r.Summary = toText(v)
		ok = r.Summary != ""
	case classificationKey:
		r.Classification = decodeClassification(v)
		ok = r.Classification != nil
	case lawsKey:
		before := len(r.Citations)
		r.Citations = append(r.Citations, decodeCitations(v, domain.CitationLaw)...)
		ok = len(r.Citations) > before
	case judgmentsKey:
		before := len(r.Citations)
		r.Citations = append(r.Citations, decodeCitations(v, domain.CitationJudgment)...)
		ok = len(r.Citations) > before
	case remedyKey:
		r.RemedySteps = decodeRemedy(v)
		ok = len(r.RemedySteps) > 0
	case insightsKey:
		r.Insights = decodeInsights(v)
		ok = r.Insights != nil
	case adviceKey:
		ok = decodeAdvice(r, v)
	}
	if ok {
		return true
	}

	items := toStrings(v)
	if len(items) == 0 {
		return false
	}
	title := spec.Title
	if title == "" {
		title = spec.Key
	}
	r.Extra = append(r.Extra, domain.ExtraSection{Key: spec.Key, Title: title, Items: items})
	return true
}

func decodeClassification(v any) *domain.LegalClassification {
	m, lines := asMap(v)
	if m == nil {
		if s := toText(v); s != "" {
			return &domain.LegalClassification{Domain: s}
		}
		return nil
	}
	c := &domain.LegalClassification{
		Domain:       toText(pick(m, "domain", "legal_domain", "area", "category", "type")),
		Jurisdiction: toText(pick(m, "jurisdiction", "court_jurisdiction")),
		Forums:       toStrings(pick(m, "relevant_forum", "forum", "forums", "court", "courts")),
	}
	if c.Domain == "" && c.Jurisdiction == "" && len(c.Forums) == 0 {
		if len(lines) == 0 {
			return nil
		}
		c.Domain = strings.Join(lines, " ")
	}
	return c
}

func decodeCitations(v any, kind domain.CitationKind) []domain.Citation {
	titleKeys := []string{"law_rule", "law", "act", "statute", "provision", "title", "name"}
	refKeys := []string{"section_clause", "section", "sections", "clause", "reference", "citation"}
	descKeys := []string{"description", "explanation", "relevance", "summary"}
	if kind == domain.CitationJudgment {
		titleKeys = []string{"case", "case_name", "title", "name", "parties"}
		refKeys = []string{"citation", "reference", "year", "court"}
		descKeys = []string{"principle", "held", "ratio", "relevance", "description", "summary"}
	}

	var out []domain.Citation
	for _, item := range asList(v) {
		var c domain.Citation
		if m, ok := item.(map[string]any); ok {
			c = domain.Citation{
				Title:       toText(pick(m, titleKeys...)),
				Reference:   toText(pick(m, refKeys...)),
				Description: toText(pick(m, descKeys...)),
			}
			if c.Title == "" {
				c.Title, c.Reference = c.Reference, ""
			}
		} else {
			c.Title = toText(item)
		}
		if c.Title == "" {
			continue
		}
		c.Kind = kind
		out = append(out, c)
	}
	return out
}

func decodeRemedy(v any) []domain.RemedyStep {
	var out []domain.RemedyStep
	for i, item := range asList(v) {
		step := domain.RemedyStep{Step: i + 1}
		if m, ok := item.(map[string]any); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(toText(pick(m, "step", "step_number", "number")))); err == nil && n > 0 {
				step.Step = n
			}
			step.Action = toText(pick(m, "action", "description", "step_description", "title", "details"))
			step.TimeLimit = toText(pick(m, "time_limit", "timeline", "deadline", "limitation"))
			step.TemplateAvailable = boolOf(pick(m, "template_available", "template")) == boolTrue
		} else {
			step.Action = stepPrefix.ReplaceAllString(toText(item), "")
		}
		if step.Action == "" {
			continue
		}
		out = append(out, step)
	}
	return out
}

func decodeInsights(v any) *domain.Insights {
	m, _ := asMap(v)
	if m == nil {
		return nil
	}
	ins := domain.Insights{
		EstimatedFees: toText(pick(m, "estimated_legal_fees", "legal_fees", "fees", "cost", "estimated_cost")),
		Timeline:      toText(pick(m, "timeline_estimate", "timeline", "duration", "expected_duration")),
	}

	switch bail := pick(m, "bail_applicability", "bail_applicable", "bail").(type) {
	case map[string]any:
		ins.BailApplicable = boolPtr(boolOf(pick(bail, "applicable", "available", "bail_applicable")))
		ins.BailReasoning = toText(pick(bail, "reasoning", "reason", "explanation"))
	case nil:
	default:
		ins.BailApplicable = boolPtr(boolOf(bail))
		if _, isBool := bail.(bool); !isBool {
			ins.BailReasoning = toText(bail)
		}
	}
	if ins.BailReasoning == "" {
		ins.BailReasoning = toText(pick(m, "bail_reasoning"))
	}

	switch sp := pick(m, "success_probability", "success_percentage", "success_rate", "success", "chances_of_success").(type) {
	case map[string]any:
		ins.SuccessPercent = toText(pick(sp, "percentage", "percent", "probability", "value"))
		ins.SuccessReasoning = toText(pick(sp, "reasoning", "reason", "explanation"))
	case nil:
	default:
		ins.SuccessPercent = toText(sp)
	}

	if ins.IsZero() {
		return nil
	}
	return &ins
}

func decodeAdvice(r *domain.LegalAnalysisResult, v any) bool {
	m, lines := asMap(v)
	if m == nil {
		r.RecommendedActions = toStrings(v)
		return len(r.RecommendedActions) > 0
	}
	r.RecommendedActions = toStrings(pick(m, "immediate_actions", "recommended_actions", "actions", "next_steps", "recommendations", "advice"))
	r.EvidenceRequired = toStrings(pick(m, "evidence_required", "evidence", "documents_required", "documents"))
	r.RiskFactors = toStrings(pick(m, "risk_factors", "risks", "risk"))
	if len(r.RecommendedActions)+len(r.EvidenceRequired)+len(r.RiskFactors) == 0 && len(lines) > 0 {
		r.RecommendedActions = lines
	}
	return len(r.RecommendedActions)+len(r.EvidenceRequired)+len(r.RiskFactors) > 0
}

// --- loose value helpers ---

// asMap returns v as an object. Heading text yields its parsed key/value
// lines together with the raw lines.
func asMap(v any) (map[string]any, []string) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case textSection:
		return t.kv, t.lines
	}
	return nil, nil
}

// asList treats a single object or scalar as a one-element list.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		var out []any
		for _, line := range strings.Split(t, "\n") {
			if s := cleanItem(line); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []any{t}
	}
}

// pick returns the first value whose key matches one of names, comparing
// keys with domain.NormalizeKey.
func pick(m map[string]any, names ...string) any {
	if len(m) == 0 {
		return nil
	}
	for _, name := range names {
		if v, ok := m[name]; ok {
			return v
		}
	}
	norm := make(map[string]any, len(m))
	for k, v := range m {
		norm[domain.NormalizeKey(k)] = v
	}
	for _, name := range names {
		if v, ok := norm[domain.NormalizeKey(name)]; ok {
			return v
		}
	}
	return nil
}

// toText flattens any decoded JSON value into a single line of text.
func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case textSection:
		return strings.Join(t.lines, " ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := toText(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		keys := sortedKeys(t)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := toText(t[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

// toStrings flattens v into a list of non-empty lines.
func toStrings(v any) []string {
	if ts, ok := v.(textSection); ok {
		return append([]string(nil), ts.lines...)
	}
	var out []string
	for _, item := range asList(v) {
		if s := toText(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type tristate int

const (
	boolUnknown tristate = iota
	boolTrue
	boolFalse
)

// boolOf reads booleans written as JSON bools or as words like "yes" or
// "not applicable".
func boolOf(v any) tristate {
	switch t := v.(type) {
	case bool:
		if t {
			return boolTrue
		}
		return boolFalse
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch {
		case s == "":
			return boolUnknown
		case strings.HasPrefix(s, "not"), strings.HasPrefix(s, "no"), strings.HasPrefix(s, "false"),
			strings.HasPrefix(s, "non-bailable"), strings.HasPrefix(s, "unlikely"):
			return boolFalse
		case strings.HasPrefix(s, "yes"), strings.HasPrefix(s, "true"), strings.HasPrefix(s, "applicable"),
			strings.HasPrefix(s, "bailable"), strings.HasPrefix(s, "likely"):
			return boolTrue
		}
	}
	return boolUnknown
}

func boolPtr(t tristate) *bool {
	if t == boolUnknown {
		return nil
	}
	b := t == boolTrue
	return &b
}
