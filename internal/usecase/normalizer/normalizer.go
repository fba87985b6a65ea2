// Package normalizer turns raw model text into a LegalAnalysisResult.
//
// Model answers are parsed tolerantly: a JSON object (possibly fenced or
// surrounded by prose) is preferred, and plain text with section headings is
// accepted as a fallback. Missing required sections produce a partial result,
// never an error; only an answer too short to carry any content is rejected.
package normalizer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"lexroute/internal/domain"
	"lexroute/internal/usecase/registry"
)

// DefaultMinResponseChars is the length below which an answer with no
// recognizable section is treated as unusable.
const DefaultMinResponseChars = 100

// Config tunes the normalizer.
type Config struct {
	MinResponseChars int
}

// Normalizer maps model answers onto the agent's output sections.
type Normalizer struct {
	minChars int
	logger   *slog.Logger
	now      func() time.Time

	schemas sync.Map // schema source -> *jsonschema.Schema
}

// New creates a Normalizer.
func New(cfg Config, logger *slog.Logger) *Normalizer {
	minChars := cfg.MinResponseChars
	if minChars <= 0 {
		minChars = DefaultMinResponseChars
	}
	return &Normalizer{
		minChars: minChars,
		logger:   logger,
		now:      time.Now,
	}
}

// Normalize builds the result for one model response.
func (n *Normalizer) Normalize(raw *domain.ModelResponse, agent domain.AgentProfile) (*domain.LegalAnalysisResult, error) {
	if raw == nil {
		return nil, domain.NewSubSystemError("normalizer", "Normalizer.Normalize", domain.ErrNormalization, "no model response")
	}

	result := &domain.LegalAnalysisResult{
		ID:        raw.CorrelationID,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Provider:  raw.Provider,
		Model:     raw.Model,
		Usage:     raw.Usage,
		Latency:   raw.Latency,
		CreatedAt: n.now(),
	}

	text := strings.TrimSpace(raw.Text)
	idx := newSectionIndex(agent.Output.Sections)

	var (
		values  map[string]any
		extras  []string
		fromTxt bool
	)
	if obj, ok := extractJSONObject(text); ok {
		values, extras = idx.matchJSON(obj)
		result.Warnings = append(result.Warnings, n.checkSchema(agent.Output.JSONSchema, obj)...)
		if d := toText(pick(obj, "disclaimer", "disclaimers")); d != "" {
			result.Disclaimers = append(result.Disclaimers, d)
		}
	}
	if len(values) == 0 {
		values = idx.matchText(text)
		fromTxt = len(values) > 0
	}

	present := make(map[string]bool, len(values))
	for _, spec := range agent.Output.Sections {
		v, ok := values[spec.Key]
		if !ok {
			continue
		}
		if apply(result, spec, v) {
			present[spec.Key] = true
		}
	}

	if len(present) == 0 {
		if len([]rune(text)) < n.minChars {
			return nil, domain.NewSubSystemError("normalizer", "Normalizer.Normalize", domain.ErrNormalization,
				fmt.Sprintf("answer has %d characters and no recognizable section", len([]rune(text))))
		}
		result.Summary = text
		present[registry.SectionSummary] = true
		result.Warnings = append(result.Warnings, "no sections recognized; the full answer is kept as the summary")
	} else if fromTxt {
		result.Warnings = append(result.Warnings, "answer was not JSON; sections were recovered from headings")
	}
	if len(extras) > 0 {
		result.Warnings = append(result.Warnings, "ignored unknown keys: "+strings.Join(extras, ", "))
	}

	for _, key := range agent.Output.RequiredKeys() {
		if !present[key] {
			result.MissingSections = append(result.MissingSections, key)
		}
	}
	result.Status = domain.StatusComplete
	if len(result.MissingSections) > 0 {
		result.Status = domain.StatusPartial
	}

	result.Disclaimers = append([]string{domain.StandardDisclaimer}, result.Disclaimers...)

	n.logger.Debug("response normalized",
		"agent", agent.ID,
		"status", result.Status,
		"missing", len(result.MissingSections),
		"from_text", fromTxt,
	)
	return result, nil
}

// checkSchema validates the decoded answer against the agent's JSON Schema.
// Violations are reported as warnings.
func (n *Normalizer) checkSchema(src string, obj map[string]any) []string {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	schema, err := n.compile(src)
	if err != nil {
		return []string{"output schema could not be compiled: " + err.Error()}
	}
	res := schema.Validate(obj)
	if res.IsValid() {
		return nil
	}
	return []string{"answer does not match the output schema: " + res.Error()}
}

func (n *Normalizer) compile(src string) (*jsonschema.Schema, error) {
	if s, ok := n.schemas.Load(src); ok {
		return s.(*jsonschema.Schema), nil
	}
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		return nil, err
	}
	n.schemas.Store(src, schema)
	return schema, nil
}
