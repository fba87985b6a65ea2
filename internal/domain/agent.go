package domain

import (
	"strings"
	"text/template"
)

// AgentProfile is a specialized legal agent: a system prompt template plus the
// routing keywords for its domain. Profiles are immutable once the registry
// is built; the registry only hands out copies.
type AgentProfile struct {
	ID             string       `json:"id"                     yaml:"id"`
	Name           string       `json:"name"                   yaml:"name"`
	Specialization string       `json:"specialization"         yaml:"specialization"`
	Description    string       `json:"description,omitempty"  yaml:"description,omitempty"`
	Jurisdiction   string       `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
	Acts           []string     `json:"acts,omitempty"         yaml:"acts,omitempty"`
	Keywords       []string     `json:"keywords"               yaml:"keywords"`
	SystemPrompt   string       `json:"-"                      yaml:"system_prompt"`
	Output         OutputSchema `json:"output"                 yaml:"output"`
	Provider       string       `json:"provider,omitempty"     yaml:"provider,omitempty"`
	Model          string       `json:"model,omitempty"        yaml:"model,omitempty"`
}

// OutputSchema describes the sections an agent's answer is expected to contain.
type OutputSchema struct {
	Sections []SectionSpec `json:"sections"              yaml:"sections"`
	// JSONSchema optionally constrains the JSON form of the answer.
	JSONSchema string `json:"json_schema,omitempty" yaml:"json_schema,omitempty"`
}

// SectionSpec names one expected section of a model answer.
type SectionSpec struct {
	Key      string   `json:"key"               yaml:"key"`
	Title    string   `json:"title"             yaml:"title"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Required bool     `json:"required"          yaml:"required"`
}

// Names returns the key, title and aliases of the section.
func (s SectionSpec) Names() []string {
	names := make([]string, 0, 2+len(s.Aliases))
	names = append(names, s.Key)
	if s.Title != "" {
		names = append(names, s.Title)
	}
	return append(names, s.Aliases...)
}

// RequiredKeys returns the keys of the required sections in declaration order.
func (o OutputSchema) RequiredKeys() []string {
	var keys []string
	for _, s := range o.Sections {
		if s.Required {
			keys = append(keys, s.Key)
		}
	}
	return keys
}

// Clone returns a deep copy of the profile.
func (p AgentProfile) Clone() AgentProfile {
	c := p
	c.Acts = append([]string(nil), p.Acts...)
	c.Keywords = append([]string(nil), p.Keywords...)
	c.Output.Sections = make([]SectionSpec, len(p.Output.Sections))
	for i, s := range p.Output.Sections {
		s.Aliases = append([]string(nil), s.Aliases...)
		c.Output.Sections[i] = s
	}
	return c
}

// NormalizeKey folds a section or agent name for comparison: lower case with
// spaces, hyphens and underscores treated alike.
func NormalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_", "&", "and").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

var promptFuncs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
}

// ParsePrompt parses the profile's system prompt as a text/template.
func (p AgentProfile) ParsePrompt() (*template.Template, error) {
	return template.New(p.ID).Funcs(promptFuncs).Parse(p.SystemPrompt)
}
