package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lexroute/internal/domain"
)

const analyzeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query"],
  "additionalProperties": false,
  "properties": {
    "query":        {"type": "string", "minLength": 1, "maxLength": 20000},
    "agent_id":     {"type": "string", "maxLength": 64},
    "jurisdiction": {"type": "string", "maxLength": 128},
    "case_type":    {"type": "string", "maxLength": 64},
    "context":      {"type": "string", "maxLength": 50000},
    "format":       {"type": "string", "enum": ["", "json", "markdown", "md", "pdf", "html"]}
  }
}`

const routeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query"],
  "additionalProperties": false,
  "properties": {
    "query":        {"type": "string", "minLength": 1, "maxLength": 20000},
    "jurisdiction": {"type": "string", "maxLength": 128},
    "case_type":    {"type": "string", "maxLength": 64},
    "limit":        {"type": "integer", "minimum": 1, "maximum": 20}
  }
}`

// DefaultRouteLimit is how many recommendations /route returns by default.
const DefaultRouteLimit = 3

var (
	analyzeValidator = mustCompile("analyze.json", analyzeSchema)
	routeValidator   = mustCompile("route.json", routeSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// AnalyzeRequest is the body of an analyze call.
type AnalyzeRequest struct {
	Query        string `json:"query"`
	AgentID      string `json:"agent_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	CaseType     string `json:"case_type,omitempty"`
	Context      string `json:"context,omitempty"`
	Format       string `json:"format,omitempty"`
}

// DispatchRequest converts the body to the orchestrator's input.
func (r AnalyzeRequest) DispatchRequest() (domain.DispatchRequest, error) {
	format, err := domain.ParseOutputFormat(r.Format)
	if err != nil {
		return domain.DispatchRequest{}, err
	}
	return domain.DispatchRequest{
		Query: domain.Query{
			Text:         r.Query,
			Jurisdiction: strings.TrimSpace(r.Jurisdiction),
			CaseType:     strings.TrimSpace(r.CaseType),
			Context:      r.Context,
			Format:       format,
		},
		AgentID: strings.TrimSpace(r.AgentID),
	}, nil
}

// RouteRequest is the body of a routing recommendation call.
type RouteRequest struct {
	Query        string `json:"query"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	CaseType     string `json:"case_type,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// DomainQuery converts the body to a domain query.
func (r RouteRequest) DomainQuery() domain.Query {
	return domain.Query{
		Text:         r.Query,
		Jurisdiction: strings.TrimSpace(r.Jurisdiction),
		CaseType:     strings.TrimSpace(r.CaseType),
	}
}

// DecodeAnalyze validates raw against the analyze schema and decodes it.
func DecodeAnalyze(raw []byte) (AnalyzeRequest, error) {
	var req AnalyzeRequest
	err := decodeValidated("DecodeAnalyze", analyzeValidator, raw, &req)
	return req, err
}

// DecodeRoute validates raw against the route schema and decodes it.
func DecodeRoute(raw []byte) (RouteRequest, error) {
	var req RouteRequest
	if err := decodeValidated("DecodeRoute", routeValidator, raw, &req); err != nil {
		return req, err
	}
	if req.Limit == 0 {
		req.Limit = DefaultRouteLimit
	}
	return req, nil
}

func decodeValidated(op string, schema *jsonschema.Schema, raw []byte, out any) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.NewDomainError(op, domain.ErrInvalidInput, "invalid JSON: "+err.Error())
	}
	if err := schema.Validate(v); err != nil {
		return domain.NewDomainError(op, domain.ErrInvalidInput, validationMessage(err))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewDomainError(op, domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// validationMessage flattens a schema error to its leaf causes.
func validationMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "body"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
