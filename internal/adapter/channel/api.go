// Package channel exposes the dispatch engine to callers: the HTTP API and
// the request shapes shared with the WebSocket stream and the MCP server.
package channel

import (
	"context"

	"lexroute/internal/domain"
)

// Dispatcher runs analyses.
type Dispatcher interface {
	Handle(ctx context.Context, req domain.DispatchRequest) (*domain.LegalAnalysisResult, error)
	Stats() []domain.AgentStats
}

// Router classifies queries without dispatching them.
type Router interface {
	Classify(q domain.Query) domain.RoutingDecision
	Recommend(q domain.Query, limit int) []domain.Recommendation
}

// AgentCatalog lists agent profiles.
type AgentCatalog interface {
	All() []domain.AgentProfile
	Lookup(id string) (domain.AgentProfile, error)
}

// AgentInfo is the public view of an agent profile.
type AgentInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Specialization string   `json:"specialization"`
	Description    string   `json:"description,omitempty"`
	Jurisdiction   string   `json:"jurisdiction,omitempty"`
	Acts           []string `json:"acts,omitempty"`
	Keywords       []string `json:"keywords"`
	Sections       []string `json:"sections"`
	Required       []string `json:"required_sections,omitempty"`
}

// NewAgentInfo projects a profile. The system prompt is not exposed.
func NewAgentInfo(p domain.AgentProfile) AgentInfo {
	sections := make([]string, 0, len(p.Output.Sections))
	for _, s := range p.Output.Sections {
		sections = append(sections, s.Key)
	}
	return AgentInfo{
		ID:             p.ID,
		Name:           p.Name,
		Specialization: p.Specialization,
		Description:    p.Description,
		Jurisdiction:   p.Jurisdiction,
		Acts:           p.Acts,
		Keywords:       p.Keywords,
		Sections:       sections,
		Required:       p.Output.RequiredKeys(),
	}
}

// RouteResult is the answer to a routing call.
type RouteResult struct {
	Decision        domain.RoutingDecision  `json:"decision"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}

// API is the transport-independent surface shared by HTTP, WebSocket and
// MCP callers.
type API struct {
	Dispatcher Dispatcher
	Router     Router
	Agents     AgentCatalog
}

// Analyze dispatches a validated request.
func (a *API) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.LegalAnalysisResult, error) {
	dreq, err := req.DispatchRequest()
	if err != nil {
		return nil, err
	}
	return a.Dispatcher.Handle(ctx, dreq)
}

// Route classifies a query and ranks the candidate agents.
func (a *API) Route(req RouteRequest) RouteResult {
	q := req.DomainQuery()
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultRouteLimit
	}
	recs := a.Router.Recommend(q, limit)
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return RouteResult{Decision: a.Router.Classify(q), Recommendations: recs}
}

// ListAgents returns every agent.
func (a *API) ListAgents() []AgentInfo {
	all := a.Agents.All()
	out := make([]AgentInfo, 0, len(all))
	for _, p := range all {
		out = append(out, NewAgentInfo(p))
	}
	return out
}

// Agent returns one agent.
func (a *API) Agent(id string) (AgentInfo, error) {
	p, err := a.Agents.Lookup(id)
	if err != nil {
		return AgentInfo{}, err
	}
	return NewAgentInfo(p), nil
}

// Stats returns routing statistics.
func (a *API) Stats() []domain.AgentStats {
	stats := a.Dispatcher.Stats()
	if stats == nil {
		stats = []domain.AgentStats{}
	}
	return stats
}
