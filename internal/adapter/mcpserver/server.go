// Package mcpserver exposes legal query routing and analysis as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"lexroute/internal/adapter/channel"
	"lexroute/internal/adapter/render"
	"lexroute/internal/domain"
)

// Tool names.
const (
	ToolAnalyze = "analyze_legal_query"
	ToolRoute   = "route_legal_query"
	ToolAgents  = "list_legal_agents"
)

const instructions = `Routes legal questions to specialized legal agents and returns a structured analysis.
Use route_legal_query to see which specialist fits a question, list_legal_agents to browse
the specialists, and analyze_legal_query to obtain the full analysis. Analyses are general
guidance, not legal advice.`

// Server wraps an MCP server bound to the dispatch API.
type Server struct {
	api    *channel.API
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New registers the tools on a new MCP server.
func New(api *channel.API, version string, logger *slog.Logger) *Server {
	s := &Server{
		api:    api,
		logger: logger,
		mcp: server.NewMCPServer(
			"lexroute",
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}

	s.mcp.AddTool(mcp.NewTool(ToolAnalyze,
		mcp.WithDescription("Analyze a legal question with the best matching specialist agent and return the structured analysis."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The legal question in plain language.")),
		mcp.WithString("agent_id", mcp.Description("Force a specific agent instead of automatic routing.")),
		mcp.WithString("jurisdiction", mcp.Description("State or country whose law applies, e.g. Delhi.")),
		mcp.WithString("case_type", mcp.Description("Optional case type hint that boosts routing, e.g. rti.")),
		mcp.WithString("context", mcp.Description("Additional facts of the matter.")),
		mcp.WithString("format", mcp.Enum("markdown", "json"), mcp.Description("Result format, markdown by default.")),
	), s.handleAnalyze)

	s.mcp.AddTool(mcp.NewTool(ToolRoute,
		mcp.WithDescription("Rank the specialist agents for a legal question without running an analysis."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The legal question in plain language.")),
		mcp.WithString("case_type", mcp.Description("Optional case type hint.")),
		mcp.WithNumber("limit", mcp.Description("How many recommendations to return (1-20)."), mcp.Min(1), mcp.Max(20)),
	), s.handleRoute)

	s.mcp.AddTool(mcp.NewTool(ToolAgents,
		mcp.WithDescription("List the specialist legal agents with their specializations and keywords."),
	), s.handleAgents)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := req.GetString("format", "markdown")
	raw, err := json.Marshal(channel.AnalyzeRequest{
		Query:        req.GetString("query", ""),
		AgentID:      req.GetString("agent_id", ""),
		Jurisdiction: req.GetString("jurisdiction", ""),
		CaseType:     req.GetString("case_type", ""),
		Context:      req.GetString("context", ""),
	})
	if err != nil {
		return nil, err
	}
	areq, err := channel.DecodeAnalyze(raw)
	if err != nil {
		return s.toolError(ctx, err), nil
	}

	result, err := s.api.Analyze(domain.ContextWithCorrelationID(ctx, domain.NewCorrelationID()), areq)
	if err != nil {
		return s.toolError(ctx, err), nil
	}

	if format == "json" {
		return jsonResult(result)
	}
	return mcp.NewToolResultText(render.Document(result)), nil
}

func (s *Server) handleRoute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rreq := channel.RouteRequest{
		Query:    req.GetString("query", ""),
		CaseType: req.GetString("case_type", ""),
		Limit:    req.GetInt("limit", channel.DefaultRouteLimit),
	}
	if rreq.Query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if rreq.Limit < 1 || rreq.Limit > 20 {
		return mcp.NewToolResultError("limit must be between 1 and 20"), nil
	}
	return jsonResult(s.api.Route(rreq))
}

func (s *Server) handleAgents(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.api.ListAgents())
}

func (s *Server) toolError(ctx context.Context, err error) *mcp.CallToolResult {
	body := channel.ErrorBodyOf(err, domain.CorrelationIDFromContext(ctx))
	s.logger.Warn("mcp tool failed", "code", body.Code, "stage", body.Stage, "error", err)
	msg := fmt.Sprintf("%s (%s)", body.Error, body.Code)
	if body.RetryAfterSeconds > 0 {
		msg += fmt.Sprintf("; retry after %ds", body.RetryAfterSeconds)
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
