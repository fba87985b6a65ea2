package scheduling

import (
	"context"
	"log/slog"

	"lexroute/internal/adapter/llm"
	"lexroute/internal/domain"
)

// StatsSource reports per-agent routing statistics.
type StatsSource interface {
	Stats() []domain.AgentStats
}

// BreakerSource reports circuit breaker states.
type BreakerSource interface {
	Breakers() []llm.BreakerStatus
}

// Reports holds the actions that log service health on a schedule.
// Either source may be nil, in which case its report logs nothing.
type Reports struct {
	StatsSource   StatsSource
	BreakerSource BreakerSource
	Logger        *slog.Logger
}

// Stats logs one line per agent that has handled traffic.
func (r *Reports) Stats(ctx context.Context) error {
	if r.StatsSource == nil {
		return nil
	}
	stats := r.StatsSource.Stats()
	var total int64
	for _, s := range stats {
		total += s.Total
		r.Logger.InfoContext(ctx, "agent stats",
			"agent_id", s.AgentID,
			"total", s.Total,
			"succeeded", s.Succeeded,
			"partial", s.Partial,
			"failed", s.Failed,
			"success_rate", s.SuccessRate,
			"avg_latency", s.AvgLatency,
		)
	}
	r.Logger.InfoContext(ctx, "stats report", "agents", len(stats), "dispatches", total)
	return nil
}

// Breakers logs every provider breaker, at warn level when it is not closed.
func (r *Reports) Breakers(ctx context.Context) error {
	if r.BreakerSource == nil {
		return nil
	}
	for _, b := range r.BreakerSource.Breakers() {
		level := slog.LevelInfo
		if b.State != "closed" {
			level = slog.LevelWarn
		}
		r.Logger.Log(ctx, level, "provider breaker",
			"provider", b.Provider,
			"state", b.State,
			"requests", b.Requests,
			"total_failures", b.TotalFailures,
			"consecutive_failures", b.ConsecutiveFailures,
		)
	}
	return nil
}
