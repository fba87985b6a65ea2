package dispatch

import (
	"sort"
	"sync"
	"time"

	"lexroute/internal/domain"
)

type agentCounters struct {
	total, succeeded, partial, failed int64
	latency                           time.Duration
}

// statsCollector keeps per-agent dispatch counters since startup.
type statsCollector struct {
	mu     sync.Mutex
	agents map[string]*agentCounters
}

func newStatsCollector() *statsCollector {
	return &statsCollector{agents: make(map[string]*agentCounters)}
}

// record counts one finished dispatch. An empty status means it failed.
func (s *statsCollector) record(agentID string, status domain.Completeness, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.agents[agentID]
	if !ok {
		c = &agentCounters{}
		s.agents[agentID] = c
	}
	c.total++
	c.latency += elapsed
	switch status {
	case domain.StatusComplete:
		c.succeeded++
	case domain.StatusPartial:
		c.partial++
	default:
		c.failed++
	}
}

func (s *statsCollector) snapshot() []domain.AgentStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AgentStats, 0, len(s.agents))
	for id, c := range s.agents {
		st := domain.AgentStats{
			AgentID:   id,
			Total:     c.total,
			Succeeded: c.succeeded,
			Partial:   c.partial,
			Failed:    c.failed,
		}
		if c.total > 0 {
			st.AvgLatency = c.latency / time.Duration(c.total)
			st.SuccessRate = float64(c.succeeded+c.partial) / float64(c.total)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
