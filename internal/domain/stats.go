package domain

import "time"

// AgentStats summarizes dispatches handled by one agent since startup.
type AgentStats struct {
	AgentID     string        `json:"agent_id"`
	Total       int64         `json:"total"`
	Succeeded   int64         `json:"succeeded"`
	Partial     int64         `json:"partial"`
	Failed      int64         `json:"failed"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
	SuccessRate float64       `json:"success_rate"`
}
