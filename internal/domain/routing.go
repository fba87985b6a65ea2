package domain

// Candidate is one scored agent considered during classification.
type Candidate struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// RoutingDecision is the classifier's choice plus the alternatives it ranked.
type RoutingDecision struct {
	AgentID      string      `json:"agent_id"`
	Score        float64     `json:"score"`
	Confidence   float64     `json:"confidence"`
	Fallback     bool        `json:"fallback,omitempty"`
	Overridden   bool        `json:"overridden,omitempty"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// MatchLevel labels how strongly a query matches an agent.
type MatchLevel string

const (
	MatchHigh     MatchLevel = "highly_recommended"
	MatchMedium   MatchLevel = "recommended"
	MatchPossible MatchLevel = "possible_match"
	MatchLow      MatchLevel = "low_match"
)

// MatchLevelFor maps a raw routing score to a MatchLevel.
func MatchLevelFor(score float64) MatchLevel {
	switch {
	case score > 2:
		return MatchHigh
	case score > 1:
		return MatchMedium
	case score > 0.5:
		return MatchPossible
	default:
		return MatchLow
	}
}

// Recommendation is a ranked routing suggestion shown to API consumers.
type Recommendation struct {
	AgentID     string     `json:"agent_id"`
	AgentName   string     `json:"agent_name"`
	Score       float64    `json:"score"`
	Confidence  float64    `json:"confidence"`
	Level       MatchLevel `json:"level"`
	TopKeywords []string   `json:"top_keywords,omitempty"`
}
