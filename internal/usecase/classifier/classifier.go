// Package classifier scores a legal query against every registered agent's
// routing keywords and picks the best match.
package classifier

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"lexroute/internal/domain"
)

const (
	// phraseWeight is added per matched keyword token.
	phraseWeight = 1.5
	// caseTypeIDBoost applies when the case-type hint names the agent.
	caseTypeIDBoost = 10.0
	// caseTypeKeywordBoost applies when the hint contains one of the agent's keywords.
	caseTypeKeywordBoost = 2.0
	// fallbackConfidence is reported when no agent scored.
	fallbackConfidence = 0.1
	// topKeywords is how many keywords a recommendation lists.
	topKeywords = 5
)

// AgentSource is the read side of the agent registry.
type AgentSource interface {
	All() []domain.AgentProfile
	Fallback() domain.AgentProfile
}

type agentKeywords struct {
	profile domain.AgentProfile
	phrases [][]string
}

// Classifier is pure: the same query always yields the same decision.
type Classifier struct {
	agents     []agentKeywords
	fallbackID string
}

// New pre-tokenizes every agent's keywords.
func New(src AgentSource) *Classifier {
	all := src.All()
	c := &Classifier{
		agents:     make([]agentKeywords, 0, len(all)),
		fallbackID: src.Fallback().ID,
	}
	for _, p := range all {
		ak := agentKeywords{profile: p}
		for _, kw := range p.Keywords {
			if toks := Tokenize(kw); len(toks) > 0 {
				ak.phrases = append(ak.phrases, toks)
			}
		}
		c.agents = append(c.agents, ak)
	}
	return c
}

// Tokenize lowercases s and splits it on every rune that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// countPhrase counts occurrences of phrase as a contiguous window of tokens.
func countPhrase(tokens, phrase []string) int {
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

func (c *Classifier) score(q domain.Query) ([]domain.Candidate, int) {
	tokens := Tokenize(q.Text)
	hint := Tokenize(q.CaseType)
	hintID := domain.NormalizeKey(strings.Join(hint, "_"))

	candidates := make([]domain.Candidate, len(c.agents))
	for i, a := range c.agents {
		var s float64
		for _, phrase := range a.phrases {
			s += float64(countPhrase(tokens, phrase)) * phraseWeight * float64(len(phrase))
		}
		if len(hint) > 0 {
			if hintID == a.profile.ID {
				s += caseTypeIDBoost
			} else {
				for _, phrase := range a.phrases {
					if countPhrase(hint, phrase) > 0 {
						s += caseTypeKeywordBoost
						break
					}
				}
			}
		}
		candidates[i] = domain.Candidate{AgentID: a.profile.ID, Score: s}
	}

	// Stable keeps registry declaration order between equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, len(tokens)
}

func confidence(score float64, tokens int) float64 {
	if tokens == 0 {
		return math.Min(1, score)
	}
	return math.Min(1, score/float64(tokens))
}

// Classify ranks every agent for q. When nothing scores it returns the
// fallback agent with a fixed low confidence; the decision is never empty.
func (c *Classifier) Classify(q domain.Query) domain.RoutingDecision {
	candidates, tokens := c.score(q)

	top := candidates[0]
	if top.Score <= 0 {
		return domain.RoutingDecision{
			AgentID:    c.fallbackID,
			Confidence: fallbackConfidence,
			Fallback:   true,
		}
	}

	var alts []domain.Candidate
	for _, cand := range candidates[1:] {
		if cand.Score > 0 {
			alts = append(alts, cand)
		}
	}
	return domain.RoutingDecision{
		AgentID:      top.AgentID,
		Score:        top.Score,
		Confidence:   confidence(top.Score, tokens),
		Alternatives: alts,
	}
}

// Recommend returns up to limit ranked suggestions with match levels.
// The fallback agent is listed only when no specialist scored.
func (c *Classifier) Recommend(q domain.Query, limit int) []domain.Recommendation {
	candidates, tokens := c.score(q)
	byID := make(map[string]domain.AgentProfile, len(c.agents))
	for _, a := range c.agents {
		byID[a.profile.ID] = a.profile
	}

	var out []domain.Recommendation
	for _, cand := range candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		if cand.Score <= 0 {
			continue
		}
		out = append(out, recommendation(byID[cand.AgentID], cand.Score, confidence(cand.Score, tokens)))
	}

	if len(out) == 0 {
		out = append(out, recommendation(byID[c.fallbackID], 0, fallbackConfidence))
	}
	return out
}

func recommendation(p domain.AgentProfile, score, conf float64) domain.Recommendation {
	kw := p.Keywords
	if len(kw) > topKeywords {
		kw = kw[:topKeywords]
	}
	return domain.Recommendation{
		AgentID:     p.ID,
		AgentName:   p.Name,
		Score:       score,
		Confidence:  conf,
		Level:       domain.MatchLevelFor(score),
		TopKeywords: append([]string(nil), kw...),
	}
}
