// Package tokenizer provides domain.TokenCounter implementations.
package tokenizer

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"lexroute/internal/domain"
)

// messageOverhead approximates the role and framing tokens of one chat message.
const messageOverhead = 4

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// Estimator counts roughly four runes per token. It needs no vocabulary
// and never fails, so it is the default.
type Estimator struct{}

// CountText returns ceil(runes/4).
func (Estimator) CountText(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// CountMessages sums the content estimate plus a fixed per-message overhead.
func (e Estimator) CountMessages(msgs []domain.Message) int {
	return countMessages(e, msgs)
}

func countMessages(c domain.TokenCounter, msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountText(m.Content) + messageOverhead
	}
	return total
}

// Tiktoken counts with a BPE encoding from pkoukk/tiktoken-go.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. Loading may download the vocabulary
// on first use unless an offline loader is installed.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// CountText returns the exact BPE token count.
func (t *Tiktoken) CountText(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages sums the BPE count of every message plus framing overhead.
func (t *Tiktoken) CountMessages(msgs []domain.Message) int {
	return countMessages(t, msgs)
}

// New returns the counter named by kind ("estimate" or "tiktoken").
func New(kind, encoding string) (domain.TokenCounter, error) {
	switch kind {
	case "", "estimate":
		return Estimator{}, nil
	case "tiktoken":
		return NewTiktoken(encoding)
	default:
		return nil, domain.NewDomainError("tokenizer.New", domain.ErrConfiguration,
			fmt.Sprintf("unknown tokenizer %q", kind))
	}
}
