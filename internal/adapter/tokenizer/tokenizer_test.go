package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexroute/internal/domain"
)

func TestEstimatorCountText(t *testing.T) {
	var e Estimator
	assert.Equal(t, 0, e.CountText(""))
	assert.Equal(t, 1, e.CountText("abc"))
	assert.Equal(t, 1, e.CountText("abcd"))
	assert.Equal(t, 2, e.CountText("abcde"))
	// Runes, not bytes.
	assert.Equal(t, 1, e.CountText("कानू"))
}

func TestEstimatorCountMessages(t *testing.T) {
	var e Estimator
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: "12345678"},
		{Role: domain.RoleUser, Content: ""},
	}
	assert.Equal(t, 2+messageOverhead+0+messageOverhead, e.CountMessages(msgs))
}

func TestNewKinds(t *testing.T) {
	c, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, Estimator{}, c)

	_, err = New("sentencepiece", "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestTiktokenCounts(t *testing.T) {
	tk, err := NewTiktoken("")
	if err != nil {
		t.Skipf("tiktoken vocabulary unavailable: %v", err)
	}
	n := tk.CountText("Right to Information Act, 2005")
	assert.Greater(t, n, 0)
	assert.Equal(t, n+messageOverhead, tk.CountMessages([]domain.Message{{Content: "Right to Information Act, 2005"}}))
}
