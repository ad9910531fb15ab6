package images

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/services/llm"
)

type stubChain struct {
	response string
	err      error
	calls    int
}

func (s *stubChain) Chat(_ context.Context, _, _ string, _ interfaces.ChatOptions) (*llm.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Result{Text: s.response, Provider: "stub", Model: "stub-model"}, nil
}

func TestPolicyBlocksKeywordsWithoutModelCall(t *testing.T) {
	chain := &stubChain{response: `{"allowed": true}`}
	policy := NewPolicy(chain)

	decision, err := policy.Evaluate(context.Background(), "Train crash leaves dozens injured", "", "national")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "blocked keyword")
	assert.NotEmpty(t, decision.FallbackQueries)
	assert.Zero(t, chain.calls, "keyword filter must short-circuit the classifier")
}

func TestPolicyFailsClosedWithoutClassifier(t *testing.T) {
	policy := NewPolicy(nil)

	decision, err := policy.Evaluate(context.Background(), "Local festival draws record crowds", "", "culture")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.FallbackQueries)
}

func TestPolicyAllowsWithSafePrompt(t *testing.T) {
	chain := &stubChain{response: `{"allowed": true, "safe_prompt": "colorful festival lanterns at dusk"}`}
	policy := NewPolicy(chain)

	decision, err := policy.Evaluate(context.Background(), "Local festival draws record crowds", "Thousands attended.", "culture")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "colorful festival lanterns at dusk", decision.SafePrompt)
}

func TestPolicyTreatsAllowWithoutPromptAsDenial(t *testing.T) {
	chain := &stubChain{response: `{"allowed": true, "safe_prompt": "  "}`}
	policy := NewPolicy(chain)

	decision, err := policy.Evaluate(context.Background(), "Local festival draws record crowds", "", "culture")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.FallbackQueries)
}

func TestPolicyFillsFallbackQueriesOnDenial(t *testing.T) {
	chain := &stubChain{response: `{"allowed": false, "reason": "identifiable politician"}`}
	policy := NewPolicy(chain)

	decision, err := policy.Evaluate(context.Background(), "Minister announces new budget", "", "politics")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.FallbackQueries, "politics news")
}

func TestPolicyPropagatesClassifierErrors(t *testing.T) {
	chain := &stubChain{err: errors.New("all chat providers failed")}
	policy := NewPolicy(chain)

	_, err := policy.Evaluate(context.Background(), "Local festival draws record crowds", "", "culture")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "policy classification"))
}
