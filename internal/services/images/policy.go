package images

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/services/llm"
)

// ErrPolicyDenied marks a generation attempt blocked by the safety
// policy where no fallback search produced a usable image either.
var ErrPolicyDenied = errors.New("image generation denied by policy")

// blockedKeywords denies generation outright before any model call.
// News about these topics gets searched imagery, never synthetic.
var blockedKeywords = []string{
	"death", "dead", "killed", "murder", "suicide", "massacre",
	"shooting", "bombing", "terror", "rape", "assault", "abuse",
	"accident", "crash", "casualt", "injured", "victim",
	"child", "minor", "kidnap",
	"war", "airstrike", "hostage",
}

const policySystemPrompt = `You are a safety reviewer for AI image generation at a news organization. Decide whether generating an illustrative image for a news item is appropriate. Generation is NOT appropriate for: real identifiable people, tragedies, violence, crime victims, children, or anything a reader could mistake for a real photograph of the event. When generation is allowed, produce a safe generic prompt with no names, no real locations, no text in the image. When denied, suggest 2-3 short stock-photo search queries instead.`

// policyUserPrompt renders the classification request.
func policyUserPrompt(title, summary, category string) string {
	return fmt.Sprintf(`News item (category: %s):
Title: %s
Summary: %s

Respond with JSON:
{"allowed": true|false, "reason": "...", "safe_prompt": "... or empty", "fallback_queries": ["...", "..."]}`,
		category, title, summary)
}

// ChatChain is the LLM dependency for the policy classifier and the
// generation prompt builder.
type ChatChain interface {
	Chat(ctx context.Context, system, user string, opts interfaces.ChatOptions) (*llm.Result, error)
}

// Policy gates AI image generation: a cheap keyword filter first, then
// an LLM classifier for everything the filter does not catch.
type Policy struct {
	chain  ChatChain
	logger arbor.ILogger
}

func NewPolicy(chain ChatChain) *Policy {
	return &Policy{chain: chain, logger: common.GetLogger()}
}

func (p *Policy) Evaluate(ctx context.Context, title, summary, category string) (models.PolicyDecision, error) {
	if keyword := matchBlockedKeyword(title + " " + summary); keyword != "" {
		return models.PolicyDecision{
			Allowed:         false,
			Reason:          "blocked keyword: " + keyword,
			FallbackQueries: fallbackQueriesFor(title, category),
		}, nil
	}

	if p.chain == nil {
		// No classifier available: fail closed.
		return models.PolicyDecision{
			Allowed:         false,
			Reason:          "no policy classifier available",
			FallbackQueries: fallbackQueriesFor(title, category),
		}, nil
	}

	result, err := p.chain.Chat(ctx, policySystemPrompt, policyUserPrompt(title, summary, category), interfaces.ChatOptions{JSONMode: true})
	if err != nil {
		return models.PolicyDecision{}, fmt.Errorf("policy classification: %w", err)
	}

	var decision models.PolicyDecision
	if err := llm.ParseJSON(result.Text, &decision); err != nil {
		return models.PolicyDecision{}, fmt.Errorf("policy classification: %w", err)
	}

	if !decision.Allowed && len(decision.FallbackQueries) == 0 {
		decision.FallbackQueries = fallbackQueriesFor(title, category)
	}
	if decision.Allowed && strings.TrimSpace(decision.SafePrompt) == "" {
		// An allow without a prompt is useless; treat as denial.
		decision.Allowed = false
		decision.Reason = "classifier allowed without a safe prompt"
		decision.FallbackQueries = fallbackQueriesFor(title, category)
	}

	p.logger.Debug().
		Bool("allowed", decision.Allowed).
		Str("reason", decision.Reason).
		Str("model", result.Model).
		Msg("Generation policy evaluated")

	return decision, nil
}

func matchBlockedKeyword(text string) string {
	lower := strings.ToLower(text)
	for _, keyword := range blockedKeywords {
		if strings.Contains(lower, keyword) {
			return keyword
		}
	}
	return ""
}

// fallbackQueriesFor produces generic searchable queries when
// generation is denied.
func fallbackQueriesFor(title, category string) []string {
	queries := []string{BuildQuery(title, "")}
	if category != "" {
		queries = append(queries, category+" news", category)
	} else {
		queries = append(queries, "news headlines")
	}
	return queries
}

var _ interfaces.PolicyGate = (*Policy)(nil)
