// Package tokenest provides a cheap, provider-agnostic token count
// estimate used by the router for bucket selection and by the
// pipeline as the output-token fallback when an upstream reports no
// usage. It intentionally
// does not load a real tokenizer (spec §4.2 non-goal: "exact token
// counting").
package tokenest

import (
	"strings"

	"github.com/chenpu17/cc-gateway/internal/ir"
)

// charsPerToken is the heuristic used when no provider-specific
// tokenizer is available: ~4 characters of English text per token,
// the same rough constant the teacher's own cost-estimation helper
// used for non-tiktoken models.
const charsPerToken = 4

// EstimateText returns a rough token count for s.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	n := len(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	tokens := n / charsPerToken
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// EstimatePayload sums a rough token count across system text, every
// message and every tool description in p, used by the router to
// decide whether a request falls into the long-context bucket.
func EstimatePayload(p *ir.Payload) int {
	if p == nil {
		return 0
	}
	total := EstimateText(p.System)
	for _, m := range p.Messages {
		total += EstimateText(m.Text)
		for _, tc := range m.ToolCalls {
			total += EstimateText(tc.Name) + EstimateText(tc.ArgumentsText)
		}
		for _, tr := range m.ToolResults {
			total += EstimateText(stringify(tr.Content))
		}
	}
	for _, t := range p.Tools {
		total += EstimateText(t.Description) + len(t.InputSchema)/charsPerToken
	}
	return total
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return ""
	}
}
