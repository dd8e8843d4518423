package pipeline

import (
	"github.com/chenpu17/cc-gateway/internal/ir"
)

// extractUsage reads a non-streaming upstream response body's usage
// block under whichever field-name variant family's wire format uses
// (spec §4.6 step 10: "extract usage ... fall back to tokenizer
// estimation for missing fields"), mirroring the field-name table
// streamxform already applies to streamed usage events.
func extractUsage(family Protocol, body map[string]interface{}) ir.Usage {
	u, _ := body["usage"].(map[string]interface{})
	if u == nil {
		return ir.Usage{}
	}
	if family == ProtocolAnthropic {
		return ir.Usage{
			InputTokens:      toInt(u["input_tokens"]),
			OutputTokens:     toInt(u["output_tokens"]),
			CacheReadTokens:  toInt(u["cache_read_input_tokens"]),
			CacheWriteTokens: toInt(u["cache_creation_input_tokens"]),
		}
	}
	cachedRead := toInt(u["cached_tokens"])
	if cachedRead == 0 {
		if details, ok := u["prompt_tokens_details"].(map[string]interface{}); ok {
			cachedRead = toInt(details["cached_tokens"])
		}
	}
	return ir.Usage{
		InputTokens:     toInt(u["prompt_tokens"]),
		OutputTokens:    toInt(u["completion_tokens"]),
		CacheReadTokens: cachedRead,
	}
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// responseTextFor extracts the plain assistant text from a
// non-streaming upstream body, used only as input to the tokenizer
// fallback estimate when the usage read from the body has zero input
// and zero output tokens, a missing usage block included (spec §4.6
// step 10, §9 Open Question #3).
func responseTextFor(family Protocol, body map[string]interface{}) string {
	if family == ProtocolAnthropic {
		var text string
		if content, ok := body["content"].([]interface{}); ok {
			for _, item := range content {
				block, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				if block["type"] == "text" {
					if s, ok := block["text"].(string); ok {
						text += s
					}
				}
			}
		}
		return text
	}
	if choices, ok := body["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if msg, ok := choice["message"].(map[string]interface{}); ok {
				if s, ok := msg["content"].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}
