package streamxform

import (
	"time"

	"github.com/chenpu17/cc-gateway/internal/ir"
)

// fromOpenAIChatEvent consumes one decoded "chat.completion.chunk"
// object (OpenAI Chat streaming never sends an SSE `event:` field, so
// the shape alone discriminates the delta kind).
func (s *State) fromOpenAIChatEvent(payload map[string]interface{}, now time.Time) ([]string, error) {
	if id, ok := payload["id"].(string); ok && s.MessageID == "" {
		s.MessageID = id
	}
	if model, ok := payload["model"].(string); ok && model != "" {
		s.Model = model
	}
	s.applyOpenAIUsage(payload["usage"])

	choices, _ := payload["choices"].([]interface{})
	var out []string
	for _, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
			s.StopReason = mapOpenAIFinishToStopReason(fr)
		}
		delta, _ := choice["delta"].(map[string]interface{})
		if delta == nil {
			continue
		}
		// reasoning_content is merged into the primary text block
		// rather than surfaced as a distinct "thinking" block (spec
		// §9 open question 2: the source itself merges it into text,
		// so this implementation keeps that behavior).
		text, ok := delta["content"].(string)
		if !ok || text == "" {
			text, ok = delta["reasoning_content"].(string)
		}
		if ok && text != "" {
			s.recordEmit(now)
			out = append(out, s.emitTextDelta(text)...)
		}
		if calls, ok := delta["tool_calls"].([]interface{}); ok {
			for _, rc := range calls {
				tc, ok := rc.(map[string]interface{})
				if !ok {
					continue
				}
				// Anthropic block 0 is the text block; tool call i is block i+1.
				idx := intField(tc, "index") + 1
				fn, _ := tc["function"].(map[string]interface{})
				if id, ok := tc["id"].(string); ok && id != "" {
					name, _ := fn["name"].(string)
					s.ToolCalls[idx] = &toolCallAccum{ID: id, Name: name}
					frames, err := s.emitToolCallStart(idx, id, name, now)
					if err != nil {
						return out, err
					}
					out = append(out, frames...)
					continue
				}
				if args, ok := fn["arguments"].(string); ok && args != "" {
					if acc := s.ToolCalls[idx]; acc != nil {
						acc.Args.WriteString(args)
					}
					s.recordEmit(now)
					out = append(out, s.emitToolArgsDelta(idx, args)...)
				}
			}
		}
	}

	if s.StopReason != "" {
		frames, err := s.emitFinal(now)
		if err != nil {
			return out, err
		}
		out = append(out, frames...)
		s.StopReason = "" // emitFinal already sent once per explicit finish_reason chunk
	}
	return out, nil
}

func (s *State) applyOpenAIUsage(raw interface{}) {
	u, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	applyOpenAILikeUsage(u, &s.Usage)
}

// applyOpenAILikeUsage maps an OpenAI-shaped usage object's field-name
// variants onto the four-field ir.Usage (spec §4.4 "Usage" extraction:
// "input_tokens|prompt_tokens, output_tokens|completion_tokens,
// cache_read_input_tokens|cached_tokens|prompt_tokens_details.cached_tokens,
// cache_creation_input_tokens"). Shared by both OpenAI-shaped sources
// (Chat Completions and Responses), since the field-name variants are
// the same set on either.
func applyOpenAILikeUsage(u map[string]interface{}, usage *ir.Usage) {
	if v, ok := numberField(u, "input_tokens"); ok {
		usage.InputTokens = v
	} else if v, ok := numberField(u, "prompt_tokens"); ok {
		usage.InputTokens = v
	}
	if v, ok := numberField(u, "output_tokens"); ok {
		usage.OutputTokens = v
	} else if v, ok := numberField(u, "completion_tokens"); ok {
		usage.OutputTokens = v
	}
	if v, ok := numberField(u, "cache_read_input_tokens"); ok {
		usage.CacheReadTokens = v
	} else if v, ok := numberField(u, "cached_tokens"); ok {
		usage.CacheReadTokens = v
	} else if details, ok := u["prompt_tokens_details"].(map[string]interface{}); ok {
		if v, ok := numberField(details, "cached_tokens"); ok {
			usage.CacheReadTokens = v
		}
	}
	if v, ok := numberField(u, "cache_creation_input_tokens"); ok {
		usage.CacheWriteTokens = v
	}
}

// extractOpenAIChatMetadata mirrors fromOpenAIChatEvent's usage,
// stop-reason and text-delta timing bookkeeping without producing
// output frames, for pass-through streams; tool-call argument
// fragments are not timed here.
func (s *State) extractOpenAIChatMetadata(payload map[string]interface{}, now time.Time) {
	s.applyOpenAIUsage(payload["usage"])
	choices, _ := payload["choices"].([]interface{})
	for _, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
			s.StopReason = mapOpenAIFinishToStopReason(fr)
			s.Finalized = true
		}
		delta, _ := choice["delta"].(map[string]interface{})
		if delta == nil {
			continue
		}
		if text, _ := delta["content"].(string); text != "" {
			s.recordEmit(now)
		} else if text, _ := delta["reasoning_content"].(string); text != "" {
			s.recordEmit(now)
		}
	}
}

func mapOpenAIFinishToStopReason(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}
