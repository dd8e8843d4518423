package streamxform

import "time"

// fromAnthropicEvent consumes one decoded Anthropic SSE event and
// emits it (re-encoded) in s.Target's wire format.
func (s *State) fromAnthropicEvent(eventName string, payload map[string]interface{}, now time.Time) ([]string, error) {
	switch eventName {
	case "message_start":
		if msg, ok := payload["message"].(map[string]interface{}); ok {
			s.MessageID, _ = msg["id"].(string)
			s.Model, _ = msg["model"].(string)
			s.applyAnthropicUsage(msg["usage"])
		}
		return s.emitStart(now)

	case "content_block_start":
		idx := intField(payload, "index")
		block, _ := payload["content_block"].(map[string]interface{})
		typ, _ := block["type"].(string)
		s.AnthropicBlockOpen[idx] = typ
		id, _ := block["id"].(string)
		name, _ := block["name"].(string)
		if typ == "tool_use" {
			s.ToolCalls[idx] = &toolCallAccum{ID: id, Name: name}
		}
		if s.Target == FormatOpenAIResponses {
			return s.emitResponsesBlockStart(idx, typ, id, name), nil
		}
		if typ == "tool_use" {
			return s.emitToolCallStart(idx, id, name, now)
		}
		return nil, nil

	case "content_block_delta":
		idx := intField(payload, "index")
		delta, _ := payload["delta"].(map[string]interface{})
		switch delta["type"] {
		case "text_delta":
			text, _ := delta["text"].(string)
			s.recordEmit(now)
			if s.Target == FormatOpenAIResponses {
				return s.emitResponsesTextDelta(idx, text), nil
			}
			return s.emitTextDelta(text), nil
		case "input_json_delta":
			partial, _ := delta["partial_json"].(string)
			if acc, ok := s.ToolCalls[idx]; ok {
				acc.Args.WriteString(partial)
			}
			s.recordEmit(now)
			if s.Target == FormatOpenAIResponses {
				return s.emitResponsesToolDelta(idx, partial), nil
			}
			return s.emitToolArgsDelta(idx, partial), nil
		}
		return nil, nil

	case "content_block_stop":
		idx := intField(payload, "index")
		typ := s.AnthropicBlockOpen[idx]
		delete(s.AnthropicBlockOpen, idx)
		if s.Target == FormatOpenAIResponses {
			// Responses direction closes out entirely at message_stop
			// (response.completed carries the finalBlocks); spec §4.4
			// names no intermediate event here.
			return nil, nil
		}
		if typ == "tool_use" {
			return s.emitToolCallStop(idx, now)
		}
		return nil, nil

	case "message_delta":
		if delta, ok := payload["delta"].(map[string]interface{}); ok {
			if sr, ok := delta["stop_reason"].(string); ok && sr != "" {
				s.StopReason = sr
			}
		}
		s.applyAnthropicUsage(payload["usage"])
		return nil, nil

	case "message_stop":
		s.applyAnthropicUsage(payload["usage"])
		return s.emitFinal(now)

	default: // ping, error and any unrecognised event: no client-visible effect
		return nil, nil
	}
}

func (s *State) applyAnthropicUsage(raw interface{}) {
	u, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	if v, ok := numberField(u, "input_tokens"); ok {
		s.Usage.InputTokens = v
	}
	if v, ok := numberField(u, "output_tokens"); ok {
		s.Usage.OutputTokens = v
	}
	if v, ok := numberField(u, "cache_read_input_tokens"); ok {
		s.Usage.CacheReadTokens = v
	}
	if v, ok := numberField(u, "cache_creation_input_tokens"); ok {
		s.Usage.CacheWriteTokens = v
	}
}

// extractAnthropicMetadata mirrors fromAnthropicEvent's bookkeeping
// side effects (TTFT/usage/stop-reason) without producing any output
// frames, for pass-through streams (spec §4.4 "Pass-through mode").
func (s *State) extractAnthropicMetadata(eventName string, payload map[string]interface{}, now time.Time) {
	switch eventName {
	case "message_start":
		if msg, ok := payload["message"].(map[string]interface{}); ok {
			s.applyAnthropicUsage(msg["usage"])
		}
	case "content_block_delta":
		if delta, _ := payload["delta"].(map[string]interface{}); delta != nil {
			if delta["type"] == "text_delta" || delta["type"] == "input_json_delta" {
				s.recordEmit(now)
			}
		}
	case "message_delta":
		if delta, ok := payload["delta"].(map[string]interface{}); ok {
			if sr, ok := delta["stop_reason"].(string); ok && sr != "" {
				s.StopReason = sr
			}
		}
		s.applyAnthropicUsage(payload["usage"])
	case "message_stop":
		s.applyAnthropicUsage(payload["usage"])
		s.Finalized = true
	}
}

func intField(m map[string]interface{}, key string) int {
	v, _ := numberField(m, key)
	return int(v)
}

func numberField(m map[string]interface{}, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
