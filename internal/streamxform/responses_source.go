package streamxform

import "time"

// fromResponsesEvent consumes one decoded OpenAI Responses API SSE
// event (these do carry an explicit `event:` field, unlike Chat
// Completions streaming).
func (s *State) fromResponsesEvent(eventName string, payload map[string]interface{}, now time.Time) ([]string, error) {
	switch eventName {
	case "response.created":
		if resp, ok := payload["response"].(map[string]interface{}); ok {
			s.MessageID, _ = resp["id"].(string)
			s.Model, _ = resp["model"].(string)
		}
		// Metadata-only: handleEvent's ensureMessageStart already opens
		// the Anthropic-target message_start once, before this event is
		// dispatched (mirrors fromOpenAIChatEvent's own pattern). A
		// second explicit emitStart here would double-emit it (spec
		// §4.4 / testable property 3: exactly one message_start).
		return nil, nil

	case "response.output_text.delta", "response.content_part.delta", "response.output_item.content_part.delta":
		text, _ := payload["delta"].(string)
		if text == "" {
			if d, ok := payload["delta"].(map[string]interface{}); ok {
				text, _ = d["text"].(string)
			}
		}
		s.recordEmit(now)
		return s.emitTextDelta(text), nil

	case "response.output_item.added":
		item, _ := payload["item"].(map[string]interface{})
		if typ, _ := item["type"].(string); typ == "function_call" {
			idx := len(s.ToolCalls) + 1 // Anthropic block 0 is the text block
			id, _ := item["call_id"].(string)
			if id == "" {
				id, _ = item["id"].(string)
			}
			name, _ := item["name"].(string)
			s.ToolCalls[idx] = &toolCallAccum{ID: id, Name: name}
			return s.emitToolCallStart(idx, id, name, now)
		}
		return nil, nil

	case "response.function_call_arguments.delta":
		delta, _ := payload["delta"].(string)
		idx := latestToolCallIndex(s.ToolCalls)
		if acc := s.ToolCalls[idx]; acc != nil {
			acc.Args.WriteString(delta)
		}
		s.recordEmit(now)
		return s.emitToolArgsDelta(idx, delta), nil

	case "response.output_item.done":
		idx := latestToolCallIndex(s.ToolCalls)
		return s.emitToolCallStop(idx, now)

	case "response.completed", "response.done":
		status := ""
		if resp, ok := payload["response"].(map[string]interface{}); ok {
			s.applyResponsesUsage(resp["usage"])
			status, _ = resp["status"].(string)
		}
		s.StopReason = mapResponsesStatusToStopReason(status)
		return s.emitFinal(now)

	default: // response.in_progress and similar lifecycle-only events
		return nil, nil
	}
}

func (s *State) applyResponsesUsage(raw interface{}) {
	u, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	applyOpenAILikeUsage(u, &s.Usage)
}

// extractResponsesMetadata mirrors fromResponsesEvent's bookkeeping
// without producing output frames, for pass-through streams.
func (s *State) extractResponsesMetadata(eventName string, payload map[string]interface{}, now time.Time) {
	switch eventName {
	case "response.output_text.delta", "response.content_part.delta", "response.output_item.content_part.delta",
		"response.function_call_arguments.delta":
		s.recordEmit(now)
	case "response.completed", "response.done":
		status := ""
		if resp, ok := payload["response"].(map[string]interface{}); ok {
			s.applyResponsesUsage(resp["usage"])
			status, _ = resp["status"].(string)
		}
		s.StopReason = mapResponsesStatusToStopReason(status)
		s.Finalized = true
	}
}

func latestToolCallIndex(m map[int]*toolCallAccum) int {
	max := 0
	for idx := range m {
		if idx > max {
			max = idx
		}
	}
	return max
}
