package streamxform

import (
	"encoding/json"
	"time"

	"github.com/chenpu17/cc-gateway/internal/sse"
)

// frame wraps a JSON event payload into the wire framing s.Target
// expects: OpenAI formats are bare "data: {json}\n\n"; Anthropic
// requires an explicit "event: <type>" line before the data line.
func (s *State) frame(eventType string, payload map[string]interface{}) string {
	b, _ := json.Marshal(payload)
	if s.Target == FormatAnthropic {
		return sse.WriteEventLine(eventType) + sse.WriteDataLine(string(b)) + sse.Blank
	}
	return sse.WriteDataLine(string(b)) + sse.Blank
}

func (s *State) emitStart(now time.Time) ([]string, error) {
	switch s.Target {
	case FormatAnthropic:
		return []string{s.frame("message_start", map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id": s.MessageID, "type": "message", "role": "assistant", "model": s.Model,
				"content": []interface{}{}, "usage": map[string]interface{}{"input_tokens": s.Usage.InputTokens, "output_tokens": 0},
			},
		})}, nil
	case FormatOpenAIResponses:
		if s.Source != FormatAnthropic {
			return nil, nil // only the Anthropic-source direction carries responsesState/ids
		}
		rs := s.ensureResponsesState()
		if rs.createdSent {
			return nil, nil
		}
		rs.createdSent = true
		return []string{s.frame("response.created", map[string]interface{}{
			"type": "response.created",
			"response": map[string]interface{}{
				"id": rs.responseID, "object": "response", "model": s.Model, "status": "in_progress",
			},
		})}, nil
	default:
		return nil, nil // OpenAI-Chat has no explicit "stream started" event
	}
}

func (s *State) emitTextDelta(text string) []string {
	switch s.Target {
	case FormatAnthropic:
		var out []string
		if s.Source != FormatAnthropic && !s.textBlockOpen {
			// Non-Anthropic sources never send an explicit
			// content_block_start for text; synthesize one the first
			// time text arrives (spec §4.4 OpenAI-Chat→Anthropic
			// mapping).
			s.textBlockOpen = true
			out = append(out, s.frame("content_block_start", map[string]interface{}{
				"type": "content_block_start", "index": 0,
				"content_block": map[string]interface{}{"type": "text", "text": ""},
			}))
		}
		return append(out, s.frame("content_block_delta", map[string]interface{}{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]interface{}{"type": "text_delta", "text": text},
		}))
	case FormatOpenAIResponses:
		return []string{s.frame("response.output_text.delta", map[string]interface{}{
			"type": "response.output_text.delta", "delta": text,
		})}
	default: // openai-chat
		return []string{s.frame("", map[string]interface{}{
			"id": s.MessageID, "object": "chat.completion.chunk", "model": s.Model,
			"choices": []interface{}{map[string]interface{}{
				"index": 0, "delta": map[string]interface{}{"content": text},
			}},
		})}
	}
}

func (s *State) emitToolCallStart(idx int, id, name string, now time.Time) ([]string, error) {
	switch s.Target {
	case FormatAnthropic:
		if s.Source != FormatAnthropic {
			s.toolOrder = append(s.toolOrder, idx)
		}
		return []string{s.frame("content_block_start", map[string]interface{}{
			"type": "content_block_start", "index": idx,
			"content_block": map[string]interface{}{"type": "tool_use", "id": id, "name": name, "input": map[string]interface{}{}},
		})}, nil
	case FormatOpenAIResponses:
		return []string{s.frame("response.output_item.added", map[string]interface{}{
			"type": "response.output_item.added",
			"item": map[string]interface{}{"type": "function_call", "call_id": id, "name": name},
		})}, nil
	default: // openai-chat: the delta's tool_calls entry announces id/name once
		deltaIdx := s.openaiToolCallIndex
		s.openaiToolCallIndex++
		return []string{s.frame("", map[string]interface{}{
			"id": s.MessageID, "object": "chat.completion.chunk", "model": s.Model,
			"choices": []interface{}{map[string]interface{}{
				"index": 0, "delta": map[string]interface{}{
					"tool_calls": []interface{}{map[string]interface{}{
						"index": deltaIdx, "id": id, "type": "function",
						"function": map[string]interface{}{"name": name, "arguments": ""},
					}},
				},
			}},
		})}, nil
	}
}

func (s *State) emitToolArgsDelta(idx int, partial string) []string {
	switch s.Target {
	case FormatAnthropic:
		return []string{s.frame("content_block_delta", map[string]interface{}{
			"type": "content_block_delta", "index": idx,
			"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": partial},
		})}
	case FormatOpenAIResponses:
		return []string{s.frame("response.function_call_arguments.delta", map[string]interface{}{
			"type": "response.function_call_arguments.delta", "delta": partial,
		})}
	default: // openai-chat: grounded on completing the teacher's own streaming tool-call TODO
		return []string{s.frame("", map[string]interface{}{
			"id": s.MessageID, "object": "chat.completion.chunk", "model": s.Model,
			"choices": []interface{}{map[string]interface{}{
				"index": 0, "delta": map[string]interface{}{
					"tool_calls": []interface{}{map[string]interface{}{
						"index": s.toolDeltaIndex(idx), "function": map[string]interface{}{"arguments": partial},
					}},
				},
			}},
		})}
	}
}

// toolDeltaIndex maps the source's block index to the delta index the
// client already saw in the matching tool_calls-start chunk. Start
// chunks number tool calls 0, 1, 2, ... in arrival order
// (openaiToolCallIndex), so the delta index is the number of tool
// calls registered under a lower block index.
func (s *State) toolDeltaIndex(idx int) int {
	n := 0
	for k := range s.ToolCalls {
		if k < idx {
			n++
		}
	}
	return n
}

func (s *State) emitToolCallStop(idx int, now time.Time) ([]string, error) {
	acc := s.ToolCalls[idx]
	if acc == nil {
		return nil, nil
	}
	switch s.Target {
	case FormatOpenAIResponses:
		return []string{s.frame("response.output_item.done", map[string]interface{}{
			"type": "response.output_item.done",
			"item": map[string]interface{}{"type": "function_call", "call_id": acc.ID, "name": acc.Name, "arguments": acc.Args.String()},
		})}, nil
	case FormatAnthropic:
		if s.Source == FormatAnthropic {
			return nil, nil // pass-through, never reached
		}
		// Close this one tool block immediately (Responses sources
		// signal per-call completion via output_item.done before the
		// stream's own terminal event); remove it from the deferred
		// toolOrder close-out so closeOpenBlocks doesn't double-close it.
		for i, v := range s.toolOrder {
			if v == idx {
				s.toolOrder = append(s.toolOrder[:i], s.toolOrder[i+1:]...)
				break
			}
		}
		return []string{s.frame("content_block_stop", map[string]interface{}{
			"type": "content_block_stop", "index": idx,
		})}, nil
	default:
		return nil, nil
	}
}

func (s *State) emitFinal(now time.Time) ([]string, error) {
	if s.Finalized {
		return nil, nil
	}
	s.Finalized = true
	switch s.Target {
	case FormatAnthropic:
		out := s.closeOpenBlocks(now)
		return append(out,
			s.frame("message_delta", map[string]interface{}{
				"type": "message_delta",
				"delta": map[string]interface{}{
					"stop_reason": s.StopReason, "stop_sequence": nil,
				},
				"usage": map[string]interface{}{
					"input_tokens":                s.Usage.InputTokens,
					"output_tokens":               s.Usage.OutputTokens,
					"cache_read_input_tokens":     s.Usage.CacheReadTokens,
					"cache_creation_input_tokens": s.Usage.CacheWriteTokens,
				},
			}),
			s.frame("message_stop", map[string]interface{}{"type": "message_stop"}),
		), nil
	case FormatOpenAIResponses:
		if s.Source == FormatAnthropic {
			return s.emitResponsesCompleted(now), nil
		}
		return []string{s.frame("response.completed", map[string]interface{}{
			"type": "response.completed",
			"response": map[string]interface{}{
				"id": s.MessageID, "model": s.Model,
				"usage": map[string]interface{}{
					"input_tokens": s.Usage.InputTokens, "output_tokens": s.Usage.OutputTokens,
				},
			},
		})}, nil
	default: // openai-chat
		return []string{s.frame("", map[string]interface{}{
			"id": s.MessageID, "object": "chat.completion.chunk", "model": s.Model,
			"choices": []interface{}{map[string]interface{}{
				"index": 0, "delta": map[string]interface{}{}, "finish_reason": mapStopReasonToOpenAIChunk(s.StopReason),
			}},
			"usage": map[string]interface{}{
				"prompt_tokens": s.Usage.InputTokens, "completion_tokens": s.Usage.OutputTokens,
				"total_tokens": s.Usage.InputTokens + s.Usage.OutputTokens,
			},
		})}, nil
	}
}

func mapStopReasonToOpenAIChunk(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "":
		return "stop"
	default:
		return "stop"
	}
}
