package ir

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Usage is the four-field usage accounting shared by router, pipeline
// and streaming transformer (spec §3 "StreamTransformer state").
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// ConvertAnthropicResponseToOpenAIChat converts a non-streaming
// Anthropic Messages response body into an OpenAI Chat Completions
// response body (used by C6 step 10 when the client's declared
// format differs from the provider's). Covers testable property #6:
// a text-only round trip preserves the text verbatim.
func ConvertAnthropicResponseToOpenAIChat(body map[string]interface{}, model string) map[string]interface{} {
	var text string
	var toolCalls []interface{}
	if content, ok := body["content"].([]interface{}); ok {
		for _, item := range content {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			switch mapGetString(block, "type") {
			case "text":
				text += mapGetString(block, "text")
			case "tool_use":
				args := "{}"
				if input, ok := block["input"]; ok {
					if b, err := json.Marshal(input); err == nil {
						args = string(b)
					}
				}
				toolCalls = append(toolCalls, map[string]interface{}{
					"id":   mapGetString(block, "id"),
					"type": "function",
					"function": map[string]interface{}{
						"name":      mapGetString(block, "name"),
						"arguments": args,
					},
				})
			}
		}
	}

	finish := mapStopReasonToOpenAI(mapGetString(body, "stop_reason"))
	var contentField interface{} = text
	if len(toolCalls) > 0 && text == "" {
		contentField = nil
	}
	msg := map[string]interface{}{"role": "assistant", "content": contentField}
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
	}

	usage := map[string]interface{}{}
	if u, ok := body["usage"].(map[string]interface{}); ok {
		in, _ := toInt64(u["input_tokens"])
		out, _ := toInt64(u["output_tokens"])
		usage["prompt_tokens"] = in
		usage["completion_tokens"] = out
		usage["total_tokens"] = in + out
	}

	return map[string]interface{}{
		"id":      "chatcmpl_" + uuid.NewString(),
		"object":  "chat.completion",
		"model":   model,
		"choices": []interface{}{map[string]interface{}{"index": 0, "message": msg, "finish_reason": finish}},
		"usage":   usage,
	}
}

// ConvertOpenAIChatResponseToAnthropic is the inverse conversion, used
// when an OpenAI-shaped provider answers a client that declared the
// Anthropic format.
func ConvertOpenAIChatResponseToAnthropic(body map[string]interface{}, model string) map[string]interface{} {
	var text string
	var blocks []interface{}
	var stopReason string

	if choices, ok := body["choices"].([]interface{}); ok && len(choices) > 0 {
		choice, _ := choices[0].(map[string]interface{})
		msg, _ := choice["message"].(map[string]interface{})
		if msg != nil {
			if s, ok := msg["content"].(string); ok {
				text = s
			}
			if calls, ok := msg["tool_calls"].([]interface{}); ok {
				for _, c := range calls {
					tc, ok := c.(map[string]interface{})
					if !ok {
						continue
					}
					fn, _ := tc["function"].(map[string]interface{})
					var input interface{} = map[string]interface{}{}
					if fn != nil {
						if args, ok := fn["arguments"].(string); ok {
							_ = json.Unmarshal([]byte(args), &input)
						}
					}
					blocks = append(blocks, map[string]interface{}{
						"type": "tool_use", "id": mapGetString(tc, "id"),
						"name": mapGetStringFrom(fn, "name"), "input": input,
					})
				}
			}
		}
		stopReason = mapStopReasonToAnthropic(mapGetString(choice, "finish_reason"))
	}
	if text != "" {
		blocks = append([]interface{}{map[string]interface{}{"type": "text", "text": text}}, blocks...)
	}

	usage := map[string]interface{}{"input_tokens": 0, "output_tokens": 0}
	if u, ok := body["usage"].(map[string]interface{}); ok {
		in, _ := toInt64(mapGet(u, "prompt_tokens", "input_tokens"))
		out, _ := toInt64(mapGet(u, "completion_tokens", "output_tokens"))
		usage["input_tokens"] = in
		usage["output_tokens"] = out
	}

	return map[string]interface{}{
		"id":          "msg_" + uuid.NewString(),
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     blocks,
		"stop_reason": stopReason,
		"usage":       usage,
	}
}

func mapGetStringFrom(m map[string]interface{}, keys ...string) string {
	if m == nil {
		return ""
	}
	return mapGetString(m, keys...)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func mapStopReasonToOpenAI(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "stop_sequence", "end_turn":
		return "stop"
	default:
		if reason == "" {
			return "stop"
		}
		return reason
	}
}

func mapStopReasonToAnthropic(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	case "stop":
		return "end_turn"
	default:
		if reason == "" {
			return "end_turn"
		}
		return reason
	}
}
