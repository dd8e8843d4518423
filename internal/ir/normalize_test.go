package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeClaude_SystemAndRoleFolding(t *testing.T) {
	body := map[string]interface{}{
		"model":  "claude-3-5-sonnet",
		"stream": true,
		"system": "be terse",
		"messages": []interface{}{
			map[string]interface{}{"role": "user", "content": "hello"},
			map[string]interface{}{"role": "assistant", "content": "hi there"},
			map[string]interface{}{"role": "developer", "content": "extra instructions"},
		},
	}

	p := NormalizeClaude(body)
	require.Equal(t, "be terse\n\nextra instructions", p.System)
	require.True(t, p.Stream)
	require.Len(t, p.Messages, 2)
	require.Equal(t, RoleUser, p.Messages[0].Role)
	require.Equal(t, "hello", p.Messages[0].Text)
	require.Equal(t, RoleAssistant, p.Messages[1].Role)
	require.Equal(t, "claude-3-5-sonnet", p.Model)
}

func TestNormalizeClaude_ToolUseAndToolResultBlocks(t *testing.T) {
	body := map[string]interface{}{
		"messages": []interface{}{
			map[string]interface{}{
				"role": "assistant",
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": "let me check"},
					map[string]interface{}{"type": "tool_use", "id": "call_1", "name": "get_weather", "input": map[string]interface{}{"city": "nyc"}},
				},
			},
			map[string]interface{}{
				"role": "user",
				"content": []interface{}{
					map[string]interface{}{"type": "tool_result", "tool_use_id": "call_1", "content": "72F and sunny"},
				},
			},
		},
	}

	p := NormalizeClaude(body)
	require.Len(t, p.Messages, 2)

	assistant := p.Messages[0]
	require.Equal(t, "let me check", assistant.Text)
	require.Len(t, assistant.ToolCalls, 1)
	require.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	require.Equal(t, "get_weather", assistant.ToolCalls[0].Name)

	user := p.Messages[1]
	require.Len(t, user.ToolResults, 1)
	require.Equal(t, "call_1", user.ToolResults[0].ID)
	require.Equal(t, "72F and sunny", user.ToolResults[0].Content)
}

func TestNormalizeOpenAIChat_ToolCallArgumentsParsedWhenJSON(t *testing.T) {
	body := map[string]interface{}{
		"model": "gpt-4o",
		"messages": []interface{}{
			map[string]interface{}{"role": "system", "content": "be nice"},
			map[string]interface{}{
				"role": "assistant",
				"tool_calls": []interface{}{
					map[string]interface{}{
						"id":   "call_9",
						"type": "function",
						"function": map[string]interface{}{
							"name":      "lookup",
							"arguments": `{"query":"weather"}`,
						},
					},
				},
			},
		},
	}

	p := NormalizeOpenAIChat(body)
	require.Equal(t, "be nice", p.System)
	require.Len(t, p.Messages, 1)
	tc := p.Messages[0].ToolCalls[0]
	require.Equal(t, "call_9", tc.ID)
	require.Equal(t, `{"query":"weather"}`, tc.ArgumentsText)
	require.Equal(t, map[string]interface{}{"query": "weather"}, tc.Arguments)
}

func TestNormalizeOpenAIChat_MalformedToolArgumentsKeptAsString(t *testing.T) {
	body := map[string]interface{}{
		"messages": []interface{}{
			map[string]interface{}{
				"role": "assistant",
				"tool_calls": []interface{}{
					map[string]interface{}{
						"id":       "call_1",
						"function": map[string]interface{}{"name": "lookup", "arguments": "not json"},
					},
				},
			},
		},
	}

	p := NormalizeOpenAIChat(body)
	tc := p.Messages[0].ToolCalls[0]
	require.Equal(t, "not json", tc.Arguments)
	require.Equal(t, "not json", tc.ArgumentsText)
}

func TestNormalizeOpenAIResponses_StringInputAndFunctionCall(t *testing.T) {
	body := map[string]interface{}{
		"instructions": "be terse",
		"input":        "what's the weather",
	}
	p := NormalizeOpenAIResponses(body)
	require.Equal(t, "be terse", p.System)
	require.Len(t, p.Messages, 1)
	require.Equal(t, "what's the weather", p.Messages[0].Text)

	body2 := map[string]interface{}{
		"input": []interface{}{
			map[string]interface{}{"type": "function_call", "call_id": "call_1", "name": "get_weather", "arguments": `{"city":"nyc"}`},
			map[string]interface{}{"type": "function_call_output", "call_id": "call_1", "output": "72F"},
		},
	}
	p2 := NormalizeOpenAIResponses(body2)
	require.Len(t, p2.Messages, 2)
	require.Equal(t, RoleAssistant, p2.Messages[0].Role)
	require.Equal(t, "call_1", p2.Messages[0].ToolCalls[0].ID)
	require.Equal(t, RoleUser, p2.Messages[1].Role)
	require.Equal(t, "72F", p2.Messages[1].ToolResults[0].Content)
}

func TestToOpenAIChatBody_EmitsToolCallsAndPassthroughKeys(t *testing.T) {
	schema, _ := json.Marshal(map[string]interface{}{"type": "object"})
	p := &Payload{
		System: "be terse",
		Messages: []Message{
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "get_weather", ArgumentsText: `{"city":"nyc"}`}}},
		},
		Tools:    []Tool{{Name: "get_weather", Description: "looks up weather", InputSchema: schema}},
		Original: map[string]interface{}{"top_p": 0.9, "max_tokens": float64(256)},
	}

	body := ToOpenAIChatBody(p, "gpt-4o", TypeOpenAI)
	require.Equal(t, "gpt-4o", body["model"])
	require.Equal(t, 0.9, body["top_p"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2) // system + assistant
	assistantMsg := messages[1].(map[string]interface{})
	require.Nil(t, assistantMsg["content"])
	require.Len(t, assistantMsg["tool_calls"], 1)
}

func TestToAnthropicBody_OmitsEmptyMessagesAndDefaultsMaxTokens(t *testing.T) {
	p := &Payload{
		Messages: []Message{
			{Role: RoleUser, Text: ""},
			{Role: RoleAssistant, Text: "hi"},
		},
	}
	body := ToAnthropicBody(p, "claude-3-5-sonnet")
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1, "empty-text user message must be omitted")
	require.Equal(t, 4096, body["max_tokens"])
}

func TestConvertAnthropicResponseToOpenAIChat_PreservesTextAndUsage(t *testing.T) {
	body := map[string]interface{}{
		"content":     []interface{}{map[string]interface{}{"type": "text", "text": "hello back"}},
		"stop_reason": "end_turn",
		"usage":       map[string]interface{}{"input_tokens": float64(10), "output_tokens": float64(5)},
	}
	out := ConvertAnthropicResponseToOpenAIChat(body, "gpt-4o")
	choice := out["choices"].([]interface{})[0].(map[string]interface{})
	msg := choice["message"].(map[string]interface{})
	require.Equal(t, "hello back", msg["content"])
	require.Equal(t, "stop", choice["finish_reason"])
	usage := out["usage"].(map[string]interface{})
	require.Equal(t, int64(15), usage["total_tokens"])
}

func TestConvertOpenAIChatResponseToAnthropic_MapsToolCallsAndStopReason(t *testing.T) {
	body := map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"finish_reason": "tool_calls",
				"message": map[string]interface{}{
					"tool_calls": []interface{}{
						map[string]interface{}{
							"id":       "call_1",
							"function": map[string]interface{}{"name": "lookup", "arguments": `{"q":"x"}`},
						},
					},
				},
			},
		},
	}
	out := ConvertOpenAIChatResponseToAnthropic(body, "claude-3-5-sonnet")
	require.Equal(t, "tool_use", out["stop_reason"])
	blocks := out["content"].([]interface{})
	require.Len(t, blocks, 1)
	block := blocks[0].(map[string]interface{})
	require.Equal(t, "tool_use", block["type"])
	require.Equal(t, "lookup", block["name"])
}
