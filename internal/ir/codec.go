package ir

import (
	"encoding/json"
)

// ProviderType mirrors connector.ProviderType without importing it
// (avoids a dependency cycle; router/pipeline convert between them).
type ProviderType string

const (
	TypeAnthropic ProviderType = "anthropic"
	TypeOpenAI    ProviderType = "openai"
	TypeDeepSeek  ProviderType = "deepseek"
	TypeKimi      ProviderType = "kimi"
	TypeCustom    ProviderType = "custom"
)

// allowsMetadataPassthrough implements the provider feature table
// referenced by spec §4.1 ("metadata only if provider's feature table
// allows it").
func allowsMetadataPassthrough(t ProviderType) bool {
	switch t {
	case TypeAnthropic, TypeOpenAI, TypeKimi, TypeDeepSeek:
		return true
	default:
		return false
	}
}

var openAIPassthroughKeys = []string{
	"response_format", "parallel_tool_calls", "frequency_penalty",
	"presence_penalty", "logit_bias", "top_p", "top_k", "stop",
	"stop_sequences", "user", "seed", "n", "options",
}

// ToOpenAIChatBody builds an OpenAI Chat Completions request body
// from the IR (spec §4.1 "OpenAI-Chat body").
func ToOpenAIChatBody(p *Payload, model string, providerType ProviderType) map[string]interface{} {
	var messages []interface{}

	if p.System != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": p.System})
	}

	for _, m := range p.Messages {
		switch m.Role {
		case RoleUser:
			for _, tr := range m.ToolResults {
				messages = append(messages, map[string]interface{}{
					"role":         "tool",
					"tool_call_id": tr.ID,
					"name":         tr.Name,
					"content":      stringifyContent(tr.Content),
				})
			}
			if m.Text != "" {
				messages = append(messages, map[string]interface{}{"role": "user", "content": m.Text})
			}

		case RoleAssistant:
			msg := map[string]interface{}{"role": "assistant"}
			if len(m.ToolCalls) > 0 {
				var calls []interface{}
				for _, tc := range m.ToolCalls {
					args := tc.ArgumentsText
					if args == "" && tc.Arguments != nil {
						if b, err := json.Marshal(tc.Arguments); err == nil {
							args = string(b)
						}
					}
					calls = append(calls, map[string]interface{}{
						"id":   tc.ID,
						"type": "function",
						"function": map[string]interface{}{
							"name":      tc.Name,
							"arguments": args,
						},
					})
				}
				msg["tool_calls"] = calls
				if m.Text == "" {
					msg["content"] = nil
				} else {
					msg["content"] = m.Text
				}
			} else {
				msg["content"] = m.Text
			}
			messages = append(messages, msg)
		}
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   p.Stream,
	}

	if maxTok := mapGet(p.Original, "max_tokens", "max_output_tokens", "max_completion_tokens"); maxTok != nil {
		if p.Thinking {
			body["max_completion_tokens"] = maxTok
		} else {
			body["max_tokens"] = maxTok
		}
	}
	if temp := mapGet(p.Original, "temperature"); temp != nil {
		body["temperature"] = temp
	}
	if tc := mapGet(p.Original, "tool_choice"); tc != nil {
		body["tool_choice"] = tc
	}
	if len(p.Tools) > 0 {
		var tools []interface{}
		for _, t := range p.Tools {
			var params interface{}
			if len(t.InputSchema) > 0 {
				_ = json.Unmarshal(t.InputSchema, &params)
			}
			tools = append(tools, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  params,
				},
			})
		}
		body["tools"] = tools
	}

	for _, key := range openAIPassthroughKeys {
		if v := mapGet(p.Original, key); v != nil {
			body[key] = v
		}
	}
	if allowsMetadataPassthrough(providerType) {
		if md := mapGet(p.Original, "metadata"); md != nil {
			body["metadata"] = md
		}
	}

	return body
}

// textBlockWithCacheControl builds an Anthropic text block, carrying
// forward the source block's cache_control when present (spec §4.1:
// "cache_control preserved only for Anthropic targets").
func textBlockWithCacheControl(text string, cacheControl interface{}) map[string]interface{} {
	block := map[string]interface{}{"type": "text", "text": text}
	if cacheControl != nil {
		block["cache_control"] = cacheControl
	}
	return block
}

// ToAnthropicBody builds an Anthropic Messages request body from the
// IR (spec §4.1 "Anthropic body").
func ToAnthropicBody(p *Payload, model string) map[string]interface{} {
	var messages []interface{}

	for _, m := range p.Messages {
		var blocks []interface{}
		switch m.Role {
		case RoleAssistant:
			if m.Text != "" {
				blocks = append(blocks, textBlockWithCacheControl(m.Text, m.TextCacheControl))
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]interface{}{}
				}
				block := map[string]interface{}{
					"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": input,
				}
				if tc.CacheControl != nil {
					block["cache_control"] = tc.CacheControl
				}
				blocks = append(blocks, block)
			}
		case RoleUser:
			for _, tr := range m.ToolResults {
				block := map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": tr.ID,
					"content": []interface{}{
						map[string]interface{}{"type": "text", "text": stringifyContent(tr.Content)},
					},
				}
				if tr.CacheControl != nil {
					block["cache_control"] = tr.CacheControl
				}
				blocks = append(blocks, block)
			}
			if m.Text != "" {
				blocks = append(blocks, textBlockWithCacheControl(m.Text, m.TextCacheControl))
			}
		}
		if len(blocks) == 0 {
			continue // do not emit empty-text messages
		}
		messages = append(messages, map[string]interface{}{"role": string(m.Role), "content": blocks})
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   p.Stream,
	}
	if p.System != "" {
		body["system"] = p.System
	}
	if maxTok := mapGet(p.Original, "max_tokens"); maxTok != nil {
		body["max_tokens"] = maxTok
	} else {
		body["max_tokens"] = 4096
	}
	if temp := mapGet(p.Original, "temperature"); temp != nil {
		body["temperature"] = temp
	}
	if len(p.Tools) > 0 {
		var tools []interface{}
		for _, t := range p.Tools {
			var schema interface{}
			if len(t.InputSchema) > 0 {
				_ = json.Unmarshal(t.InputSchema, &schema)
			}
			tool := map[string]interface{}{
				"name": t.Name, "description": t.Description, "input_schema": schema,
			}
			tools = append(tools, tool)
		}
		body["tools"] = tools
	}
	if thinking := mapGet(p.Original, "thinking"); thinking != nil && p.Thinking {
		body["thinking"] = thinking
	}

	return body
}
