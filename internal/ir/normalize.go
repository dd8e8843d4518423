package ir

import (
	"strings"
)

func boolField(body map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if v, ok := body[k]; ok {
			switch t := v.(type) {
			case bool:
				if t {
					return true
				}
			case nil:
				// present but null: not truthy
			default:
				// any other present, non-false value counts as truthy
				// (mirrors payload.thinking ?? payload.reasoning semantics)
				return true
			}
		}
	}
	return false
}

func joinNonEmpty(parts []string, sep string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func modelField(body map[string]interface{}) string {
	if m, ok := body["model"].(string); ok {
		return m
	}
	return ""
}

// NormalizeClaude implements normalizeClaude (spec §4.1).
func NormalizeClaude(body map[string]interface{}) *Payload {
	var systemParts []string
	if sys, ok := body["system"]; ok {
		systemParts = append(systemParts, contentToText(sys))
	}

	var messages []Message
	if raw, ok := body["messages"].([]interface{}); ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			role := mapGetString(m, "role")
			text, calls, results, textCC := parseContentBlocks(m["content"])

			switch role {
			case "system", "developer":
				systemParts = append(systemParts, text)
			case "assistant":
				messages = append(messages, Message{Role: RoleAssistant, Text: text, ToolCalls: calls, ToolResults: results, TextCacheControl: textCC})
			case "tool":
				messages = append(messages, Message{Role: RoleUser, ToolResults: results})
			default: // user and any unknown role
				messages = append(messages, Message{Role: RoleUser, Text: text, ToolResults: results, TextCacheControl: textCC})
			}
		}
	}

	var tools []Tool
	if raw, ok := body["tools"].([]interface{}); ok {
		for _, item := range raw {
			t, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			tools = append(tools, toolFromFields(mapGetString(t, "name"), mapGetString(t, "description"), t["input_schema"]))
		}
	}

	return &Payload{
		System:   joinNonEmpty(systemParts, "\n\n"),
		Messages: messages,
		Tools:    tools,
		Stream:   boolField(body, "stream"),
		Thinking: boolField(body, "thinking", "reasoning"),
		Original: body,
		Model:    modelField(body),
	}
}

// NormalizeOpenAIChat implements normalizeOpenAIChat (spec §4.1).
func NormalizeOpenAIChat(body map[string]interface{}) *Payload {
	var systemParts []string
	var messages []Message

	if raw, ok := body["messages"].([]interface{}); ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			role := mapGetString(m, "role")

			switch role {
			case "system", "developer":
				systemParts = append(systemParts, contentToText(m["content"]))

			case "tool":
				id := mapGetString(m, "tool_call_id")
				name := mapGetString(m, "name")
				messages = append(messages, Message{
					Role:        RoleUser,
					ToolResults: []ToolResult{{ID: id, Name: name, Content: m["content"]}},
				})

			case "assistant":
				text := contentToText(m["content"])
				var calls []ToolCall
				if rawCalls, ok := m["tool_calls"].([]interface{}); ok {
					for _, rc := range rawCalls {
						tc, ok := rc.(map[string]interface{})
						if !ok {
							continue
						}
						id := mapGetString(tc, "id")
						if id == "" {
							id = randToolCallID()
						}
						name := ""
						var argsText string
						if fn, ok := tc["function"].(map[string]interface{}); ok {
							name = mapGetString(fn, "name")
							argsText = mapGetString(fn, "arguments")
						}
						if name == "" {
							name = "tool"
						}
						var parsed interface{}
						if argsText != "" {
							if ok := tryUnmarshal(argsText, &parsed); !ok {
								parsed = argsText
							}
						}
						calls = append(calls, ToolCall{ID: id, Name: name, Arguments: parsed, ArgumentsText: argsText})
					}
				}
				messages = append(messages, Message{Role: RoleAssistant, Text: text, ToolCalls: calls})

			default: // user and unknown
				text, _, results, _ := parseContentBlocks(m["content"])
				messages = append(messages, Message{Role: RoleUser, Text: text, ToolResults: results})
			}
		}
	}

	var tools []Tool
	if raw, ok := body["tools"].([]interface{}); ok {
		for _, item := range raw {
			t, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			fn, _ := t["function"].(map[string]interface{})
			if fn == nil {
				fn = t
			}
			tools = append(tools, toolFromFields(mapGetString(fn, "name"), mapGetString(fn, "description"), fn["parameters"]))
		}
	}

	return &Payload{
		System:   joinNonEmpty(systemParts, "\n\n"),
		Messages: messages,
		Tools:    tools,
		Stream:   boolField(body, "stream"),
		Thinking: boolField(body, "thinking", "reasoning"),
		Original: body,
		Model:    modelField(body),
	}
}

// NormalizeOpenAIResponses implements normalizeOpenAIResponses (spec §4.1).
func NormalizeOpenAIResponses(body map[string]interface{}) *Payload {
	var systemParts []string
	var messages []Message

	if instructions, ok := body["instructions"].(string); ok && instructions != "" {
		systemParts = append(systemParts, instructions)
	}

	switch input := body["input"].(type) {
	case string:
		messages = append(messages, Message{Role: RoleUser, Text: input})

	case []interface{}:
		for _, item := range input {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			typ := mapGetString(m, "type")
			switch typ {
			case "function_call":
				id := mapGetString(m, "call_id", "id")
				name := mapGetString(m, "name")
				argsText := mapGetString(m, "arguments")
				var parsed interface{}
				if ok := tryUnmarshal(argsText, &parsed); !ok {
					parsed = argsText
				}
				messages = append(messages, Message{
					Role:      RoleAssistant,
					ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: parsed, ArgumentsText: argsText}},
				})

			case "function_call_output":
				id := mapGetString(m, "call_id", "id")
				messages = append(messages, Message{
					Role:        RoleUser,
					ToolResults: []ToolResult{{ID: id, Content: m["output"]}},
				})

			default: // "message" or untyped item
				role := mapGetString(m, "role")
				text, _, results, _ := parseContentBlocks(m["content"])
				switch role {
				case "system", "developer":
					systemParts = append(systemParts, text)
				case "assistant":
					messages = append(messages, Message{Role: RoleAssistant, Text: text})
				default:
					messages = append(messages, Message{Role: RoleUser, Text: text, ToolResults: results})
				}
			}
		}
	}

	var tools []Tool
	if raw, ok := body["tools"].([]interface{}); ok {
		for _, item := range raw {
			t, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			tools = append(tools, toolFromFields(mapGetString(t, "name"), mapGetString(t, "description"), t["parameters"]))
		}
	}

	return &Payload{
		System:   joinNonEmpty(systemParts, "\n\n"),
		Messages: messages,
		Tools:    tools,
		Stream:   boolField(body, "stream"),
		Thinking: boolField(body, "reasoning"),
		Original: body,
		Model:    modelField(body),
	}
}
