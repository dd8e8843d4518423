package ir

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// randToolCallID synthesises a tool_call_<rand> id (spec §4.1: "If id
// missing, synthesise tool_call_<rand>"), grounded on the teacher's
// use of google/uuid for generated identifiers.
func randToolCallID() string {
	return "tool_call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func mapGet(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func mapGetString(m map[string]interface{}, keys ...string) string {
	v := mapGet(m, keys...)
	if s, ok := asString(v); ok {
		return s
	}
	return ""
}

// parseContentBlocks extracts running text, tool calls and tool
// results from one message's content value, per the text-extraction
// rules of spec §4.1. The content value may be a string, a single
// block (map), a sequence of blocks, or null. textCC carries the
// cache_control of the last text block seen (spec §4.1: "cache_control
// preserved only for Anthropic targets") so NormalizeClaude can thread
// it onto the resulting Message.
func parseContentBlocks(content interface{}) (text string, calls []ToolCall, results []ToolResult, textCC interface{}) {
	switch v := content.(type) {
	case nil:
		return "", nil, nil, nil
	case string:
		return v, nil, nil, nil
	case []interface{}:
		var sb strings.Builder
		for _, item := range v {
			t, c, r, cc := parseOneBlock(item)
			sb.WriteString(t)
			calls = append(calls, c...)
			results = append(results, r...)
			if cc != nil {
				textCC = cc
			}
		}
		return sb.String(), calls, results, textCC
	case map[string]interface{}:
		return parseOneBlock(v)
	default:
		return "", nil, nil, nil
	}
}

func parseOneBlock(item interface{}) (text string, calls []ToolCall, results []ToolResult, textCC interface{}) {
	block, ok := item.(map[string]interface{})
	if !ok {
		if s, ok := item.(string); ok {
			return s, nil, nil, nil
		}
		return "", nil, nil, nil
	}
	typ := mapGetString(block, "type")
	switch typ {
	case "text", "input_text", "output_text":
		return mapGetString(block, "text"), nil, nil, block["cache_control"]

	case "tool_use", "function_call":
		id := mapGetString(block, "id", "call_id", "tool_call_id")
		if id == "" {
			id = randToolCallID()
		}
		name := mapGetString(block, "name")
		if name == "" {
			if fn, ok := block["function"].(map[string]interface{}); ok {
				name = mapGetString(fn, "name")
			}
		}
		if name == "" {
			name = "tool"
		}
		var rawArgs interface{}
		var argsText string
		if input, ok := block["input"]; ok {
			rawArgs = input
			if b, err := json.Marshal(input); err == nil {
				argsText = string(b)
			}
		} else {
			argsVal := mapGet(block, "arguments")
			if fn, ok := block["function"].(map[string]interface{}); ok && argsVal == nil {
				argsVal = mapGet(fn, "arguments")
			}
			if s, ok := asString(argsVal); ok {
				argsText = s
				var parsed interface{}
				if err := json.Unmarshal([]byte(s), &parsed); err == nil {
					rawArgs = parsed
				} else {
					rawArgs = s
				}
			} else if argsVal != nil {
				rawArgs = argsVal
				if b, err := json.Marshal(argsVal); err == nil {
					argsText = string(b)
				}
			}
		}
		return "", []ToolCall{{ID: id, Name: name, Arguments: rawArgs, ArgumentsText: argsText, CacheControl: block["cache_control"]}}, nil, nil

	case "tool_result", "function_result":
		id := mapGetString(block, "tool_use_id", "id", "call_id")
		name := mapGetString(block, "name")
		var content interface{}
		if v, ok := block["result"]; ok {
			content = v
		} else if v, ok := block["output"]; ok {
			content = v
		} else if v, ok := block["content"]; ok {
			content = v
		} else if v, ok := block["text"]; ok {
			content = v
		}
		if s, ok := content.(string); ok {
			var parsed interface{}
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				content = parsed
			}
		}
		return "", nil, []ToolResult{{ID: id, Name: name, Content: content, CacheControl: block["cache_control"]}}, nil

	default:
		return "", nil, nil, nil
	}
}

// contentToText flattens an arbitrary content value into plain text,
// used for system-message extraction where only text blocks matter.
func contentToText(content interface{}) string {
	text, _, _, _ := parseContentBlocks(content)
	return text
}

// stringifyContent renders an arbitrary tool-result content value to
// a string for the OpenAI tool message codec (spec §4.1: content is
// always a string there).
func stringifyContent(content interface{}) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
