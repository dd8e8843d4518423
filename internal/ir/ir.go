// Package ir implements the normalizer (C1): the tagged-variant
// intermediate representation that collapses the three client-facing
// wire formats (Anthropic Messages, OpenAI Chat, OpenAI Responses)
// into one payload, plus the codecs that re-emit it as an upstream
// provider body.
//
// This replaces the teacher's dynamic, interface-based ContentPart
// model (pkg/provider/types.Message/ContentPart) with the flatter
// {role, text, toolCalls?, toolResults?} shape spec'd for this
// gateway: the gateway only ever needs to move text/tool-call/
// tool-result data between wire formats, never execute tools or hold
// rich multi-modal content, so the extra interface indirection the
// teacher's SDK-facing type needed has no job here.
package ir

import (
	"encoding/json"
)

// Role is restricted to user/assistant in the IR — system and tool
// roles are folded away during normalization (spec §3).
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a single assistant-issued tool invocation.
type ToolCall struct {
	ID   string
	Name string
	// Arguments holds the parsed JSON value when the source supplied
	// valid JSON, or the raw string otherwise (spec §4.1 failure mode).
	Arguments     interface{}
	ArgumentsText string // raw text form, always populated

	// CacheControl is the verbatim Anthropic cache_control block
	// carried on the source tool_use block, if any (spec §4.1:
	// "cache_control preserved only for Anthropic targets"). Ignored
	// by the OpenAI-Chat codec; re-emitted verbatim by ToAnthropicBody.
	CacheControl interface{}
}

// ToolResult is a single tool-execution result folded into a user message.
type ToolResult struct {
	ID      string
	Name    string
	Content interface{}

	// CacheControl is the verbatim Anthropic cache_control block
	// carried on the source tool_result block, if any. See ToolCall.CacheControl.
	CacheControl interface{}
}

// Message is one normalized conversational turn.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult

	// TextCacheControl is the verbatim Anthropic cache_control block
	// carried on the source text block this message's Text was built
	// from, if any (last one wins when a message collapses multiple
	// source text blocks). See ToolCall.CacheControl.
	TextCacheControl interface{}
}

// Tool is a verbatim tool descriptor: the JSON schema is carried
// through unexamined (spec §3: "schema verbatim").
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Payload is the normalized IR (spec §3).
type Payload struct {
	System   string
	Messages []Message
	Tools    []Tool
	Stream   bool
	Thinking bool

	// Original is the opaque, retained source body, used for
	// pass-through cloning (C6 step 8) and for preserving
	// provider-specific fields the IR does not model.
	Original map[string]interface{}

	// Model is the client-requested model string, if present on the
	// source body (not an IR invariant, but the router needs it).
	Model string
}
