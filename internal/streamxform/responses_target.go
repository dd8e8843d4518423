package streamxform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// responsesContentBlock mirrors one Anthropic content_block for the
// Anthropic→OpenAI-Responses direction (spec §3 "contentBlocks with
// _inputJsonAccum").
type responsesContentBlock struct {
	typ       string // anthropic content_block type: "text" | "tool_use"
	id        string
	name      string
	text      string
	argsAccum strings.Builder
}

// responsesState is the Anthropic→OpenAI-Responses synthesis state
// named in spec §3: response/output ids plus the accumulated text and
// content-block ledger needed to build response.completed.
type responsesState struct {
	responseID  string
	outputID    string
	createdSent bool
	accumText   string
	blocks      map[int]*responsesContentBlock
	order       []int
}

// ensureResponsesState lazily creates s.responses and, on first call,
// derives the Responses-API-shaped response/output ids from the
// Anthropic message id already captured in s.MessageID (spec §3:
// "responseId (derived by replacing msg_→resp_)"). The output item
// keeps the message's own id under the "msg_" family, matching the
// Responses API's own convention that output items are message-shaped.
func (s *State) ensureResponsesState() *responsesState {
	if s.responses == nil {
		s.responses = &responsesState{blocks: map[int]*responsesContentBlock{}}
	}
	if s.responses.responseID == "" {
		s.responses.responseID = deriveResponsesID(s.MessageID, "resp_")
		s.responses.outputID = deriveResponsesID(s.MessageID, "msg_")
	}
	return s.responses
}

// deriveResponsesID reuses the random suffix of an Anthropic-shaped
// id ("msg_<suffix>") under a different family prefix, falling back to
// a freshly generated suffix when no id was observed yet.
func deriveResponsesID(anthropicID, prefix string) string {
	if anthropicID == "" {
		return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if idx := strings.IndexByte(anthropicID, '_'); idx >= 0 {
		return prefix + anthropicID[idx+1:]
	}
	return prefix + anthropicID
}

// emitResponsesBlockStart implements spec §4.4's "Each content_block_start
// emits response.output_item.added with {id: outputId, type:
// block.type=="text"?"output_text":block.type, index} and records a
// contentBlocks[index] entry; for tool_use, start an _inputJsonAccum".
func (s *State) emitResponsesBlockStart(idx int, typ, id, name string) []string {
	rs := s.ensureResponsesState()
	rs.blocks[idx] = &responsesContentBlock{typ: typ, id: id, name: name}
	rs.order = append(rs.order, idx)
	itemType := typ
	if typ == "text" {
		itemType = "output_text"
	}
	return []string{s.frame("response.output_item.added", map[string]interface{}{
		"type": "response.output_item.added",
		"item": map[string]interface{}{"id": rs.outputID, "type": itemType, "index": idx},
	})}
}

// emitResponsesTextDelta implements spec §4.4's "content_block_delta
// text emits response.output_item.content_part.delta
// {delta:{type:"text_delta", text}} and appends to accumulatedText and
// to the block's text".
func (s *State) emitResponsesTextDelta(idx int, text string) []string {
	rs := s.ensureResponsesState()
	rs.accumText += text
	if b := rs.blocks[idx]; b != nil {
		b.text += text
	}
	return []string{s.frame("response.output_item.content_part.delta", map[string]interface{}{
		"type":  "response.output_item.content_part.delta",
		"index": idx,
		"delta": map[string]interface{}{"type": "text_delta", "text": text},
	})}
}

// emitResponsesToolDelta implements spec §4.4's "content_block_delta
// input_json_delta appends to the block's _inputJsonAccum and emits
// the same event with delta:{type:"input_json_delta", partial_json}".
func (s *State) emitResponsesToolDelta(idx int, partial string) []string {
	rs := s.ensureResponsesState()
	if b := rs.blocks[idx]; b != nil {
		b.argsAccum.WriteString(partial)
	}
	return []string{s.frame("response.output_item.content_part.delta", map[string]interface{}{
		"type":  "response.output_item.content_part.delta",
		"index": idx,
		"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": partial},
	})}
}

// emitResponsesCompleted implements spec §4.4's terminal
// "message_stop emits a single response.completed event" for the
// Anthropic→OpenAI-Responses direction, including the status/usage/
// response/output/output_text shape and finalBlocks assembly.
func (s *State) emitResponsesCompleted(now time.Time) []string {
	rs := s.ensureResponsesState()
	finalBlocks := rs.finalBlocks()

	usage := map[string]interface{}{
		"input_tokens": s.Usage.InputTokens, "output_tokens": s.Usage.OutputTokens,
		"total_tokens":      s.Usage.InputTokens + s.Usage.OutputTokens,
		"prompt_tokens":     s.Usage.InputTokens,
		"completion_tokens": s.Usage.OutputTokens,
	}
	if s.Usage.CacheReadTokens+s.Usage.CacheWriteTokens > 0 {
		usage["cached_tokens"] = s.Usage.CacheReadTokens + s.Usage.CacheWriteTokens
	}

	event := map[string]interface{}{
		"type":        "response.completed",
		"status":      mapStopReasonToResponsesStatus(s.StopReason),
		"status_code": 200,
		"stop_reason": s.StopReason,
		"usage":       usage,
		"response": map[string]interface{}{
			"id": rs.responseID, "type": "message", "role": "assistant", "content": finalBlocks,
		},
		"output": []interface{}{map[string]interface{}{
			"id": rs.outputID, "type": "output_message", "role": "assistant", "content": finalBlocks,
		}},
	}
	if rs.accumText != "" {
		event["output_text"] = rs.accumText
	}
	return []string{s.frame("response.completed", event)}
}

// finalBlocks implements spec §4.4's "finalBlocks is contentBlocks
// with each tool_use block's _inputJsonAccum JSON-parsed into input
// (fall back to {}), then _inputJsonAccum deleted".
func (rs *responsesState) finalBlocks() []interface{} {
	out := make([]interface{}, 0, len(rs.order))
	for _, idx := range rs.order {
		b := rs.blocks[idx]
		if b == nil {
			continue
		}
		if b.typ == "tool_use" {
			input := map[string]interface{}{}
			if raw := b.argsAccum.String(); raw != "" {
				var parsed interface{}
				if json.Unmarshal([]byte(raw), &parsed) == nil {
					if m, ok := parsed.(map[string]interface{}); ok {
						input = m
					}
				}
			}
			out = append(out, map[string]interface{}{
				"type": "tool_use", "id": b.id, "name": b.name, "input": input,
			})
			continue
		}
		out = append(out, map[string]interface{}{"type": "text", "text": b.text})
	}
	return out
}

// mapStopReasonToResponsesStatus implements spec §4.4's "Stop-reason→status
// (Anthropic→Responses): tool_use→requires_action, max_tokens|stop_sequence→incomplete, *→completed".
func mapStopReasonToResponsesStatus(reason string) string {
	switch reason {
	case "tool_use":
		return "requires_action"
	case "max_tokens", "stop_sequence":
		return "incomplete"
	default:
		return "completed"
	}
}

// mapResponsesStatusToStopReason is the inverse table, used on the
// OpenAI-Responses→Anthropic direction (spec §4.4) so a source status
// of "requires_action"/"incomplete" is not flattened to a constant
// "end_turn" regardless of what the upstream actually reported.
func mapResponsesStatusToStopReason(status string) string {
	switch status {
	case "requires_action":
		return "tool_use"
	case "incomplete":
		return "max_tokens"
	default:
		return "end_turn"
	}
}
