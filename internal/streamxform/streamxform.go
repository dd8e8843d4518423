// Package streamxform implements the stateful SSE transformer (C4,
// spec §4.4): it rewrites a provider's SSE event stream into the
// wire format the client declared, tracking usage, TTFT/TPOT and the
// stop reason as it goes. It is grounded on the teacher's
// pkg/providerutils/streaming/sse.go (incremental buffer-fed framing,
// adapted here through internal/sse) and completes the teacher's own
// "TODO: Handle streaming tool calls" gap in
// pkg/providers/openai/language_model.go by fully modeling OpenAI
// tool-call deltas in State.ToolCalls.
package streamxform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chenpu17/cc-gateway/internal/ir"
	"github.com/chenpu17/cc-gateway/internal/sse"
)

// Format identifies the wire shape of an SSE stream endpoint.
type Format string

const (
	FormatAnthropic       Format = "anthropic"
	FormatOpenAIChat      Format = "openai-chat"
	FormatOpenAIResponses Format = "openai-responses"
)

// toolCallAccum collects one in-flight OpenAI-shaped tool call's
// streamed argument fragments, replacing the teacher's scattered
// currentToolCall/openaiToolCalls fields with one map keyed by index
// (spec §9 re-architecture note).
type toolCallAccum struct {
	ID   string
	Name string
	Args strings.Builder
}

// State is the single struct unifying all per-stream mutable fields
// (spec §9: "StreamTransformer state" must be one struct, not
// scattered booleans).
type State struct {
	Source Format
	Target Format

	framer sse.Framer

	StartedAt      time.Time
	FirstTokenAt   time.Time
	gotFirstToken  bool
	lastEmitAt     time.Time
	TPOTSamples    int
	TPOTTotalNanos int64

	AnthropicBlockOpen map[int]string // index -> block type ("text"|"tool_use")
	ToolCalls          map[int]*toolCallAccum
	acc                sse.EventAccumulator

	MessageID  string
	Model      string
	StopReason string
	Usage      ir.Usage

	// openaiToolCallIndex tracks the running delta index for the
	// current assistant turn when emitting OpenAI-Chat deltas
	// (source is Anthropic or openai-responses).
	openaiToolCallIndex int

	// escalatedToResponses records whether a source declared as
	// openai-chat self-escalated mid-stream to the richer
	// openai-responses event set (spec §4.4 "source-format
	// auto-escalation").
	escalatedToResponses bool

	// messageStartSent / Finalized latch the Anthropic-target
	// message_start/message_stop frames so a synthesizing source
	// (openai-chat, openai-responses) emits each exactly once, and so
	// the bare-[DONE] termination path (spec §4.4 "Terminal handling")
	// never double-finalizes a stream that already saw a proper
	// finish_reason/message_stop.
	messageStartSent bool
	Finalized        bool

	// textBlockOpen / toolOrder track which Anthropic content_block
	// indices are open when synthesizing Anthropic output from a
	// non-Anthropic source, so closeOpenBlocks can emit a matching
	// content_block_stop for every content_block_start (testable
	// property 3).
	textBlockOpen bool
	toolOrder     []int

	// doneForwarded records that a source-supplied "data: [DONE]" line
	// was already relayed, so Close does not append a second one for
	// OpenAI-Chat targets.
	doneForwarded bool

	// responses holds the Anthropic→OpenAI-Responses synthesis state
	// (spec §3 "responsesState for anthropic→responses"): response/
	// output ids, the running text accumulation, and the per-index
	// content-block ledger used to assemble response.completed's
	// finalBlocks. Populated lazily, only on that one direction.
	responses *responsesState
}

// passthrough reports whether the stream can be relayed byte-for-byte:
// true exactly when the declared source and target formats still
// agree (spec §4.4 "Pass-through mode"). Auto-escalation (below) can
// flip this false mid-stream even if it started true.
func (s *State) passthrough() bool {
	return s.Source == s.Target
}

// NewState builds a fresh transformer state for one HTTP response's
// lifetime.
func NewState(source, target Format) *State {
	return &State{
		Source:             source,
		Target:             target,
		AnthropicBlockOpen: map[int]string{},
		ToolCalls:          map[int]*toolCallAccum{},
	}
}

// Start marks t0 for TTFT measurement. Callers invoke this immediately
// before the first byte is read from the upstream body.
func (s *State) Start(now time.Time) {
	s.StartedAt = now
	s.lastEmitAt = now
}

// recordEmit updates TTFT (on the first call) and running TPOT
// statistics (on every subsequent call) given the current time.
func (s *State) recordEmit(now time.Time) {
	if !s.gotFirstToken {
		s.gotFirstToken = true
		s.FirstTokenAt = now
	} else {
		s.TPOTTotalNanos += now.Sub(s.lastEmitAt).Nanoseconds()
		s.TPOTSamples++
	}
	s.lastEmitAt = now
}

// TTFT returns time to first token, or 0 if no token has arrived yet.
func (s *State) TTFT() time.Duration {
	if !s.gotFirstToken {
		return 0
	}
	return s.FirstTokenAt.Sub(s.StartedAt)
}

// TPOT returns the mean inter-token latency, or 0 with fewer than two
// tokens observed.
func (s *State) TPOT() time.Duration {
	if s.TPOTSamples == 0 {
		return 0
	}
	return time.Duration(s.TPOTTotalNanos / int64(s.TPOTSamples))
}

// FinalUsage returns the accumulated token usage observed on the
// stream so far (spec §4.4: "finalUsage() -> Usage"). Safe to call at
// any point; callers normally call it after Close.
func (s *State) FinalUsage() ir.Usage {
	return s.Usage
}

// Feed pushes one chunk of raw upstream bytes through the framer and
// returns zero or more client-ready SSE text frames (each already
// terminated with "\n\n", ready to be written verbatim). now is the
// wall-clock time of this call, used for TTFT/TPOT bookkeeping.
func (s *State) Feed(chunk []byte, now time.Time) ([]string, error) {
	lines := s.framer.Feed(chunk)
	return s.processLines(lines, now)
}

// Close flushes any buffered partial line and returns final frames
// (e.g. a terminal [DONE] marker for OpenAI-Chat targets).
func (s *State) Close(now time.Time) ([]string, error) {
	var lines []string
	if rest := s.framer.Flush(); rest != "" {
		lines = append(lines, rest)
	}
	out, err := s.processLines(lines, now)
	if err != nil {
		return out, err
	}
	if s.Target == FormatOpenAIChat && !s.doneForwarded {
		out = append(out, sse.WriteDataLine("[DONE]")+sse.Blank)
	}
	return out, nil
}

func (s *State) processLines(lines []string, now time.Time) ([]string, error) {
	var out []string
	var rawBuf []string
	for _, line := range lines {
		rawBuf = append(rawBuf, line)
		parsed := sse.Line{Kind: sse.LineEmpty}
		if line != "" {
			parsed = sse.ParseLine(line)
		}
		if ev, ok := s.acc.Push(parsed); ok {
			raw := strings.Join(rawBuf, "\n") + "\n"
			rawBuf = nil
			frames, err := s.handleEvent(ev, raw, now)
			if err != nil {
				return out, err
			}
			out = append(out, frames...)
		}
	}
	return out, nil
}

func (s *State) handleEvent(ev sse.Event, raw string, now time.Time) ([]string, error) {
	if strings.TrimSpace(ev.Data) == "[DONE]" {
		return s.handleDone(raw, now)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		return []string{raw}, nil // malformed event data: pass original line through per spec §4.4 failure mode
	}

	// Source-format auto-escalation (spec §4.4): a stream declared
	// openai-chat whose events are actually Responses-API shaped
	// switches source for the remainder of the stream.
	if s.Source == FormatOpenAIChat {
		if t, _ := payload["type"].(string); strings.HasPrefix(t, "response.") {
			s.Source = FormatOpenAIResponses
			s.escalatedToResponses = true
		}
	}

	if s.passthrough() {
		s.extractMetadata(ev.EventName, payload, now)
		return []string{raw}, nil
	}

	switch s.Source {
	case FormatAnthropic:
		return s.fromAnthropicEvent(ev.EventName, payload, now)
	case FormatOpenAIResponses:
		out := s.ensureMessageStart(now)
		frames, err := s.fromResponsesEvent(ev.EventName, payload, now)
		return append(out, frames...), err
	default:
		out := s.ensureMessageStart(now)
		frames, err := s.fromOpenAIChatEvent(payload, now)
		return append(out, frames...), err
	}
}

// handleDone implements spec §4.4 "Terminal handling on [DONE]": for
// non-Anthropic targets the sentinel passes through unchanged (if
// still pass-through) or untouched entirely (Anthropic protocol has
// no such line to emit, so nothing is synthesized there either); for
// an Anthropic target that has not yet finalized, it synthesizes the
// missing message_start/content_block_stop*/message_delta/message_stop
// frames and drops the [DONE] line itself.
func (s *State) handleDone(raw string, now time.Time) ([]string, error) {
	if s.Target != FormatAnthropic {
		s.doneForwarded = true
		return []string{raw}, nil
	}
	if s.Finalized {
		return nil, nil
	}
	var out []string
	out = append(out, s.ensureMessageStart(now)...)
	if s.StopReason == "" {
		s.StopReason = "end_turn"
	}
	frames, err := s.emitFinal(now)
	return append(out, frames...), err
}

// ensureMessageStart emits the Anthropic message_start frame exactly
// once, lazily, the first time a non-Anthropic source needs to open
// an Anthropic-shaped output stream (spec §4.4 "OpenAI-Chat →
// Anthropic mapping": "Before the first emitted event, emit
// message_start").
func (s *State) ensureMessageStart(now time.Time) []string {
	if s.Target != FormatAnthropic || s.messageStartSent {
		return nil
	}
	s.messageStartSent = true
	frames, _ := s.emitStart(now)
	return frames
}

// closeOpenBlocks emits a content_block_stop for every Anthropic
// content block this transformer opened on behalf of a non-Anthropic
// source, text first then tool blocks in registration order (spec
// §4.4), satisfying testable property 3 (every content_block_start
// has a matching content_block_stop).
func (s *State) closeOpenBlocks(now time.Time) []string {
	if s.Target != FormatAnthropic {
		return nil
	}
	var out []string
	if s.textBlockOpen {
		out = append(out, s.frame("content_block_stop", map[string]interface{}{
			"type": "content_block_stop", "index": 0,
		}))
		s.textBlockOpen = false
	}
	for _, idx := range s.toolOrder {
		out = append(out, s.frame("content_block_stop", map[string]interface{}{
			"type": "content_block_stop", "index": idx,
		}))
	}
	s.toolOrder = nil
	return out
}

// extractMetadata updates TTFT/usage/stop-reason bookkeeping from a
// decoded source event without producing any output frames, used in
// pass-through mode where the raw bytes are relayed unchanged but the
// pipeline still needs usage/TTFT out of StreamTransformer (spec
// §4.4 "Pass-through mode").
func (s *State) extractMetadata(eventName string, payload map[string]interface{}, now time.Time) {
	switch s.Source {
	case FormatAnthropic:
		s.extractAnthropicMetadata(eventName, payload, now)
	case FormatOpenAIResponses:
		s.extractResponsesMetadata(eventName, payload, now)
	default:
		s.extractOpenAIChatMetadata(payload, now)
	}
}
