package streamxform

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeed_PassthroughRelaysRawBytesAndTracksUsage(t *testing.T) {
	s := NewState(FormatOpenAIChat, FormatOpenAIChat)
	now := time.Now()
	s.Start(now)

	chunk := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\n\n" +
		"data: {\"choices\":[{\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2}}\n\n"

	frames, err := s.Feed([]byte(chunk), now.Add(10*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, chunk, strings.Join(frames, ""), "pass-through must relay the exact raw bytes")
	require.Equal(t, int64(3), s.Usage.InputTokens)
	require.Equal(t, int64(2), s.Usage.OutputTokens)
	require.Equal(t, "end_turn", s.StopReason)
}

func TestFeed_OpenAIChatToAnthropic_SynthesizesMessageStartAndTextBlock(t *testing.T) {
	s := NewState(FormatOpenAIChat, FormatAnthropic)
	s.Model = "claude-3-5-sonnet"
	now := time.Now()
	s.Start(now)

	chunk := "data: {\"id\":\"chatcmpl_1\",\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\n"
	frames, err := s.Feed([]byte(chunk), now)
	require.NoError(t, err)

	joined := strings.Join(frames, "")
	require.Contains(t, joined, "event: message_start")
	require.Contains(t, joined, "event: content_block_start")
	require.Contains(t, joined, "content_block_delta")
	require.Contains(t, joined, `"text":"hello"`)
}

func TestClose_BareDoneSynthesizesTerminalAnthropicFrames(t *testing.T) {
	s := NewState(FormatOpenAIChat, FormatAnthropic)
	now := time.Now()
	s.Start(now)

	_, err := s.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"), now)
	require.NoError(t, err)

	frames, err := s.Feed([]byte("data: [DONE]\n\n"), now)
	require.NoError(t, err)
	joined := strings.Join(frames, "")
	require.Contains(t, joined, "content_block_stop")
	require.Contains(t, joined, "message_stop")
	require.True(t, s.Finalized)
}

func TestClose_OpenAIChatTargetAppendsDoneOnlyOnce(t *testing.T) {
	s := NewState(FormatOpenAIChat, FormatOpenAIChat)
	now := time.Now()
	s.Start(now)

	_, err := s.Feed([]byte("data: [DONE]\n\n"), now)
	require.NoError(t, err)

	frames, err := s.Close(now)
	require.NoError(t, err)
	require.Empty(t, frames, "Close must not append a second [DONE] when the source already forwarded one")
}

func TestFeed_MalformedEventDataPassesThroughUnchanged(t *testing.T) {
	s := NewState(FormatOpenAIChat, FormatOpenAIChat)
	now := time.Now()
	s.Start(now)

	chunk := "data: {not json}\n\n"
	frames, err := s.Feed([]byte(chunk), now)
	require.NoError(t, err)
	require.Equal(t, []string{chunk}, frames)
}

func TestTTFT_ZeroBeforeFirstToken(t *testing.T) {
	s := NewState(FormatOpenAIChat, FormatOpenAIChat)
	require.Equal(t, time.Duration(0), s.TTFT())
}

func TestFeed_AnthropicToResponses_TextStream(t *testing.T) {
	s := NewState(FormatAnthropic, FormatOpenAIResponses)
	now := time.Now()
	s.Start(now)

	chunk := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_abc123\",\"model\":\"claude-3-5-sonnet\",\"usage\":{\"input_tokens\":5,\"output_tokens\":0}}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":1}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	frames, err := s.Feed([]byte(chunk), now)
	require.NoError(t, err)
	joined := strings.Join(frames, "")

	require.Contains(t, joined, "response.created")
	require.Contains(t, joined, `"id":"resp_abc123"`)
	require.Contains(t, joined, "response.output_item.added")
	require.Contains(t, joined, `"id":"msg_abc123"`)
	require.Contains(t, joined, "response.output_item.content_part.delta")
	require.Contains(t, joined, `"text_delta"`)
	require.Contains(t, joined, "response.completed")
	require.Contains(t, joined, `"status":"completed"`)
	require.Contains(t, joined, `"status_code":200`)
	require.Contains(t, joined, `"stop_reason":"end_turn"`)
	require.Contains(t, joined, `"output_text":"Hi"`)
	require.Contains(t, joined, `"text":"Hi"`)
	require.Contains(t, joined, `"type":"text"`)
}

func TestFeed_AnthropicToResponses_ToolCallCompletion(t *testing.T) {
	s := NewState(FormatAnthropic, FormatOpenAIResponses)
	now := time.Now()
	s.Start(now)

	chunk := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_tool1\",\"model\":\"claude-3-5-sonnet\"}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"call_1\",\"name\":\"search\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"q\\\":\\\"x\\\"}\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"tool_use\"}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	frames, err := s.Feed([]byte(chunk), now)
	require.NoError(t, err)
	joined := strings.Join(frames, "")

	require.Contains(t, joined, `"status":"requires_action"`)
	require.Contains(t, joined, `"type":"tool_use"`)
	require.Contains(t, joined, `"id":"call_1"`)
	require.Contains(t, joined, `"name":"search"`)
	require.Contains(t, joined, `"input":{"q":"x"}`)
}

func TestResponsesSource_StopReasonDerivedFromStatus(t *testing.T) {
	s := NewState(FormatOpenAIResponses, FormatAnthropic)
	now := time.Now()
	s.Start(now)

	_, err := s.Feed([]byte("event: response.completed\n"+
		"data: {\"type\":\"response.completed\",\"response\":{\"status\":\"incomplete\",\"usage\":{\"input_tokens\":2,\"output_tokens\":3}}}\n\n"), now)
	require.NoError(t, err)
	require.Equal(t, "max_tokens", s.StopReason)
}

func TestResponsesSource_CreatedEmitsExactlyOneMessageStart(t *testing.T) {
	s := NewState(FormatOpenAIResponses, FormatAnthropic)
	now := time.Now()
	s.Start(now)

	frames, err := s.Feed([]byte("event: response.created\n"+
		"data: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_1\",\"model\":\"gpt-4o\"}}\n\n"), now)
	require.NoError(t, err)

	count := 0
	for _, f := range frames {
		count += strings.Count(f, `"type":"message_start"`)
	}
	require.Equal(t, 1, count, "response.created must synthesize exactly one message_start")
	require.True(t, s.messageStartSent)
}

func TestUsage_CacheFieldVariantsExtractedFromAllSourceFormats(t *testing.T) {
	chat := NewState(FormatOpenAIChat, FormatOpenAIChat)
	chat.Start(time.Now())
	_, err := chat.Feed([]byte("data: {\"choices\":[{\"finish_reason\":\"stop\"}],"+
		"\"usage\":{\"prompt_tokens\":10,\"completion_tokens\":4,\"prompt_tokens_details\":{\"cached_tokens\":6}}}\n\n"), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(6), chat.Usage.CacheReadTokens)

	responses := NewState(FormatOpenAIResponses, FormatOpenAIResponses)
	responses.Start(time.Now())
	_, err = responses.Feed([]byte("event: response.completed\n"+
		"data: {\"type\":\"response.completed\",\"response\":{\"status\":\"completed\","+
		"\"usage\":{\"input_tokens\":10,\"output_tokens\":4,\"cached_tokens\":7,\"cache_creation_input_tokens\":2}}}\n\n"), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(7), responses.Usage.CacheReadTokens)
	require.Equal(t, int64(2), responses.Usage.CacheWriteTokens)
}
