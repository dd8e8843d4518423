package validator

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	headers := http.Header{}
	headers.Set("anthropic-version", "2023-06-01")
	return Request{
		Method:      http.MethodPost,
		ContentType: "application/json",
		Headers:     headers,
		Body: map[string]interface{}{
			"model": "claude-3-5-sonnet",
			"messages": []interface{}{
				map[string]interface{}{"role": "user", "content": "hi"},
			},
		},
	}
}

func TestValidate_ModeOffSkipsEverything(t *testing.T) {
	req := Request{Method: "GET"} // would fail every other check
	require.Nil(t, Validate(Options{Mode: ModeOff}, req))
}

func TestValidate_AcceptsWellFormedRequest(t *testing.T) {
	require.Nil(t, Validate(Options{Mode: ModeAnthropicStrict}, validRequest()))
}

func TestValidate_RejectsMissingAnthropicVersionHeader(t *testing.T) {
	req := validRequest()
	req.Headers = http.Header{}
	ve := Validate(Options{Mode: ModeAnthropicStrict}, req)
	require.NotNil(t, ve)
	require.Contains(t, ve.Message, "anthropic-version")
}

func TestValidate_RejectsEmptyMessages(t *testing.T) {
	req := validRequest()
	req.Body["messages"] = []interface{}{}
	ve := Validate(Options{Mode: ModeAnthropicStrict}, req)
	require.NotNil(t, ve)
	require.Equal(t, "messages", ve.Path)
}

func TestValidate_RejectsToolUseInUserMessage(t *testing.T) {
	req := validRequest()
	req.Body["messages"] = []interface{}{
		map[string]interface{}{
			"role": "user",
			"content": []interface{}{
				map[string]interface{}{"type": "tool_use", "id": "x", "name": "y", "input": map[string]interface{}{}},
			},
		},
	}
	ve := Validate(Options{Mode: ModeAnthropicStrict}, req)
	require.NotNil(t, ve)
	require.Contains(t, ve.Message, "tool_use")
}

func TestValidate_ExperimentalBlockRejectedUnlessAllowed(t *testing.T) {
	req := validRequest()
	req.Body["messages"] = []interface{}{
		map[string]interface{}{
			"role": "user",
			"content": []interface{}{
				map[string]interface{}{"type": "input_audio"},
			},
		},
	}
	ve := Validate(Options{Mode: ModeAnthropicStrict}, req)
	require.NotNil(t, ve)

	req2 := validRequest()
	req2.Body["messages"] = req.Body["messages"]
	require.Nil(t, Validate(Options{Mode: ModeAnthropicStrict, AllowExperimentalBlocks: true}, req2))
}

func TestValidate_ClaudeCodeModeRequiresUserAgentAndUserID(t *testing.T) {
	req := validRequest()
	req.Headers.Set("User-Agent", "curl/8.0")
	ve := Validate(Options{Mode: ModeClaudeCode}, req)
	require.NotNil(t, ve)
	require.Equal(t, "user_agent", ve.Path)

	req.Headers.Set("User-Agent", "claude-cli/1.0")
	ve = Validate(Options{Mode: ModeClaudeCode}, req)
	require.NotNil(t, ve)
	require.Equal(t, "metadata.user_id", ve.Path)

	req.Body["metadata"] = map[string]interface{}{"user_id": "u-1"}
	require.Nil(t, Validate(Options{Mode: ModeClaudeCode}, req))
}
