// Package validator implements the request-validation gate (C5, spec
// §4.5): an optional strict-mode shape check of raw Anthropic request
// bodies, grounded on the teacher's pkg/provider/errors ValidationError
// / ValidationContext, now re-exported from internal/gwerrors.
package validator

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/chenpu17/cc-gateway/internal/gwerrors"
)

// Mode selects how strict the gate is.
type Mode string

const (
	ModeOff            Mode = "off"
	ModeClaudeCode     Mode = "claude-code"
	ModeAnthropicStrict Mode = "anthropic-strict"
)

// Options configures one endpoint's validation behaviour.
type Options struct {
	Mode                    Mode
	AllowExperimentalBlocks bool
}

// Request is the subset of the inbound HTTP request the validator
// needs; callers extract it from net/http without importing this
// package into the transport layer.
type Request struct {
	Method      string
	Query       map[string][]string
	ContentType string
	Headers     http.Header
	Body        map[string]interface{}
}

var experimentalPrefixes = []string{"input_", "output_", "data_", "media_"}

// Validate runs the C5 algorithm and returns a gwerrors.ValidationError
// (nil on success).
func Validate(opts Options, req Request) *gwerrors.ValidationError {
	if opts.Mode == ModeOff || opts.Mode == "" {
		return nil
	}

	if req.Method != http.MethodPost {
		return fail("invalid_request", "method must be POST", "")
	}
	for k := range req.Query {
		if k != "beta" {
			return fail("invalid_request", "unexpected query parameter: "+k, "")
		}
	}
	if !strings.HasPrefix(req.ContentType, "application/json") {
		return fail("invalid_request", "Content-Type must be application/json", "")
	}
	if req.Headers.Get("anthropic-version") == "" {
		return fail("invalid_request", "anthropic-version header is required", "")
	}

	if opts.Mode == ModeClaudeCode {
		ua := req.Headers.Get("User-Agent")
		if !strings.Contains(ua, "claude-cli/") && !strings.Contains(ua, "Claude Code/") {
			return fail("invalid_request", "User-Agent must identify as Claude Code", "user_agent")
		}
		if !hasUserID(req.Body) {
			return fail("invalid_request", "metadata.user_id is required in Claude Code mode", "metadata.user_id")
		}
	}

	model, _ := req.Body["model"].(string)
	if model == "" {
		return fail("invalid_request", "model is required", "model")
	}
	rawMessages, ok := req.Body["messages"].([]interface{})
	if !ok || len(rawMessages) == 0 {
		return fail("invalid_request", "messages must be a non-empty array", "messages")
	}

	allowExperimental := opts.AllowExperimentalBlocks || opts.Mode == ModeClaudeCode

	for i, raw := range rawMessages {
		msg, ok := raw.(map[string]interface{})
		if !ok {
			return fail("invalid_request", "message must be an object", indexPath("messages", i))
		}
		role, _ := msg["role"].(string)
		if role != "user" && role != "assistant" {
			return fail("invalid_request", "message role must be user or assistant", indexPath("messages", i)+".role")
		}
		if err := validateContent(msg["content"], role, allowExperimental, indexPath("messages", i)+".content"); err != nil {
			return err
		}
	}

	if rawTools, ok := req.Body["tools"].([]interface{}); ok {
		for i, raw := range rawTools {
			tool, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := tool["name"].(string)
			if name == "" {
				return fail("invalid_request", "tool name must be non-empty", indexPath("tools", i)+".name")
			}
		}
	}

	return nil
}

func validateContent(content interface{}, role string, allowExperimental bool, path string) *gwerrors.ValidationError {
	blocks, ok := content.([]interface{})
	if !ok {
		return nil // string content needs no further shape checks
	}
	for i, raw := range blocks {
		block, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		typ, _ := block["type"].(string)
		blockPath := indexPath(path, i)
		switch typ {
		case "tool_use":
			if role == "user" {
				return fail("invalid_request", "user messages cannot contain tool_use", blockPath)
			}
			if _, ok := block["id"].(string); !ok {
				return fail("invalid_request", "tool_use.id must be a string", blockPath+".id")
			}
			if name, ok := block["name"].(string); !ok || name == "" {
				return fail("invalid_request", "tool_use.name must be a non-empty string", blockPath+".name")
			}
			if _, present := block["input"]; !present || block["input"] == nil {
				return fail("invalid_request", "tool_use.input must be non-null", blockPath+".input")
			}
		case "tool_result":
			if role == "assistant" {
				return fail("invalid_request", "assistant messages cannot contain tool_result", blockPath)
			}
			if id, ok := block["tool_use_id"].(string); !ok || id == "" {
				return fail("invalid_request", "tool_result.tool_use_id must be non-empty", blockPath+".tool_use_id")
			}
			if _, present := block["content"]; !present {
				return fail("invalid_request", "tool_result.content is required", blockPath+".content")
			}
		case "text":
			// no further shape constraints
		default:
			if isExperimental(typ) {
				if !allowExperimental {
					return fail("invalid_request", "experimental block types are not allowed in this mode", blockPath+".type")
				}
				continue
			}
			// any other unknown type is silently ignored, per spec §4.1
		}
	}
	return nil
}

func isExperimental(typ string) bool {
	for _, p := range experimentalPrefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

func hasUserID(body map[string]interface{}) bool {
	md, ok := body["metadata"].(map[string]interface{})
	if !ok {
		return false
	}
	uid, ok := md["user_id"].(string)
	return ok && uid != ""
}

func indexPath(prefix string, i int) string {
	return prefix + "[" + strconv.Itoa(i) + "]"
}

func fail(code, message, path string) *gwerrors.ValidationError {
	return &gwerrors.ValidationError{Code: code, Message: message, Path: path}
}
