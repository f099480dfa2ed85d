package providers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// RecoveredToolCall is a tool call reconstructed from inline text that a
// model emitted instead of a structured tool_calls field.
type RecoveredToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolScanResult is the outcome of scanning a completed text for inline
// tool calls. Text has every matched span removed. ParseFailures describes
// frames that were recognized but carried malformed JSON; they are reported
// to the client, never silently dropped.
type ToolScanResult struct {
	Text          string
	Calls         []RecoveredToolCall
	ParseFailures []string
}

var (
	toolCallFenceRe = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)
	invokeRe        = regexp.MustCompile(`(?s)<invoke\s+name="([^"]+)"\s*>(.*?)</invoke>`)
	parameterRe     = regexp.MustCompile(`(?s)<parameter\s+name="([^"]+)"\s*>(.*?)</parameter>`)
)

// ScanInlineToolCalls recovers tool calls from text, trying recognized
// patterns in priority order:
//
//  1. a <tool_call>{…}</tool_call> fence with {name, arguments} or
//     {name, input} fields,
//  2. an XML-like <invoke name="…"><parameter name="…">…</parameter></invoke>
//     form,
//  3. a bare JSON object on its own line whose top-level keys are exactly
//     {"name","arguments"} or {"tool","args"}.
//
// Each recovered call gets a freshly minted synthetic id.
func ScanInlineToolCalls(text string) ToolScanResult {
	result := ToolScanResult{}

	text = scanToolCallFences(text, &result)
	text = scanInvokeFrames(text, &result)
	text = scanBareJSONLines(text, &result)

	result.Text = text
	return result
}

func scanToolCallFences(text string, result *ToolScanResult) string {
	return toolCallFenceRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := toolCallFenceRe.FindStringSubmatch(match)[1]

		var frame struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
			Input     json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal([]byte(inner), &frame); err != nil || frame.Name == "" {
			result.ParseFailures = append(result.ParseFailures,
				fmt.Sprintf("malformed tool_call frame: %v", err))
			return ""
		}

		args := frame.Arguments
		if len(args) == 0 {
			args = frame.Input
		}
		input, err := decodeArguments(args)
		if err != nil {
			result.ParseFailures = append(result.ParseFailures,
				fmt.Sprintf("malformed arguments for tool %q: %v", frame.Name, err))
			return ""
		}

		result.Calls = append(result.Calls, RecoveredToolCall{
			ID:    MintToolCallID(),
			Name:  frame.Name,
			Input: input,
		})
		return ""
	})
}

func scanInvokeFrames(text string, result *ToolScanResult) string {
	return invokeRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := invokeRe.FindStringSubmatch(match)
		name, body := groups[1], groups[2]

		input := map[string]any{}
		for _, param := range parameterRe.FindAllStringSubmatch(body, -1) {
			input[param[1]] = param[2]
		}

		result.Calls = append(result.Calls, RecoveredToolCall{
			ID:    MintToolCallID(),
			Name:  name,
			Input: input,
		})
		return ""
	})
}

func scanBareJSONLines(text string, result *ToolScanResult) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
			kept = append(kept, line)
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			kept = append(kept, line)
			continue
		}

		var nameRaw, argsRaw json.RawMessage
		switch {
		case len(obj) == 2 && obj["name"] != nil && obj["arguments"] != nil:
			nameRaw, argsRaw = obj["name"], obj["arguments"]
		case len(obj) == 2 && obj["tool"] != nil && obj["args"] != nil:
			nameRaw, argsRaw = obj["tool"], obj["args"]
		default:
			kept = append(kept, line)
			continue
		}

		var name string
		if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
			kept = append(kept, line)
			continue
		}

		input, err := decodeArguments(argsRaw)
		if err != nil {
			result.ParseFailures = append(result.ParseFailures,
				fmt.Sprintf("malformed arguments for tool %q: %v", name, err))
			continue
		}

		result.Calls = append(result.Calls, RecoveredToolCall{
			ID:    MintToolCallID(),
			Name:  name,
			Input: input,
		})
	}

	return strings.Join(kept, "\n")
}

// decodeArguments accepts an object, a JSON-encoded string of an object, or
// nothing at all.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = json.RawMessage(s)
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}

// MintToolCallID mints a synthetic tool call id.
func MintToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// MintMessageID mints a response message id.
func MintMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
