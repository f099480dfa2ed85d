package api

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Token estimation overheads, calibrated against observed Claude client
// behavior. Images without inline data are charged a flat amount.
const (
	perMessageOverhead    = 4
	toolUseOverhead       = 15
	toolResultOverhead    = 8
	systemOverhead        = 4
	perToolOverhead       = 5
	imageFallbackTokens   = 765
	imageMinTokens        = 85
	imageBase64PerToken   = 3000
	tokenCountEncodingBPE = "cl100k_base"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
	encoderErr  error
)

func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding(tokenCountEncodingBPE)
	})
	return encoder, encoderErr
}

// CountTokens estimates the input token count for a request using the
// cl100k_base BPE encoding. Counts include per-message and per-tool framing
// overheads; the result is a lower-bound estimate, never less than 1.
func CountTokens(messages []Message, system SystemPrompt, tools []Tool) (int, error) {
	enc, err := getEncoder()
	if err != nil {
		return 0, fmt.Errorf("token encoder unavailable: %w", err)
	}

	count := func(s string) int {
		if s == "" {
			return 0
		}
		return len(enc.Encode(s, nil, nil))
	}

	total := 0

	if !system.IsZero() {
		total += count(system.Text())
		total += systemOverhead
	}

	for _, msg := range messages {
		if msg.Content.IsString() {
			total += count(msg.Content.String())
			continue
		}
		for _, block := range msg.Content.Blocks() {
			switch block.Type {
			case BlockTypeText:
				total += count(block.Text)
			case BlockTypeThinking:
				total += count(block.Thinking)
			case BlockTypeToolUse:
				total += count(block.Name)
				total += count(jsonString(block.Input))
				total += count(block.ID)
				total += toolUseOverhead
			case BlockTypeToolResult:
				total += count(block.ResultText())
				total += count(block.ToolUseID)
				total += toolResultOverhead
			case BlockTypeImage:
				total += imageTokens(block.Source)
			default:
				raw, err := json.Marshal(block)
				if err == nil {
					total += count(string(raw))
				}
			}
		}
	}

	for _, tool := range tools {
		total += count(tool.Name + tool.Description + jsonString(tool.InputSchema))
	}

	total += len(messages) * perMessageOverhead
	total += len(tools) * perToolOverhead

	if total < 1 {
		total = 1
	}
	return total, nil
}

// imageTokens charges an image block by its inline base64 payload when
// present, with a floor, and a flat fallback for URL-only sources.
func imageTokens(source map[string]any) int {
	if source == nil {
		return imageFallbackTokens
	}
	data, _ := source["data"].(string)
	if data == "" {
		data, _ = source["base64"].(string)
	}
	if data == "" {
		return imageFallbackTokens
	}
	tokens := len(data) / imageBase64PerToken
	if tokens < imageMinTokens {
		tokens = imageMinTokens
	}
	return tokens
}

func jsonString(v any) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
