package translate

import (
	"encoding/json"
	"strings"

	"github.com/ashgate/gateway/internal/canon"
)

// ResponsesInputItem is one entry of the "Responses" API's input array. It
// may carry plain string-or-array content, or a tool call / tool result in
// place of content, per spec §4.3.4.
type ResponsesInputItem struct {
	Role       string          `json:"role,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ResponsesRequest is the alternate /responses input shape: an "input"
// field instead of "messages".
type ResponsesRequest struct {
	Input json.RawMessage `json:"input"`
}

type responsesContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// flattenContentParts joins an array of {type: text|input_text, text:...}
// parts with blank-line separators, per spec §4.3.4.
func flattenContentParts(raw json.RawMessage) (string, bool) {
	var parts []responsesContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", false
	}
	var texts []string
	for _, p := range parts {
		if p.Type == "text" || p.Type == "input_text" {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n\n"), true
}

// FromResponsesShape implements spec §4.3.4: maps the "Responses" input
// shape onto the chat-completions message shape the rest of the translator
// already understands.
func FromResponsesShape(req ResponsesRequest) ([]OpenAIMessage, error) {
	if len(req.Input) == 0 {
		return nil, canon.NewError(canon.ErrInvalidRequest, "responses input is empty")
	}

	// If input is a plain string, it becomes a single user message.
	var asString string
	if err := json.Unmarshal(req.Input, &asString); err == nil {
		return []OpenAIMessage{{Role: "user", Content: asString}}, nil
	}

	var items []ResponsesInputItem
	if err := json.Unmarshal(req.Input, &items); err != nil {
		return nil, canon.NewError(canon.ErrInvalidRequest, "responses input is neither a string nor an array")
	}

	var out []OpenAIMessage
	for _, it := range items {
		role := it.Role
		hasContent := len(it.Content) > 0
		hasToolCalls := len(it.ToolCalls) > 0
		hasToolCallID := it.ToolCallID != ""

		if role == "" || (!hasContent && !hasToolCalls && !hasToolCallID) {
			continue // no salvageable role+payload: dropped
		}

		msg := OpenAIMessage{Role: role, ToolCallID: it.ToolCallID}

		if hasContent {
			var asStr string
			if err := json.Unmarshal(it.Content, &asStr); err == nil {
				msg.Content = asStr
			} else if flat, ok := flattenContentParts(it.Content); ok {
				msg.Content = flat
			}
		}
		if hasToolCalls {
			var calls []OpenAIToolCall
			if err := json.Unmarshal(it.ToolCalls, &calls); err == nil {
				msg.ToolCalls = calls
			}
		}
		out = append(out, msg)
	}

	if len(out) == 0 {
		return nil, canon.NewError(canon.ErrInvalidRequest, "no salvageable messages in responses input")
	}
	return out, nil
}
