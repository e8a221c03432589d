// Package translate implements the four translation pairs of spec §4.3:
// canonical⇄OpenAI-chat, canonical⇄Bedrock Converse, canonical⇄native-local,
// and the Responses-shape⇄chat-completions shim, plus consecutive-same-role
// compaction for local-provider families.
//
// Wire DTOs are hand-rolled JSON-tagged structs, grounded on the teacher's
// llm/providers/common.go OpenAICompat* types (corrected where that file
// conflated tool "arguments" with "parameters"). No package of the gateway
// imports the official SDKs (openai-go/v3, anthropic-sdk-go): translation
// uses these hand-rolled types, and upstream calls go through the shared
// pool's net/http clients.
package translate

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/ashgate/gateway/internal/canon"
)

// OpenAIMessage is the wire shape of one chat-completions message.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// OpenAIToolCall is one entry of an assistant message's tool_calls array.
type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

// OpenAIToolFunction carries the function name and JSON-string arguments.
type OpenAIToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAITool is one entry of the request's tools array.
type OpenAITool struct {
	Type     string                `json:"type"`
	Function OpenAIToolDeclaration `json:"function"`
}

// OpenAIToolDeclaration is a function tool's schema, distinct from
// OpenAIToolFunction (a call), naming parameters explicitly rather than
// conflating them with call arguments.
type OpenAIToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// OpenAIRequest is the outbound chat-completions request body.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Tools       []OpenAITool    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// OpenAIChoice is one entry of a response's choices array.
type OpenAIChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason"`
	Message      OpenAIMessage `json:"message"`
}

// OpenAIUsage is the response's token accounting.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// OpenAIResponse is the inbound chat-completions response body.
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   *OpenAIUsage   `json:"usage,omitempty"`
}

// ToOpenAIMessages implements spec §4.3.1: canonical messages -> OpenAI-chat
// messages. Text content is concatenated with newline separators; assistant
// tool_use blocks become a tool_calls array; user tool_result blocks become
// standalone tool-role messages; orphan tool_results (already dropped by
// canon.Normalize, defensively re-checked here) are skipped; ordering is
// preserved.
func ToOpenAIMessages(messages []canon.CanonicalMessage) []OpenAIMessage {
	emittedToolUseIDs := make(map[string]bool)
	out := make([]OpenAIMessage, 0, len(messages))

	for _, m := range messages {
		role := string(m.Role)

		var texts []string
		var toolCalls []OpenAIToolCall
		var toolResults []OpenAIMessage

		for _, b := range m.Content {
			switch b.Kind {
			case canon.BlockText:
				if b.Text != "" {
					texts = append(texts, b.Text)
				}
			case canon.BlockToolUse:
				args := "{}"
				if len(b.ToolInput) > 0 {
					args = string(b.ToolInput)
				}
				toolCalls = append(toolCalls, OpenAIToolCall{
					ID:   b.ToolUseID,
					Type: "function",
					Function: OpenAIToolFunction{
						Name:      b.ToolName,
						Arguments: args,
					},
				})
				emittedToolUseIDs[b.ToolUseID] = true
			case canon.BlockToolResult:
				if !emittedToolUseIDs[b.ToolResultID] {
					continue // orphan: dropped
				}
				toolResults = append(toolResults, OpenAIMessage{
					Role:       "tool",
					ToolCallID: b.ToolResultID,
					Content:    b.ToolResultContent,
				})
			}
		}

		if len(texts) > 0 || len(toolCalls) > 0 {
			out = append(out, OpenAIMessage{
				Role:      role,
				Content:   strings.Join(texts, "\n"),
				ToolCalls: toolCalls,
			})
		}
		out = append(out, toolResults...)
	}
	return out
}

// ToOpenAITools converts canonical tool declarations to OpenAI-chat shape
// per spec §4.4, populating "parameters" from the tool's input_schema
// (corrected from the teacher's arguments/parameters conflation).
func ToOpenAITools(tools []canon.ToolSchema) []OpenAITool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]OpenAITool, 0, len(tools))
	for _, t := range tools {
		out = append(out, OpenAITool{
			Type: "function",
			Function: OpenAIToolDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// isFunctionShapedJSON reports whether s parses as a whole JSON object
// resembling {"function":…} or {"type":"function",…}, per spec §4.3.2's
// local-model JSON-leakage detection. Uses gjson for cheap shape sniffing
// rather than a full unmarshal.
func isFunctionShapedJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !gjson.Valid(s) {
		return false
	}
	parsed := gjson.Parse(s)
	if !parsed.IsObject() {
		return false
	}
	if parsed.Get("function").Exists() {
		return true
	}
	if parsed.Get("type").String() == "function" {
		return true
	}
	return false
}

var finishReasonMap = map[string]canon.StopReason{
	"stop":           canon.StopEndTurn,
	"tool_calls":     canon.StopToolUse,
	"length":         canon.StopMaxTokens,
	"content_filter": canon.StopContentFilter,
}

// mapFinishReason implements the total mapping of spec §8: any value not in
// the table maps to end_turn.
func mapFinishReason(fr string) canon.StopReason {
	if sr, ok := finishReasonMap[fr]; ok {
		return sr
	}
	return canon.StopEndTurn
}

// FromOpenAIResponse implements spec §4.3.2: OpenAI-chat response ->
// canonical response. requestedModel always wins over the upstream's
// reported model, per the invariant in §8.
func FromOpenAIResponse(resp OpenAIResponse, requestedModel string) (*canon.CanonicalResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, canon.NewError(canon.ErrNoChoices, "upstream returned no choices").WithProvider("openai-chat-family")
	}
	choice := resp.Choices[0]
	msg := choice.Message

	hasToolCalls := len(msg.ToolCalls) > 0
	contentIsFunctionJSON := isFunctionShapedJSON(msg.Content)

	var blocks []canon.ContentBlock

	switch {
	case contentIsFunctionJSON && hasToolCalls:
		// local-model JSON leakage: suppress the text block entirely
	case contentIsFunctionJSON && !hasToolCalls:
		// malformed local-model tool hallucination: empty text block
		blocks = append(blocks, canon.TextBlock(""))
	default:
		// msg.Content == "" for a true null/empty upstream content is
		// indistinguishable from an explicit empty string at this layer;
		// both produce a single (possibly empty) text block so the
		// content array is never empty, per spec §4.3.2.
		blocks = append(blocks, canon.TextBlock(msg.Content))
	}

	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "toolu_" + uuid.NewString()
		}
		input := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, canon.ToolUseBlock(id, tc.Function.Name, input))
	}

	usage := canon.Usage{}
	if resp.Usage != nil {
		usage = canon.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}

	return &canon.CanonicalResponse{
		ID:         resp.ID,
		Role:       canon.RoleAssistant,
		Model:      requestedModel,
		Content:    blocks,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage:      usage,
	}, nil
}
