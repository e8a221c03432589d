package translate

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/ashgate/gateway/internal/canon"
)

// OllamaMessage is the native /api/chat message shape: content as a plain
// string, tool calls carried separately.
type OllamaMessage struct {
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	ToolCalls []OllamaToolCall   `json:"tool_calls,omitempty"`
}

type OllamaToolCall struct {
	Function OllamaToolCallFunc `json:"function"`
}

type OllamaToolCallFunc struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// OllamaTool is Ollama's native tool schema, which differs in key names
// from the OpenAI shape (spec §4.4: "Ollama-native uses its own schema that
// differs in key names").
type OllamaTool struct {
	Type     string             `json:"type"`
	Function OllamaToolFunction `json:"function"`
}

type OllamaToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type OllamaRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Tools    []OllamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type OllamaResponseMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []OllamaToolCall `json:"tool_calls,omitempty"`
}

type OllamaResponse struct {
	Model           string                `json:"model"`
	Message         OllamaResponseMessage `json:"message"`
	Done            bool                  `json:"done"`
	PromptEvalCount int                   `json:"prompt_eval_count"`
	EvalCount       int                   `json:"eval_count"`
}

// ToOllamaTools converts canonical tool declarations to Ollama's native
// schema. Despite the differing key names at the wire level, Ollama's
// schema is structurally identical to OpenAI's function-tool shape, so
// conversion is a 1:1 field rename rather than a reshaping.
func ToOllamaTools(tools []canon.ToolSchema) []OllamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]OllamaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, OllamaTool{
			Type: "function",
			Function: OllamaToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// ToOllamaMessages reuses the OpenAI-shape conversion (content
// concatenation, tool_use -> tool_calls, tool_result -> a synthetic "tool"
// role collapsed into a user message, since Ollama's native shape has no
// separate tool role) and applies consecutive-same-role compaction, which
// is mandatory for this family per spec §4.3.
func ToOllamaMessages(messages []canon.CanonicalMessage) []OllamaMessage {
	oa := ToOpenAIMessages(messages)
	compacted := CompactConsecutiveSameRole(oa)

	out := make([]OllamaMessage, 0, len(compacted))
	for _, m := range compacted {
		role := m.Role
		content := m.Content
		if role == "tool" {
			// Ollama has no standalone tool role; fold the tool result text
			// into a user message so it still reaches the model.
			role = "user"
		}
		var toolCalls []OllamaToolCall
		for _, tc := range m.ToolCalls {
			toolCalls = append(toolCalls, OllamaToolCall{Function: OllamaToolCallFunc{
				Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments),
			}})
		}
		out = append(out, OllamaMessage{Role: role, Content: content, ToolCalls: toolCalls})
	}
	return compactOllamaRoles(out)
}

// compactOllamaRoles re-applies compaction after the tool->user role fold
// above may have produced new adjacent same-role pairs.
func compactOllamaRoles(messages []OllamaMessage) []OllamaMessage {
	if len(messages) == 0 {
		return messages
	}
	out := make([]OllamaMessage, 0, len(messages))
	out = append(out, messages[0])
	for _, m := range messages[1:] {
		last := &out[len(out)-1]
		if m.Role == last.Role {
			if last.Content != "" && m.Content != "" {
				last.Content = last.Content + "\n" + m.Content
			} else if m.Content != "" {
				last.Content = m.Content
			}
			last.ToolCalls = append(last.ToolCalls, m.ToolCalls...)
			continue
		}
		out = append(out, m)
	}
	return out
}

// FromOllamaResponse maps a native Ollama response to canonical, reusing
// the OpenAI finish-reason-free convention: Ollama has no finish_reason
// field, so stop_reason is tool_use when tool_calls are present and
// end_turn otherwise.
func FromOllamaResponse(resp OllamaResponse, requestedModel string) (*canon.CanonicalResponse, error) {
	var blocks []canon.ContentBlock
	stop := canon.StopEndTurn

	trimmed := strings.TrimSpace(resp.Message.Content)
	contentIsFunctionJSON := isFunctionShapedJSON(trimmed)
	hasToolCalls := len(resp.Message.ToolCalls) > 0

	switch {
	case contentIsFunctionJSON && hasToolCalls:
		// suppressed
	case contentIsFunctionJSON && !hasToolCalls:
		blocks = append(blocks, canon.TextBlock(""))
	default:
		blocks = append(blocks, canon.TextBlock(resp.Message.Content))
	}

	for _, tc := range resp.Message.ToolCalls {
		input := tc.Function.Arguments
		if len(input) == 0 || !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, canon.ToolUseBlock("toolu_"+uuid.NewString(), tc.Function.Name, input))
		stop = canon.StopToolUse
	}

	return &canon.CanonicalResponse{
		Role:       canon.RoleAssistant,
		Model:      requestedModel,
		Content:    blocks,
		StopReason: stop,
		Usage:      canon.Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
	}, nil
}
