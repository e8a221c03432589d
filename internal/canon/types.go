// Package canon defines the canonical Anthropic-style Messages shape used as
// the lingua franca of the gateway, along with the provider descriptor and
// routing decision that travel alongside a request.
package canon

import (
	"encoding/json"
	"time"
)

// Role is the speaker of a CanonicalMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// BlockKind discriminates a ContentBlock's variant. Content blocks are a
// closed sum type: a new kind is never added without updating every
// translator, so a tagged struct is used rather than an interface hierarchy.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of a message's content array. Only the fields
// relevant to Kind are populated; the rest are zero values.
type ContentBlock struct {
	Kind BlockKind `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ToolUseID string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	ToolInput json.RawMessage `json:"input,omitempty"`

	// BlockToolResult
	ToolResultID      string `json:"tool_use_id,omitempty"`
	ToolResultContent string `json:"content,omitempty"`
	ToolResultIsError bool   `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolResultID: toolUseID, ToolResultContent: content, ToolResultIsError: isError}
}

// CanonicalMessage is one turn in a conversation. Content is always stored
// as an ordered block sequence internally; a plain string is treated as a
// single text block at the translation boundary.
type CanonicalMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolSchema is a tool declaration: name, description, and JSON-schema
// parameters. Carried verbatim through the catalog and the translators.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// CanonicalRequest is the inbound shape accepted at POST /messages.
type CanonicalRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []CanonicalMessage `json:"messages"`
	Tools       []ToolSchema       `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// StopReason is the terminal classification of a CanonicalResponse.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopContentFilter StopReason = "content_filter"
)

// Usage is the token accounting attached to a CanonicalResponse.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CanonicalResponse is the outbound shape returned from a non-streaming
// dispatch.
type CanonicalResponse struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Model      string          `json:"model"`
	Content    []ContentBlock  `json:"content"`
	StopReason StopReason      `json:"stop_reason"`
	Usage      Usage           `json:"usage"`
	Routing    *RoutingDecision `json:"routing,omitempty"`
}

// ProviderFamily identifies the wire shape a provider speaks.
type ProviderFamily string

const (
	FamilyOpenAIChat      ProviderFamily = "openai-chat-family"
	FamilyAnthropicNative ProviderFamily = "anthropic-native-family"
	FamilyBedrockConverse ProviderFamily = "bedrock-converse"
	FamilyOllamaNative    ProviderFamily = "ollama-native"
	FamilyLlamaCppOpenAI  ProviderFamily = "llamacpp-openai"
	FamilyLMStudioOpenAI  ProviderFamily = "lmstudio-openai"
	FamilyAzureResponses  ProviderFamily = "azure-openai-responses"
	FamilyTinyFishSSE     ProviderFamily = "tinyfish-sse"
)

// IsLocal reports whether the family runs on a local/self-hosted runtime
// rather than a hosted cloud API. Local families are subject to the
// consecutive-same-role compaction workaround and are forbidden as
// fallback targets.
func (f ProviderFamily) IsLocal() bool {
	switch f {
	case FamilyOllamaNative, FamilyLlamaCppOpenAI, FamilyLMStudioOpenAI:
		return true
	default:
		return false
	}
}

// ProviderDescriptor names one configured upstream.
type ProviderDescriptor struct {
	ID         string
	Family     ProviderFamily
	Endpoint   string
	APIKey     string
	Model      string
	Deployment string
	Timeout    time.Duration
}

// RoutingMethod is how a request's provider was chosen.
type RoutingMethod string

const (
	MethodStatic     RoutingMethod = "static"
	MethodComplexity RoutingMethod = "complexity"
	MethodTier       RoutingMethod = "tier"
	MethodFallback   RoutingMethod = "fallback"
)

// AnalyzerMode tunes the local-vs-cloud threshold used by the Router.
type AnalyzerMode string

const (
	ModeAggressive   AnalyzerMode = "aggressive"
	ModeHeuristic    AnalyzerMode = "heuristic"
	ModeConservative AnalyzerMode = "conservative"
)

// RoutingDecision records why a provider was chosen, attached to the
// response for observability.
type RoutingDecision struct {
	Provider       string        `json:"provider"`
	Method         RoutingMethod `json:"method"`
	Score          int           `json:"score,omitempty"`
	Threshold      int           `json:"threshold,omitempty"`
	Mode           AnalyzerMode  `json:"mode,omitempty"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
}

