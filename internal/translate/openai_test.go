package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgate/gateway/internal/canon"
)

// Scenario 1 from spec §8.
func TestScenario1PlainTextRoundTrip(t *testing.T) {
	resp := OpenAIResponse{
		Choices: []OpenAIChoice{{
			FinishReason: "stop",
			Message:      OpenAIMessage{Role: "assistant", Content: "Hi"},
		}},
		Usage: &OpenAIUsage{PromptTokens: 1, CompletionTokens: 1},
	}
	out, err := FromOpenAIResponse(resp, "claude-3")
	require.NoError(t, err)
	require.Len(t, out.Content, 1)
	assert.Equal(t, canon.BlockText, out.Content[0].Kind)
	assert.Equal(t, "Hi", out.Content[0].Text)
	assert.Equal(t, canon.StopEndTurn, out.StopReason)
	assert.Equal(t, canon.Usage{InputTokens: 1, OutputTokens: 1}, out.Usage)
	assert.Equal(t, "claude-3", out.Model, "model must echo the caller-requested model")
}

// Scenario 2 from spec §8.
func TestScenario2ToolUseAndToolResultTranslation(t *testing.T) {
	messages := []canon.CanonicalMessage{
		{Role: canon.RoleAssistant, Content: []canon.ContentBlock{
			canon.ToolUseBlock("toolu_1", "Read", json.RawMessage(`{"file_path":"/a"}`)),
		}},
		{Role: canon.RoleUser, Content: []canon.ContentBlock{
			canon.ToolResultBlock("toolu_1", "contents", false),
		}},
	}
	out := ToOpenAIMessages(messages)
	require.Len(t, out, 2)
	assert.Equal(t, "assistant", out[0].Role)
	assert.Equal(t, "", out[0].Content)
	require.Len(t, out[0].ToolCalls, 1)
	assert.Equal(t, "toolu_1", out[0].ToolCalls[0].ID)
	assert.Equal(t, "Read", out[0].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"file_path":"/a"}`, out[0].ToolCalls[0].Function.Arguments)

	assert.Equal(t, "tool", out[1].Role)
	assert.Equal(t, "toolu_1", out[1].ToolCallID)
	assert.Equal(t, "contents", out[1].Content)
}

// Scenario 3 from spec §8.
func TestScenario3LocalModelJSONLeakageWithToolCalls(t *testing.T) {
	resp := OpenAIResponse{
		Choices: []OpenAIChoice{{
			Message: OpenAIMessage{
				Role:    "assistant",
				Content: `{"type":"function","function":{"name":"Write","parameters":{"file_path":"t.c","content":"x"}}}`,
				ToolCalls: []OpenAIToolCall{{
					ID:   "c1",
					Type: "function",
					Function: OpenAIToolFunction{
						Name:      "Write",
						Arguments: `{"file_path":"t.c","content":"x"}`,
					},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}
	out, err := FromOpenAIResponse(resp, "m")
	require.NoError(t, err)
	textBlocks, toolUseBlocks := 0, 0
	for _, b := range out.Content {
		if b.Kind == canon.BlockText {
			textBlocks++
		}
		if b.Kind == canon.BlockToolUse {
			toolUseBlocks++
		}
	}
	assert.Equal(t, 0, textBlocks)
	assert.Equal(t, 1, toolUseBlocks)
	assert.Equal(t, canon.StopToolUse, out.StopReason)
}

func TestJSONShapedContentWithoutToolCallsYieldsEmptyText(t *testing.T) {
	resp := OpenAIResponse{
		Choices: []OpenAIChoice{{
			Message: OpenAIMessage{
				Role:    "assistant",
				Content: `{"type":"function","function":{"name":"Write"}}`,
			},
			FinishReason: "stop",
		}},
	}
	out, err := FromOpenAIResponse(resp, "m")
	require.NoError(t, err)
	require.Len(t, out.Content, 1)
	assert.Equal(t, canon.BlockText, out.Content[0].Kind)
	assert.Equal(t, "", out.Content[0].Text)
}

func TestFinishReasonMappingIsTotal(t *testing.T) {
	cases := map[string]canon.StopReason{
		"stop":            canon.StopEndTurn,
		"tool_calls":       canon.StopToolUse,
		"length":          canon.StopMaxTokens,
		"content_filter":  canon.StopContentFilter,
		"something_weird": canon.StopEndTurn,
	}
	for fr, want := range cases {
		assert.Equal(t, want, mapFinishReason(fr), fr)
	}
}

func TestMissingUsageYieldsZeros(t *testing.T) {
	resp := OpenAIResponse{Choices: []OpenAIChoice{{Message: OpenAIMessage{Role: "assistant", Content: "x"}}}}
	out, err := FromOpenAIResponse(resp, "m")
	require.NoError(t, err)
	assert.Equal(t, canon.Usage{}, out.Usage)
}

func TestEmptyChoicesIsNoChoicesError(t *testing.T) {
	_, err := FromOpenAIResponse(OpenAIResponse{}, "m")
	require.Error(t, err)
	assert.Equal(t, canon.ErrNoChoices, canon.GetErrorCode(err))
}

func TestOrphanToolResultDropped(t *testing.T) {
	messages := []canon.CanonicalMessage{
		{Role: canon.RoleUser, Content: []canon.ContentBlock{
			canon.ToolResultBlock("toolu_never_used", "x", false),
		}},
	}
	out := ToOpenAIMessages(messages)
	assert.Len(t, out, 0)
}

func TestCompactionConcatenatesConsecutiveSameRole(t *testing.T) {
	in := []OpenAIMessage{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
	}
	out := CompactConsecutiveSameRole(in)
	require.Len(t, out, 1)
	assert.Equal(t, "first\nsecond", out[0].Content)
}
