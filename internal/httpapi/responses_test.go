package httpapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/translate"
)

func TestToCanonicalMessagesPlainText(t *testing.T) {
	msgs := toCanonicalMessages([]translate.OpenAIMessage{{Role: "user", Content: "Hello"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, canon.RoleUser, msgs[0].Role)
	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, "Hello", msgs[0].Content[0].Text)
}

func TestToCanonicalMessagesToolCall(t *testing.T) {
	msgs := toCanonicalMessages([]translate.OpenAIMessage{{
		Role: "assistant",
		ToolCalls: []translate.OpenAIToolCall{{
			ID:       "call_1",
			Function: translate.OpenAIToolFunction{Name: "get_weather", Arguments: `{"city":"nyc"}`},
		}},
	}})
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, canon.BlockToolUse, msgs[0].Content[0].Kind)
	assert.Equal(t, "get_weather", msgs[0].Content[0].ToolName)
}

func TestToCanonicalMessagesToolResult(t *testing.T) {
	msgs := toCanonicalMessages([]translate.OpenAIMessage{{Role: "tool", ToolCallID: "call_1", Content: "72F"}})
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, canon.BlockToolResult, msgs[0].Content[0].Kind)
	assert.Equal(t, "72F", msgs[0].Content[0].ToolResultContent)
}

func TestResponsesHandleStringInput(t *testing.T) {
	input, _ := json.Marshal("Hello there")
	msgs, err := translate.FromResponsesShape(translate.ResponsesRequest{Input: input})
	require.NoError(t, err)
	canonMsgs := toCanonicalMessages(msgs)
	require.Len(t, canonMsgs, 1)
	assert.Equal(t, canon.RoleUser, canonMsgs[0].Role)
	assert.Equal(t, "Hello there", canonMsgs[0].Content[0].Text)
}
