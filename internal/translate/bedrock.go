package translate

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/ashgate/gateway/internal/canon"
)

// BedrockContentBlock is one entry of a Converse message's content array.
// Exactly one of Text/ToolUse/ToolResult is populated, mirroring the real
// Bedrock Converse union shape; hand-written because the AWS SDK's
// generated bedrockruntime/types structs are smithy/REST-JSON serialized
// and carry no encoding/json tags (see DESIGN.md).
type BedrockContentBlock struct {
	Text       *string            `json:"text,omitempty"`
	ToolUse    *BedrockToolUse    `json:"toolUse,omitempty"`
	ToolResult *BedrockToolResult `json:"toolResult,omitempty"`
}

type BedrockToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type BedrockToolResult struct {
	ToolUseID string                `json:"toolUseId"`
	Content   []BedrockResultPart   `json:"content"`
	Status    *string               `json:"status,omitempty"`
}

type BedrockResultPart struct {
	Text *string `json:"text,omitempty"`
}

type BedrockMessage struct {
	Role    string                `json:"role"`
	Content []BedrockContentBlock `json:"content"`
}

type BedrockSystemBlock struct {
	Text string `json:"text"`
}

type BedrockToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema struct {
		JSON json.RawMessage `json:"json"`
	} `json:"inputSchema"`
}

type BedrockTool struct {
	ToolSpec BedrockToolSpec `json:"toolSpec"`
}

type BedrockToolConfig struct {
	Tools []BedrockTool `json:"tools"`
}

// BedrockConverseRequest is the request body for POST /model/{modelId}/converse.
type BedrockConverseRequest struct {
	Messages   []BedrockMessage     `json:"messages"`
	System     []BedrockSystemBlock `json:"system,omitempty"`
	ToolConfig *BedrockToolConfig   `json:"toolConfig,omitempty"`
}

type BedrockOutputMessage struct {
	Role    string                `json:"role"`
	Content []BedrockContentBlock `json:"content"`
}

type BedrockOutput struct {
	Message BedrockOutputMessage `json:"message"`
}

type BedrockUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type BedrockConverseResponse struct {
	Output     BedrockOutput `json:"output"`
	StopReason string        `json:"stopReason"`
	Usage      BedrockUsage  `json:"usage"`
}

var bedrockStopReasonMap = map[string]canon.StopReason{
	"end_turn":       canon.StopEndTurn,
	"tool_use":       canon.StopToolUse,
	"max_tokens":     canon.StopMaxTokens,
	"content_filtered": canon.StopContentFilter,
	"stop_sequence":  canon.StopEndTurn,
}

func mapBedrockStopReason(sr string) canon.StopReason {
	if v, ok := bedrockStopReasonMap[sr]; ok {
		return v
	}
	return canon.StopEndTurn
}

// ToBedrockConverse implements spec §4.3.3: system messages are extracted
// into the top-level system field; assistant/user content blocks map to
// Converse parts; tool declarations map to toolConfig.tools[].toolSpec.
func ToBedrockConverse(req canon.CanonicalRequest) BedrockConverseRequest {
	out := BedrockConverseRequest{}

	if req.System != "" {
		out.System = append(out.System, BedrockSystemBlock{Text: req.System})
	}

	for _, m := range req.Messages {
		if m.Role == canon.RoleSystem {
			for _, b := range m.Content {
				if b.Kind == canon.BlockText {
					out.System = append(out.System, BedrockSystemBlock{Text: b.Text})
				}
			}
			continue
		}

		bm := BedrockMessage{Role: string(m.Role)}
		for _, b := range m.Content {
			switch b.Kind {
			case canon.BlockText:
				bm.Content = append(bm.Content, BedrockContentBlock{Text: aws.String(b.Text)})
			case canon.BlockToolUse:
				input := b.ToolInput
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				bm.Content = append(bm.Content, BedrockContentBlock{ToolUse: &BedrockToolUse{
					ToolUseID: b.ToolUseID, Name: b.ToolName, Input: input,
				}})
			case canon.BlockToolResult:
				status := "success"
				if b.ToolResultIsError {
					status = "error"
				}
				bm.Content = append(bm.Content, BedrockContentBlock{ToolResult: &BedrockToolResult{
					ToolUseID: b.ToolResultID,
					Content:   []BedrockResultPart{{Text: aws.String(b.ToolResultContent)}},
					Status:    aws.String(status),
				}})
			}
		}
		out.Messages = append(out.Messages, bm)
	}

	if len(req.Tools) > 0 {
		tc := &BedrockToolConfig{}
		for _, t := range req.Tools {
			spec := BedrockToolSpec{Name: t.Name, Description: t.Description}
			spec.InputSchema.JSON = t.InputSchema
			tc.Tools = append(tc.Tools, BedrockTool{ToolSpec: spec})
		}
		out.ToolConfig = tc
	}

	return out
}

// FromBedrockConverse implements the response half of spec §4.3.3.
func FromBedrockConverse(resp BedrockConverseResponse, requestedModel string) (*canon.CanonicalResponse, error) {
	var blocks []canon.ContentBlock
	for _, b := range resp.Output.Message.Content {
		switch {
		case b.Text != nil:
			blocks = append(blocks, canon.TextBlock(*b.Text))
		case b.ToolUse != nil:
			input := b.ToolUse.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, canon.ToolUseBlock(b.ToolUse.ToolUseID, b.ToolUse.Name, input))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, canon.TextBlock(""))
	}

	return &canon.CanonicalResponse{
		Role:       canon.RoleAssistant,
		Model:      requestedModel,
		Content:    blocks,
		StopReason: mapBedrockStopReason(resp.StopReason),
		Usage:      canon.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}
