package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/dispatch"
	"github.com/ashgate/gateway/internal/memory"
	"github.com/ashgate/gateway/internal/translate"
)

// ResponsesHandler implements POST /responses: the alternate "Responses"
// input shape, mapped onto the same canonical request the /messages path
// dispatches, per spec §4.3 shim #4 / §6. translate.FromResponsesShape
// only goes as far as the OpenAI-chat intermediate message shape (it
// feeds the outbound OpenAI-family translators too), so the reverse hop
// to canon.CanonicalMessage is a small local conversion living here
// rather than in internal/translate, since no outbound family consumes
// it.
type ResponsesHandler struct {
	Dispatcher *dispatch.Dispatcher
	Memory     *memory.Store
	Logger     *zap.Logger
}

// wireResponsesRequest is the JSON body accepted at POST /responses.
type wireResponsesRequest struct {
	Model       string           `json:"model"`
	Input       json.RawMessage  `json:"input"`
	Tools       []canon.ToolSchema `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

func roleFromWire(r string) canon.Role {
	switch r {
	case "assistant":
		return canon.RoleAssistant
	case "system":
		return canon.RoleSystem
	default:
		return canon.RoleUser
	}
}

// toCanonicalMessages converts the OpenAI-chat intermediate shape
// FromResponsesShape produces into canonical messages: a content string
// becomes one text block, tool_calls become tool_use blocks, and a
// tool_call_id on an otherwise-empty message becomes a tool_result block.
func toCanonicalMessages(msgs []translate.OpenAIMessage) []canon.CanonicalMessage {
	out := make([]canon.CanonicalMessage, 0, len(msgs))
	for _, m := range msgs {
		var blocks []canon.ContentBlock
		if m.ToolCallID != "" {
			blocks = append(blocks, canon.ToolResultBlock(m.ToolCallID, m.Content, false))
		} else {
			if m.Content != "" {
				blocks = append(blocks, canon.TextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, canon.ToolUseBlock(tc.ID, tc.Function.Name, input))
			}
		}
		if len(blocks) == 0 {
			blocks = []canon.ContentBlock{canon.TextBlock("")}
		}
		out = append(out, canon.CanonicalMessage{Role: roleFromWire(m.Role), Content: blocks})
	}
	return out
}

func (h *ResponsesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.Logger) {
		return
	}

	var wire wireResponsesRequest
	if err := DecodeJSONBody(w, r, &wire, h.Logger); err != nil {
		return
	}
	if wire.Model == "" {
		WriteError(w, canon.NewError(canon.ErrInvalidRequest, "model is required"), h.Logger)
		return
	}

	oaiMessages, err := translate.FromResponsesShape(translate.ResponsesRequest{Input: wire.Input})
	if err != nil {
		WriteError(w, err, h.Logger)
		return
	}

	req := canon.CanonicalRequest{
		Model:       wire.Model,
		Messages:    toCanonicalMessages(oaiMessages),
		Tools:       wire.Tools,
		Temperature: wire.Temperature,
		TopP:        wire.TopP,
		MaxTokens:   wire.MaxTokens,
		Stream:      wire.Stream,
		Metadata:    wire.Metadata,
	}

	resp, handle, err := h.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.Logger)
		return
	}

	if handle != nil {
		writeStreamHandle(w, handle, h.Logger)
		return
	}

	if req.Stream {
		writeSyntheticStream(w, resp, h.Logger)
	} else {
		WriteJSON(w, http.StatusOK, resp)
	}

	if h.Memory != nil && resp != nil {
		text := assistantText(resp)
		if text != "" {
			go h.Memory.ExtractAndStore(context.Background(), sessionIDFrom(req), resp.ID, text)
		}
	}
}
