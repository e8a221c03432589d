// Package dispatch implements the Dispatcher (C7): the per-request
// lifecycle that resolves a provider via C5/C6, translates with C3/C4,
// executes under the C1 breaker/retry policy over the C2 pool, and applies
// the single-shot fallback rule of spec §4.7. Grounded on the teacher's
// llm.ResilientProvider decorator (breaker-wraps-retry-wraps-call), but
// generalized from one fixed provider implementation to a family table
// keyed by canon.ProviderFamily.
package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/tools"
	"github.com/ashgate/gateway/internal/translate"
)

// familyAdapter bundles the four per-family behaviors spec §9 calls out as
// the minimal capability set (translate_request, translate_response,
// build_headers, endpoint_url) instead of an interface hierarchy: each
// family is a value, not a type, since none of them carry behavior beyond
// these four pure functions.
type familyAdapter struct {
	endpointURL   func(d canon.ProviderDescriptor) string
	buildHeaders  func(d canon.ProviderDescriptor) http.Header
	translateReq  func(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error)
	translateResp func(body []byte, requestedModel string) (*canon.CanonicalResponse, error)
}

func bearerOrAPIKeyHeaders(d canon.ProviderDescriptor) http.Header {
	h := http.Header{"Content-Type": []string{"application/json"}}
	if d.APIKey != "" {
		h.Set("Authorization", "Bearer "+d.APIKey)
	}
	return h
}

func openAIChatRequestBody(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error) {
	messages := translate.ToOpenAIMessages(canon.Normalize(req.Messages))
	if req.System != "" {
		messages = append([]translate.OpenAIMessage{{Role: "system", Content: req.System}}, messages...)
	}
	body := translate.OpenAIRequest{
		Model:       d.Model,
		Messages:    messages,
		Tools:       translate.ToOpenAITools(withTools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	return json.Marshal(body)
}

func openAIChatResponse(body []byte, requestedModel string) (*canon.CanonicalResponse, error) {
	var resp translate.OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, canon.NewError(canon.ErrNoChoices, "malformed openai-chat response: "+err.Error())
	}
	return translate.FromOpenAIResponse(resp, requestedModel)
}

var openAIChatFamily = familyAdapter{
	endpointURL:  func(d canon.ProviderDescriptor) string { return d.Endpoint + "/v1/chat/completions" },
	buildHeaders: bearerOrAPIKeyHeaders,
	translateReq: openAIChatRequestBody,
	translateResp: openAIChatResponse,
}

// ollamaNativeFamily has no auth header and uses /api/chat, a distinct
// wire shape enforcing mandatory consecutive-same-role compaction.
var ollamaNativeFamily = familyAdapter{
	endpointURL: func(d canon.ProviderDescriptor) string { return d.Endpoint + "/api/chat" },
	buildHeaders: func(d canon.ProviderDescriptor) http.Header {
		return http.Header{"Content-Type": []string{"application/json"}}
	},
	translateReq: func(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error) {
		messages := translate.ToOllamaMessages(canon.Normalize(req.Messages))
		if req.System != "" {
			messages = append([]translate.OllamaMessage{{Role: "system", Content: req.System}}, messages...)
		}
		body := translate.OllamaRequest{
			Model:    d.Model,
			Messages: messages,
			Tools:    translate.ToOllamaTools(withTools),
			Stream:   req.Stream,
		}
		return json.Marshal(body)
	},
	translateResp: func(body []byte, requestedModel string) (*canon.CanonicalResponse, error) {
		var resp translate.OllamaResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, canon.NewError(canon.ErrNoChoices, "malformed ollama-native response: "+err.Error())
		}
		return translate.FromOllamaResponse(resp, requestedModel)
	},
}

// anthropicNativeFamily speaks the canonical shape directly (x-api-key +
// anthropic-version auth, per spec §6).
var anthropicNativeFamily = familyAdapter{
	endpointURL: func(d canon.ProviderDescriptor) string { return d.Endpoint },
	buildHeaders: func(d canon.ProviderDescriptor) http.Header {
		return http.Header{
			"Content-Type":      []string{"application/json"},
			"x-api-key":         []string{d.APIKey},
			"anthropic-version": []string{"2023-06-01"},
		}
	},
	translateReq: func(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error) {
		out := translate.ToAnthropicNative(req)
		out.Model = d.Model
		out.Tools = withTools
		return json.Marshal(out)
	},
	translateResp: func(body []byte, requestedModel string) (*canon.CanonicalResponse, error) {
		var resp canon.CanonicalResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, canon.NewError(canon.ErrNoChoices, "malformed anthropic-native response: "+err.Error())
		}
		return translate.FromAnthropicNative(resp, requestedModel)
	},
}

// bedrockConverseFamily uses Bearer auth per spec §6 ("API-key style, not
// SigV4" — this gateway never constructs a real SigV4-signed request).
var bedrockConverseFamily = familyAdapter{
	endpointURL: func(d canon.ProviderDescriptor) string {
		return fmt.Sprintf("%s/model/%s/converse", d.Endpoint, d.Model)
	},
	buildHeaders: bearerOrAPIKeyHeaders,
	translateReq: func(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error) {
		r := req
		r.Tools = withTools
		out := translate.ToBedrockConverse(r)
		return json.Marshal(out)
	},
	translateResp: func(body []byte, requestedModel string) (*canon.CanonicalResponse, error) {
		var resp translate.BedrockConverseResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, canon.NewError(canon.ErrNoChoices, "malformed bedrock converse response: "+err.Error())
		}
		return translate.FromBedrockConverse(resp, requestedModel)
	},
}

// azureResponsesFamily reuses the chat-completions wire shape but with
// max_completion_tokens in place of max_tokens, and api-key or Bearer auth
// depending on host, per spec §6.
var azureResponsesFamily = familyAdapter{
	endpointURL: func(d canon.ProviderDescriptor) string {
		return d.Endpoint + "/openai/responses?api-version=2024-08-01-preview"
	},
	buildHeaders: func(d canon.ProviderDescriptor) http.Header {
		h := http.Header{"Content-Type": []string{"application/json"}}
		if d.APIKey != "" {
			if strings.Contains(d.Endpoint, "services.ai.azure.com") {
				h.Set("Authorization", "Bearer "+d.APIKey)
			} else {
				h.Set("api-key", d.APIKey)
			}
		}
		return h
	},
	translateReq: func(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error) {
		messages := translate.ToOpenAIMessages(canon.Normalize(req.Messages))
		if req.System != "" {
			messages = append([]translate.OpenAIMessage{{Role: "system", Content: req.System}}, messages...)
		}
		raw := struct {
			Model               string                    `json:"model"`
			Messages            []translate.OpenAIMessage `json:"messages"`
			Tools               []translate.OpenAITool    `json:"tools,omitempty"`
			MaxCompletionTokens int                       `json:"max_completion_tokens,omitempty"`
			Stream              bool                      `json:"stream,omitempty"`
		}{
			Model:               d.Deployment,
			Messages:            messages,
			Tools:               translate.ToOpenAITools(withTools),
			MaxCompletionTokens: req.MaxTokens,
			Stream:              req.Stream,
		}
		return json.Marshal(raw)
	},
	translateResp: openAIChatResponse,
}

// tinyFishSSEFamily drives the browser-automation endpoint: request body
// is {url, goal, browserProfile, proxy?}, sourced from the canonical
// request's Metadata map (this family carries no message-level
// translation since it is not a chat completion at all).
var tinyFishSSEFamily = familyAdapter{
	endpointURL:  func(d canon.ProviderDescriptor) string { return d.Endpoint },
	buildHeaders: func(d canon.ProviderDescriptor) http.Header {
		return http.Header{"Content-Type": []string{"application/json"}, "X-API-Key": []string{d.APIKey}}
	},
	translateReq: func(d canon.ProviderDescriptor, req canon.CanonicalRequest, withTools []canon.ToolSchema) ([]byte, error) {
		body := map[string]any{}
		for _, k := range []string{"url", "goal", "browserProfile", "proxy"} {
			if v, ok := req.Metadata[k]; ok {
				body[k] = v
			}
		}
		if _, ok := body["url"]; !ok {
			return nil, canon.NewError(canon.ErrInvalidRequest, "tinyfish-sse requires metadata.url")
		}
		if _, ok := body["goal"]; !ok {
			return nil, canon.NewError(canon.ErrInvalidRequest, "tinyfish-sse requires metadata.goal")
		}
		return json.Marshal(body)
	},
	// Dispatch returns a streaming handle for tinyfish-sse only when the
	// request sets stream=true; a non-streaming request ends here with a
	// config error.
	translateResp: func(body []byte, requestedModel string) (*canon.CanonicalResponse, error) {
		return nil, canon.NewError(canon.ErrConfig, "tinyfish-sse does not support non-streaming dispatch")
	},
}

var families = map[canon.ProviderFamily]familyAdapter{
	canon.FamilyOpenAIChat:      openAIChatFamily,
	canon.FamilyLlamaCppOpenAI:  openAIChatFamily,
	canon.FamilyLMStudioOpenAI:  openAIChatFamily,
	canon.FamilyAnthropicNative: anthropicNativeFamily,
	canon.FamilyBedrockConverse: bedrockConverseFamily,
	canon.FamilyOllamaNative:    ollamaNativeFamily,
	canon.FamilyAzureResponses:  azureResponsesFamily,
	canon.FamilyTinyFishSSE:     tinyFishSSEFamily,
}

// streamingCapable reports which families the translator can emit SSE
// canonical frames for. Only tinyfish-sse, whose upstream is itself SSE,
// qualifies; every other family is dispatched non-streaming even when the
// request sets stream=true.
func streamingCapable(f canon.ProviderFamily) bool {
	return f == canon.FamilyTinyFishSSE
}

func resolveTools(req canon.CanonicalRequest, family canon.ProviderFamily, allowLocalInjection bool) []canon.ToolSchema {
	if tools.ShouldInject(req, family, allowLocalInjection) {
		return tools.DefaultCatalog()
	}
	return req.Tools
}
