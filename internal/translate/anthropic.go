package translate

import "github.com/ashgate/gateway/internal/canon"

// ToAnthropicNative and FromAnthropicNative are near-identity passthroughs:
// the canonical format is itself Anthropic-Messages-shaped, so this family
// requires no block-level reshaping, only the envelope differences (no
// "routing" field outbound, a generated message id inbound) described in
// spec §4.3's framing of the Anthropic-native family as "canonical" body
// shape in the interfaces table (§6). Header construction (x-api-key,
// anthropic-version) lives in the dispatcher's family table, not here.
func ToAnthropicNative(req canon.CanonicalRequest) canon.CanonicalRequest {
	return req
}

// FromAnthropicNative decodes an upstream Anthropic-shaped response body
// (already unmarshaled into resp) into the outbound CanonicalResponse,
// substituting the caller-requested model per the invariant shared by every
// family translator.
func FromAnthropicNative(resp canon.CanonicalResponse, requestedModel string) (*canon.CanonicalResponse, error) {
	if len(resp.Content) == 0 {
		return nil, canon.NewError(canon.ErrNoChoices, "upstream returned empty content").WithProvider("anthropic-native-family")
	}
	out := resp
	out.Model = requestedModel
	return &out, nil
}
