package canon

// Normalize enforces the invariant in spec §3: every tool_use id referenced
// by a later tool_result must exist in a preceding assistant message;
// orphan tool_result blocks are dropped. Returns a new message slice; the
// input is left untouched.
func Normalize(messages []CanonicalMessage) []CanonicalMessage {
	seen := make(map[string]bool)
	out := make([]CanonicalMessage, 0, len(messages))

	for _, m := range messages {
		kept := make([]ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Kind {
			case BlockToolUse:
				seen[b.ToolUseID] = true
				kept = append(kept, b)
			case BlockToolResult:
				if seen[b.ToolResultID] {
					kept = append(kept, b)
				}
				// orphan tool_result: dropped
			default:
				kept = append(kept, b)
			}
		}
		out = append(out, CanonicalMessage{Role: m.Role, Content: kept})
	}
	return out
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
