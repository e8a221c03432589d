package translate

// CompactConsecutiveSameRole implements the consecutive-same-role
// compaction workaround of spec §4.3/§9 for local-provider families. The
// Open Question in §9 is resolved as **concatenation** (merge content with
// a single newline separator), not drop, since dropping silently loses
// text and is flagged as a latent bug.
func CompactConsecutiveSameRole(messages []OpenAIMessage) []OpenAIMessage {
	if len(messages) == 0 {
		return messages
	}
	out := make([]OpenAIMessage, 0, len(messages))
	out = append(out, messages[0])

	for _, m := range messages[1:] {
		last := &out[len(out)-1]
		if m.Role == last.Role && m.Role != "tool" {
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
