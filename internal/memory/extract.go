package memory

import (
	"regexp"
	"strings"
)

// Candidate is a fragment of assistant text extraction matched, before
// surprise scoring decides whether it is worth storing.
type Candidate struct {
	Type    Type
	Content string
}

var sentenceSplitRe = regexp.MustCompile(`[.!?\n]+`)

// typePatterns is checked in order; the first type whose pattern matches
// a sentence wins. Order favors the more specific commitment-style
// patterns (decision, preference) over the broad fact/entity/relationship
// catch-alls.
var typePatterns = []struct {
	typ     Type
	pattern *regexp.Regexp
}{
	{TypeDecision, regexp.MustCompile(`(?i)\b(let'?s|we'?ll|we will|i'?ll|decided to|going with|we should)\b.*\buse\b`)},
	{TypePreference, regexp.MustCompile(`(?i)\bi\s+(prefer|like|want|always|never)\b`)},
	{TypeRelationship, regexp.MustCompile(`(?i)\b(depends on|is part of|belongs to|owned by|relates to)\b`)},
	{TypeEntity, regexp.MustCompile(`(?i)\b(is called|is named|refers to)\b`)},
	{TypeFact, regexp.MustCompile(`(?i)\b(note that|fyi|remember that|for the record)\b`)},
}

// Extract scans assistant text sentence-by-sentence against the per-type
// pattern table of spec §4.8. A sentence with no pattern match yields no
// candidate.
func Extract(text string) []Candidate {
	var candidates []Candidate

	for _, sentence := range sentenceSplitRe.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		for _, tp := range typePatterns {
			if tp.pattern.MatchString(sentence) {
				candidates = append(candidates, Candidate{Type: tp.typ, Content: sentence})
				break
			}
		}
	}

	return candidates
}
