package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSanitizeStripsHTMLTags(t *testing.T) {
	out := SanitizeFTSQuery("<script>alert(1)</script> hello world")
	assert.NotContains(t, out, "<script>")
}

func TestSanitizeWrapsPlainTextInPhraseMatch(t *testing.T) {
	out := SanitizeFTSQuery("typescript api layer")
	assert.True(t, strings.HasPrefix(out, `"`))
	assert.True(t, strings.HasSuffix(out, `"`))
}

func TestSanitizeLeavesExplicitBooleanQueriesUnwrapped(t *testing.T) {
	out := SanitizeFTSQuery("typescript AND api")
	assert.False(t, strings.HasPrefix(out, `"typescript AND api"`))
}

func TestSanitizeEscapesEmbeddedQuotes(t *testing.T) {
	out := SanitizeFTSQuery(`say "hello"`)
	assert.Contains(t, out, `""`)
}

// TestSanitizeNeverProducesUnbalancedQuotes is the property test of spec
// §8: across random input including every FTS-reserved character, the
// sanitizer must never emit a string FTS5 would choke on. We can't run
// sqlite's own FTS engine here, so the property checked is the syntactic
// invariant that actually causes FTS5 parse errors: quotes must appear in
// balanced pairs, and the result is always non-empty.
func TestSanitizeNeverProducesUnbalancedQuotes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.StringMatching(`[A-Za-z0-9 \^:(){}\[\]\-\*"'<>&|\n\t]{0,200}`).Draw(t, "input")

		out := SanitizeFTSQuery(input)
		assert.NotEmpty(t, out)
		assert.Zero(t, strings.Count(out, `"`)%2, "quotes must be balanced: %q", out)
	})
}
