// Package complexity implements the request complexity analyzer (C5):
// five subscores, force-local/force-cloud overrides, and mode-dependent
// thresholds, per spec §4.5.
package complexity

import (
	"context"
	"regexp"
	"strings"

	"github.com/ashgate/gateway/internal/canon"
)

// Recommendation is the analyzer's local-vs-cloud verdict.
type Recommendation string

const (
	RecommendLocal Recommendation = "local"
	RecommendCloud Recommendation = "cloud"
)

// Breakdown is the per-subscore detail attached to a Result.
type Breakdown struct {
	Token          int
	Tool           int
	TaskType       int
	CodeComplexity int
	Reasoning      int
	ConversationBonus int
	EmbeddingAdjustment int
}

// Result is the analyzer's full output; the Router is the sole consumer of
// Recommendation.
type Result struct {
	Score          int
	Breakdown      Breakdown
	Mode           canon.AnalyzerMode
	Threshold      int
	Recommendation Recommendation
	Forced         bool
}

// Embedder is the optional Phase-4 collaborator computing a [-10,+10]
// adjustment from embedding cosine similarity. Embedding failures must
// silently return (0, false) so the analyzer still functions with
// embeddings disabled (the default).
type Embedder interface {
	Adjustment(ctx context.Context, text string) (adjustment int, ok bool)
}

// thresholds maps mode to the local-vs-cloud score threshold of spec §4.5.
var thresholds = map[canon.AnalyzerMode]int{
	canon.ModeAggressive:   60,
	canon.ModeHeuristic:    40,
	canon.ModeConservative: 25,
}

func tokenScore(estimatedTokens int) int {
	switch {
	case estimatedTokens >= 8000:
		return 20
	case estimatedTokens >= 4000:
		return 16
	case estimatedTokens >= 2000:
		return 12
	case estimatedTokens >= 1000:
		return 8
	case estimatedTokens >= 500:
		return 4
	default:
		return 0
	}
}

func toolScore(toolCount int) int {
	switch {
	case toolCount >= 15:
		return 20
	case toolCount >= 10:
		return 16
	case toolCount >= 6:
		return 12
	case toolCount >= 3:
		return 8
	case toolCount >= 1:
		return 4
	default:
		return 0
	}
}

// estimateTokens applies spec §4.5's literal heuristic: 4 chars ≈ 1 token.
func estimateTokens(text string) int {
	return len(text) / 4
}

type patternFamily struct {
	name    string
	pattern *regexp.Regexp
	points  int
}

// taskTypeFamilies' points are additive, not a single best-match pick (see
// sumTaskTypeScore): a request naming more than one of these task types
// (e.g. an entire-codebase refactor) is more complex than either alone, so
// its score must reflect both matches, not just the larger one.
var taskTypeFamilies = []patternFamily{
	{"entire_codebase", regexp.MustCompile(`(?i)\b(entire|whole|full)\s+(codebase|project|repo(sitory)?)\b`), 50},
	{"from_scratch", regexp.MustCompile(`(?i)\bfrom\s+scratch\b`), 44},
	{"new_implementation", regexp.MustCompile(`(?i)\b(implement|build|create)\s+(a\s+)?new\b`), 36},
	{"refactoring", regexp.MustCompile(`(?i)\brefactor(ing)?\b`), 30},
	{"technical", regexp.MustCompile(`(?i)\b(architecture|algorithm|concurrency|distributed)\b`), 24},
	{"general", regexp.MustCompile(`(?i)\bhow\s+(do|does|can)\b`), 16},
	{"yes_no", regexp.MustCompile(`(?i)^\s*(is|are|does|do|can|will)\b.*\?\s*$`), 6},
	{"simple_question", regexp.MustCompile(`(?i)^\s*what\s+is\b`), 4},
	{"greeting", regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you)\b`), 0},
}

var forceLocalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey)\s*[!.]?\s*$`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank you|ok|okay|got it)\s*[!.]?\s*$`),
}

var forceCloudPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsecurity\s+audit\b`),
	regexp.MustCompile(`(?i)\barchitecture\s+review\b`),
	regexp.MustCompile(`(?i)\bproduction\s+incident\b`),
}

var codeComplexityFamilies = []patternFamily{
	{"multi_file", regexp.MustCompile(`(?i)\bmultiple\s+files\b|\bacross\s+files\b`), 4},
	{"architecture", regexp.MustCompile(`(?i)\barchitecture\b|\bdesign\s+pattern\b`), 4},
	{"concurrency", regexp.MustCompile(`(?i)\bconcurren(cy|t)\b|\bgoroutine\b|\brace\s+condition\b`), 4},
	{"security", regexp.MustCompile(`(?i)\bsecurity\b|\bvulnerabilit(y|ies)\b|\bauth\b`), 4},
	{"testing", regexp.MustCompile(`(?i)\btest(ing|s)?\b|\bcoverage\b`), 4},
	{"performance", regexp.MustCompile(`(?i)\bperformance\b|\boptimi[sz]e\b|\blatency\b`), 4},
	{"database", regexp.MustCompile(`(?i)\bdatabase\b|\bsql\b|\bquery\b|\bmigration\b`), 4},
}

var reasoningFamilies = []patternFamily{
	{"step_by_step", regexp.MustCompile(`(?i)\bstep[\s-]by[\s-]step\b`), 5},
	{"tradeoffs", regexp.MustCompile(`(?i)\btrade[\s-]?offs?\b|\bpros\s+and\s+cons\b`), 4},
	{"analysis", regexp.MustCompile(`(?i)\banaly[sz]e\b|\banalysis\b`), 3},
	{"planning", regexp.MustCompile(`(?i)\bplan\b|\bapproach\b`), 2},
	{"edge_cases", regexp.MustCompile(`(?i)\bedge\s+cases?\b`), 3},
}

func sumCapped(text string, families []patternFamily, cap int) int {
	total := 0
	for _, f := range families {
		if f.pattern.MatchString(text) {
			total += f.points
		}
	}
	if total > cap {
		total = cap
	}
	return total
}

func sumTaskTypeScore(text string) int {
	total := 0
	for _, f := range taskTypeFamilies {
		if f.pattern.MatchString(text) {
			total += f.points
		}
	}
	return total
}

// Analyze scores req per spec §4.5. mode selects the local-vs-cloud
// threshold; embedder may be nil (embeddings disabled).
func Analyze(ctx context.Context, req canon.CanonicalRequest, mode canon.AnalyzerMode, embedder Embedder) Result {
	lastUserText := lastUserMessageText(req.Messages)

	for _, p := range forceLocalPatterns {
		if p.MatchString(lastUserText) {
			return Result{Mode: mode, Recommendation: RecommendLocal, Forced: true}
		}
	}
	for _, p := range forceCloudPatterns {
		if p.MatchString(lastUserText) {
			return Result{Mode: mode, Recommendation: RecommendCloud, Forced: true}
		}
	}

	bd := Breakdown{
		Token:          tokenScore(estimateTokens(lastUserText)),
		Tool:           toolScore(len(req.Tools)),
		TaskType:       sumTaskTypeScore(lastUserText),
		CodeComplexity: sumCapped(lastUserText, codeComplexityFamilies, 20),
		Reasoning:      sumCapped(lastUserText, reasoningFamilies, 15),
	}

	if n := len(req.Messages); n > 2 {
		bonus := (n - 2) / 2
		if bonus > 5 {
			bonus = 5
		}
		bd.ConversationBonus = bonus
	}

	total := bd.Token + bd.Tool + bd.TaskType + bd.CodeComplexity + bd.Reasoning + bd.ConversationBonus

	if embedder != nil {
		if adj, ok := embedder.Adjustment(ctx, lastUserText); ok {
			bd.EmbeddingAdjustment = adj
			total += adj
		}
	}

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	threshold, ok := thresholds[mode]
	if !ok {
		threshold = thresholds[canon.ModeHeuristic]
		mode = canon.ModeHeuristic
	}

	rec := RecommendCloud
	if total < threshold {
		rec = RecommendLocal
	}

	return Result{Score: total, Breakdown: bd, Mode: mode, Threshold: threshold, Recommendation: rec}
}

func lastUserMessageText(messages []canon.CanonicalMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != canon.RoleUser {
			continue
		}
		var texts []string
		for _, b := range messages[i].Content {
			if b.Kind == canon.BlockText {
				texts = append(texts, b.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}
