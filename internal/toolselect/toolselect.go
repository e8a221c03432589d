// Package toolselect implements Smart Tool Selection (C10): a
// classification-to-tool-names map, aggressive/conservative mode
// modifiers, per-provider hard caps, and a token-budget guard, per spec
// §4.10. No direct teacher analogue exists (the teacher's tool systems
// have no complexity-driven pruning step), so this follows the general
// catalog/registry shape used by internal/tools.
package toolselect

import (
	"regexp"

	"github.com/ashgate/gateway/internal/canon"
)

// Classification is the coarse task-type bucket Smart Selection keys its
// tool-names map on.
type Classification string

const (
	Conversational Classification = "conversational"
	FileReading    Classification = "file_reading"
	CodeWriting    Classification = "code_writing"
	ComplexTask    Classification = "complex_task"
	General        Classification = "general"
)

var classificationPatterns = []struct {
	class   Classification
	pattern *regexp.Regexp
}{
	{ComplexTask, regexp.MustCompile(`(?i)\b(refactor|architect|migrat|entire\s+codebase|from\s+scratch)\b`)},
	{CodeWriting, regexp.MustCompile(`(?i)\b(write|create|implement|edit|modify)\b.*\b(file|function|script|code)\b`)},
	{FileReading, regexp.MustCompile(`(?i)\b(read|show|view|find|search|grep|look\s+at)\b`)},
	{Conversational, regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|how are you)\b`)},
}

// Classify derives a Classification from the last user turn's text, using
// the same pattern-family idiom as internal/complexity.
func Classify(lastUserText string) Classification {
	for _, p := range classificationPatterns {
		if p.pattern.MatchString(lastUserText) {
			return p.class
		}
	}
	return General
}

// classificationToolNames is the fixed map of spec §4.10's examples.
var classificationToolNames = map[Classification][]string{
	Conversational: {},
	FileReading:    {"Read", "Grep", "Glob"},
	CodeWriting:    {"Read", "Grep", "Glob", "Write"},
	ComplexTask:    {"Read", "Grep", "Glob", "Write", "Bash", "WebFetch"},
	General:        {"Read", "Grep"},
}

const tokensPerTool = 175

// Select filters catalog down to the tools appropriate for classification,
// applying mode modifiers, a per-family hard cap, and the token-budget
// guard, per spec §4.10. callerTools, if non-empty, are returned
// unmodified — Smart Selection only prunes the injected built-in catalog,
// never a caller-declared tool list.
func Select(classification Classification, callerTools []canon.ToolSchema, catalog []canon.ToolSchema, mode canon.AnalyzerMode, family canon.ProviderFamily, tokenBudget int) []canon.ToolSchema {
	if len(callerTools) > 0 {
		return callerTools
	}

	wanted := make(map[string]bool)
	for _, name := range classificationToolNames[classification] {
		wanted[name] = true
	}

	var selected []canon.ToolSchema
	for _, t := range catalog {
		if wanted[t.Name] {
			selected = append(selected, t)
		}
	}

	switch mode {
	case canon.ModeAggressive:
		selected = trimAmbiguous(classification, selected)
	case canon.ModeConservative:
		selected = addSafetyTool(selected, catalog)
	}

	if cap := hardCap(family); cap > 0 && len(selected) > cap {
		selected = selected[:cap]
	}

	if tokenBudget > 0 {
		selected = applyTokenBudget(selected, tokenBudget)
	}

	return selected
}

// trimAmbiguous drops WebFetch and Bash for classifications other than
// ComplexTask: aggressive mode favors narrower, cheaper tool sets per spec
// §4.10 ("aggressive trims ambiguous selections").
func trimAmbiguous(classification Classification, tools []canon.ToolSchema) []canon.ToolSchema {
	if classification == ComplexTask {
		return tools
	}
	out := tools[:0:0]
	for _, t := range tools {
		if t.Name == "WebFetch" || t.Name == "Bash" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// addSafetyTool ensures Read is present even when the classification map
// didn't select it, per spec §4.10 ("conservative adds one safety tool").
func addSafetyTool(selected []canon.ToolSchema, catalog []canon.ToolSchema) []canon.ToolSchema {
	for _, t := range selected {
		if t.Name == "Read" {
			return selected
		}
	}
	for _, t := range catalog {
		if t.Name == "Read" {
			return append(selected, t)
		}
	}
	return selected
}

func hardCap(family canon.ProviderFamily) int {
	if family == canon.FamilyOllamaNative {
		return 8
	}
	return 0
}

// applyTokenBudget removes trailing tools once the running token estimate
// (≈175 per tool) would exceed budget.
func applyTokenBudget(tools []canon.ToolSchema, budget int) []canon.ToolSchema {
	max := budget / tokensPerTool
	if max < 0 {
		max = 0
	}
	if len(tools) > max {
		return tools[:max]
	}
	return tools
}
