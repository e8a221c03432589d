package toolselect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/tools"
)

func TestClassifyConversational(t *testing.T) {
	assert.Equal(t, Conversational, Classify("hello there!"))
}

func TestClassifyFileReading(t *testing.T) {
	assert.Equal(t, FileReading, Classify("can you read this file for me"))
}

func TestClassifyComplexTask(t *testing.T) {
	assert.Equal(t, ComplexTask, Classify("refactor the entire codebase"))
}

func TestSelectConversationalYieldsEmpty(t *testing.T) {
	out := Select(Conversational, nil, tools.DefaultCatalog(), canon.ModeHeuristic, canon.FamilyOpenAIChat, 0)
	assert.Empty(t, out)
}

func TestSelectCallerToolsPassThroughUnmodified(t *testing.T) {
	callerTools := []canon.ToolSchema{{Name: "CustomTool"}}
	out := Select(ComplexTask, callerTools, tools.DefaultCatalog(), canon.ModeHeuristic, canon.FamilyOpenAIChat, 0)
	assert.Equal(t, callerTools, out)
}

func TestSelectAggressiveTrimsBashAndWebFetchForNonComplex(t *testing.T) {
	out := Select(CodeWriting, nil, tools.DefaultCatalog(), canon.ModeAggressive, canon.FamilyOpenAIChat, 0)
	for _, tl := range out {
		assert.NotEqual(t, "Bash", tl.Name)
		assert.NotEqual(t, "WebFetch", tl.Name)
	}
}

func TestSelectConservativeAddsReadSafetyTool(t *testing.T) {
	out := Select(Conversational, nil, tools.DefaultCatalog(), canon.ModeConservative, canon.FamilyOpenAIChat, 0)
	found := false
	for _, tl := range out {
		if tl.Name == "Read" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSelectOllamaHardCap(t *testing.T) {
	bigCatalog := make([]canon.ToolSchema, 0, 20)
	for i := 0; i < 20; i++ {
		bigCatalog = append(bigCatalog, canon.ToolSchema{Name: "Read"})
	}
	out := Select(ComplexTask, nil, bigCatalog, canon.ModeHeuristic, canon.FamilyOllamaNative, 0)
	assert.LessOrEqual(t, len(out), 8)
}

func TestSelectTokenBudgetGuardTrims(t *testing.T) {
	catalog := tools.DefaultCatalog()
	out := Select(ComplexTask, nil, catalog, canon.ModeHeuristic, canon.FamilyOpenAIChat, 200)
	assert.LessOrEqual(t, len(out), 1)
}
