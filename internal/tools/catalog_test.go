package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashgate/gateway/internal/canon"
)

func TestShouldInjectCloudUnconditional(t *testing.T) {
	req := canon.CanonicalRequest{}
	assert.True(t, ShouldInject(req, canon.FamilyOpenAIChat, false))
}

func TestShouldInjectLocalGatedByToggle(t *testing.T) {
	req := canon.CanonicalRequest{}
	assert.False(t, ShouldInject(req, canon.FamilyOllamaNative, false))
	assert.True(t, ShouldInject(req, canon.FamilyOllamaNative, true))
}

func TestShouldNotInjectWhenToolsPresent(t *testing.T) {
	req := canon.CanonicalRequest{Tools: []canon.ToolSchema{{Name: "Read"}}}
	assert.False(t, ShouldInject(req, canon.FamilyOpenAIChat, false))
}

func TestDefaultCatalogNonEmpty(t *testing.T) {
	assert.NotEmpty(t, DefaultCatalog())
}
