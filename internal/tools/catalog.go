// Package tools implements the built-in tool catalog and per-provider
// schema conversion/injection logic of spec §4.4.
package tools

import (
	"encoding/json"

	"github.com/ashgate/gateway/internal/canon"
)

func schema(props, required string) json.RawMessage {
	if required == "" {
		return json.RawMessage(`{"type":"object","properties":{` + props + `}}`)
	}
	return json.RawMessage(`{"type":"object","properties":{` + props + `},"required":[` + required + `]}`)
}

// DefaultCatalog is the built-in fixed set of tool schemas in canonical
// form, grounded on the tool vocabulary used across the teacher's agent
// tool definitions (Read, Grep, Glob, Write, Bash, WebFetch).
func DefaultCatalog() []canon.ToolSchema {
	return []canon.ToolSchema{
		{
			Name:        "Read",
			Description: "Read the contents of a file from the local filesystem.",
			InputSchema: schema(`"file_path":{"type":"string"}`, `"file_path"`),
		},
		{
			Name:        "Grep",
			Description: "Search file contents for a regular expression pattern.",
			InputSchema: schema(`"pattern":{"type":"string"},"path":{"type":"string"}`, `"pattern"`),
		},
		{
			Name:        "Glob",
			Description: "Find files matching a glob pattern.",
			InputSchema: schema(`"pattern":{"type":"string"}`, `"pattern"`),
		},
		{
			Name:        "Write",
			Description: "Write content to a file, creating or overwriting it.",
			InputSchema: schema(`"file_path":{"type":"string"},"content":{"type":"string"}`, `"file_path","content"`),
		},
		{
			Name:        "Bash",
			Description: "Execute a shell command.",
			InputSchema: schema(`"command":{"type":"string"}`, `"command"`),
		},
		{
			Name:        "WebFetch",
			Description: "Fetch the contents of a URL.",
			InputSchema: schema(`"url":{"type":"string"}`, `"url"`),
		},
	}
}

// ShouldInject reports whether the catalog should be injected for this
// dispatch: the incoming request carries zero tools AND the provider
// permits injection (all cloud families unconditionally; local families
// controlled by allowLocalInjection), per spec §4.4.
func ShouldInject(req canon.CanonicalRequest, family canon.ProviderFamily, allowLocalInjection bool) bool {
	if len(req.Tools) > 0 {
		return false
	}
	if family.IsLocal() {
		return allowLocalInjection
	}
	return true
}
