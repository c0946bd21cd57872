// Package state implements the scope-keyed KV store, schema registry, and
// migration engine over a pkg/storage.Backend.
package state

import (
	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/core"
)

// ToolUsageStats tracks aggregate invocation counts for an agent's tools.
type ToolUsageStats struct {
	TotalInvocations      int64 `json:"total_invocations"`
	SuccessfulInvocations int64 `json:"successful_invocations"`
	FailedInvocations     int64 `json:"failed_invocations"`
	TotalTokens           int64 `json:"total_tokens"`
}

// AgentState is the mutable body of a PersistentAgentState: conversation
// history, tool usage counters, and arbitrary custom values.
type AgentState struct {
	ConversationHistory []core.ConversationMessage `json:"conversation_history"`
	ToolUsageStats      ToolUsageStats             `json:"tool_usage_stats"`
	Custom              map[string]any             `json:"custom"`
}

// PersistentAgentState is the full durable snapshot of one agent, written
// and read as a single unit under scope://agent/{agent_id}/__state__. It
// round-trips verbatim; conversation messages preserve role ordering.
type PersistentAgentState struct {
	AgentID   string         `json:"agent_id"`
	AgentType string         `json:"agent_type"`
	State     AgentState     `json:"state"`
	Metadata  map[string]any `json:"metadata"`
}

// FieldSchema describes one field of an EnhancedStateSchema.
type FieldSchema struct {
	FieldType    string   `json:"field_type"`
	Required     bool     `json:"required"`
	DefaultValue any      `json:"default_value,omitempty"`
	Validators   []string `json:"validators,omitempty"`
}

// EnhancedStateSchema describes the shape of a custom state blob at a given
// semantic version, used by the migration engine to validate and transform
// entries as they move between versions.
type EnhancedStateSchema struct {
	Version      semver.Version         `json:"version"`
	Fields       map[string]FieldSchema `json:"fields"`
	Dependencies []semver.Version       `json:"dependencies"`
}
