// Package agent defines the BaseAgent/Tool/Agent contract surface from
// spec.md §4.1 and the LLM-backed agent implementation from §4.6. Grounded
// on the teacher's pkg/model.LLM interface (single entry point, provider
// tag, config struct) generalized into the spec's ProviderInstance trait,
// and on pkg/memory/buffer_window.go's bounded-window conversation
// strategy.
package agent

import (
	"github.com/lexlapax/llmspell/pkg/core"
)

// BaseAgent is the capability set every executable entity implements,
// per spec.md §4.1.
type BaseAgent interface {
	// Metadata returns the component's identity. Infallible.
	Metadata() core.ComponentMetadata

	// Execute runs the component against input under ec. Auto-initializes
	// the lifecycle state machine if currently Uninitialized.
	Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error)

	// ValidateInput rejects input before any side effect is performed.
	ValidateInput(input core.AgentInput) *core.Error

	// HandleError is the recovery path for a failed Execute; it may drive
	// the lifecycle to Error for Component/Provider faults.
	HandleError(ec core.ExecutionContext, err *core.Error) core.AgentOutput
}

// ToolCategory closes the set of tool categories.
type ToolCategory string

const (
	CategoryFileSystem ToolCategory = "filesystem"
	CategoryNetwork    ToolCategory = "network"
	CategoryData       ToolCategory = "data"
	CategorySystem     ToolCategory = "system"
	CategoryCustom     ToolCategory = "custom"
)

// SecurityLevel closes the set of tool privilege tiers from spec.md §4.1.
type SecurityLevel string

const (
	SecuritySafe       SecurityLevel = "safe"
	SecurityRestricted SecurityLevel = "restricted"
	SecurityPrivileged SecurityLevel = "privileged"
)

// ParameterDef describes one parameter of a ToolSchema.
type ParameterDef struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
}

// ToolSchema fully describes a Tool's invocation contract.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  []ParameterDef
	Returns     string
}

// Tool refines BaseAgent with the schema/category/security surface from
// spec.md §4.1. Individual tool implementations (file I/O, HTTP, archives)
// are out of scope for the core; only the contract lives here.
type Tool interface {
	BaseAgent
	Category() ToolCategory
	SecurityLevel() SecurityLevel
	Schema() ToolSchema
}

// Config describes an Agent's tunable generation parameters, per spec.md
// §4.1's "config accessor".
type Config struct {
	MaxConversationLength int
	SystemPrompt          string
	Temperature           float64
	MaxTokens             int
}

// Agent refines BaseAgent with conversation management, per spec.md §4.1.
type Agent interface {
	BaseAgent
	GetConversation() []core.ConversationMessage
	AddMessage(msg core.ConversationMessage)
	ClearConversation()
	Config() Config
}
