package core

import "time"

// AgentInput is the payload passed into BaseAgent.Execute. Text may be empty
// only if Parameters carries a "data" side-channel (see ValidateTextOrData).
type AgentInput struct {
	Text       string
	Parameters map[string]any
	Media      []MediaRef
}

// MediaRef is an opaque reference to a non-text input (image, audio, file).
// The core does not interpret media content; it only carries references
// through to the component that understands them.
type MediaRef struct {
	MimeType string
	URI      string
	Data     []byte
}

// HasData reports whether Parameters carries a non-empty "data" entry, which
// §3/§8 scenario S1 treats as an alternative to non-empty Text.
func (in AgentInput) HasData() bool {
	if in.Parameters == nil {
		return false
	}
	v, ok := in.Parameters["data"]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// ValidateTextOrData implements the universal validate_input contract from
// spec.md §4.1: empty text AND absent parameters.data is rejected.
func (in AgentInput) ValidateTextOrData() *Error {
	if in.Text == "" && !in.HasData() {
		return Validation("input text is empty and no parameters.data was supplied", "data")
	}
	return nil
}

// AgentOutput is the result of executing a BaseAgent.
type AgentOutput struct {
	Text     string
	Metadata OutputMetadata
}

// OutputMetadata carries the structured side-channel of an AgentOutput.
type OutputMetadata struct {
	Extra map[string]any

	// TokensUsed, when the component invoked an LLM provider, records total
	// token consumption for this execution (prompt + completion).
	TokensUsed int

	// DurationMS records wall-clock execution time in milliseconds.
	DurationMS int64
}

// MessageRole closes the set of speakers in a ConversationMessage.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one turn in an agent's bounded conversation buffer.
type ConversationMessage struct {
	Role      MessageRole
	Content   string
	Timestamp time.Time
}
