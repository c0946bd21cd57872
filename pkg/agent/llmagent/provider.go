// Package llmagent implements the LLM-backed Agent from spec.md §4.6:
// the provider call, bounded conversation buffer, conversation-aware input
// construction, and lifecycle-integrated pause/resume/stop/terminate.
// Generalized from the teacher's pkg/model.LLM interface (a single
// GenerateContent entry point tagged with a Provider identifier) into the
// spec's opaque ProviderInstance trait (`Complete(AgentInput) AgentOutput`).
package llmagent

import (
	"github.com/lexlapax/llmspell/pkg/core"
)

// ProviderInstance is the opaque handle spec.md §4.6 names: "seen as a
// ProviderInstance trait" by the core, with the concrete LLM provider
// adapters (anthropic/gemini/ollama/openai, per the teacher's pkg/model
// subpackages) living entirely outside this module's scope.
type ProviderInstance interface {
	Name() string
	Complete(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, error)
}
