package workflow

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/agent"
	"github.com/lexlapax/llmspell/pkg/core"
)

// Tracer, if set, wraps each workflow step execution in a span (one of the
// "hook and workflow execution boundaries" pkg/trace instruments). Left nil
// by default so workflows never pay for tracing unless cmd/llmspell wires a
// provider in; a package-level var rather than a per-workflow field since
// every pattern (Sequential/Parallel/Conditional/Loop) shares the same
// process-wide tracer the way they share the process-wide HookExecutor and
// EventBus singletons spec.md §4.9 describes.
var Tracer trace.Tracer

// traceStep starts a span for one step execution, returning a no-op end
// function when Tracer is nil.
func traceStep(ec core.ExecutionContext, kind Kind, execID, stepName string) func() {
	if Tracer == nil {
		return func() {}
	}
	_, span := Tracer.Start(ec.Context, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.kind", string(kind)),
			attribute.String("workflow.execution_id", execID),
			attribute.String("workflow.step", stepName),
		),
	)
	return func() { span.End() }
}

// defaultWorkflowVersion is used when a workflow pattern is constructed
// without an explicit component version.
var defaultWorkflowVersion = semver.New(0, 1, 0)

// Workflow refines agent.BaseAgent: a Workflow implements BaseAgent but
// returns a WorkflowResult serialized into AgentOutput.Text, per spec.md
// §4.7. Run is the lower-level entry point tests and nested workflows use
// to get the structured WorkflowResult directly, without a JSON round trip.
type Workflow interface {
	agent.BaseAgent
	Run(ec core.ExecutionContext, execID string) WorkflowResult
}

var _ agent.BaseAgent = (*Sequential)(nil)
var _ agent.BaseAgent = (*Parallel)(nil)
var _ agent.BaseAgent = (*Conditional)(nil)
var _ agent.BaseAgent = (*Loop)(nil)

// Base provides the common BaseAgent surface every workflow pattern shares:
// identity, input validation (workflows accept any input shape; steps carry
// their own), and error reporting. Grounded on the teacher's BaseExecutor
// (workflow/executor.go), which likewise factors name/type/capabilities out
// of each concrete executor.
type Base struct {
	metadata core.ComponentMetadata
	kind     Kind
}

// NewBase builds the shared identity for a workflow pattern.
func NewBase(name, description string, kind Kind) Base {
	return Base{
		metadata: core.NewComponentMetadata(core.ComponentTypeWorkflow, name, description, defaultWorkflowVersion),
		kind:     kind,
	}
}

func (b *Base) Metadata() core.ComponentMetadata { return b.metadata }

func (b *Base) ValidateInput(core.AgentInput) *core.Error { return nil }

func (b *Base) HandleError(ec core.ExecutionContext, err *core.Error) core.AgentOutput {
	return core.AgentOutput{Metadata: core.OutputMetadata{Extra: map[string]any{"error": err.Error()}}}
}

// runExecID resolves the execution id from input.Parameters["execution_id"],
// falling back to a freshly minted one.
func runExecID(input core.AgentInput) string {
	if input.Parameters != nil {
		if v, ok := input.Parameters["execution_id"].(string); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// runAndSerialize drives runFn and serializes its WorkflowResult into an
// AgentOutput.Text, per spec.md §4.7. A catastrophic serialization failure
// (never expected for this result shape) surfaces as a Workflow error;
// business-level step failures remain embedded in WorkflowResult.Success/
// Error and never escalate to the BaseAgent.Execute error return.
func runAndSerialize(ec core.ExecutionContext, input core.AgentInput, runFn func(core.ExecutionContext, string) WorkflowResult) (core.AgentOutput, *core.Error) {
	execID := runExecID(input)
	result := runFn(ec, execID)

	payload, jerr := json.Marshal(result)
	if jerr != nil {
		return core.AgentOutput{}, core.Workflow("", "failed to serialize workflow result", jerr)
	}

	return core.AgentOutput{
		Text: string(payload),
		Metadata: core.OutputMetadata{
			Extra: map[string]any{
				"success":        result.Success,
				"execution_id":   result.ExecutionID,
				"steps_executed": result.StepsExecuted,
				"steps_failed":   result.StepsFailed,
			},
		},
	}, nil
}
