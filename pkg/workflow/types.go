// Package workflow implements the Sequential/Parallel/Conditional/Loop
// composition patterns from spec.md §4.7: a Workflow is a BaseAgent whose
// Execute orchestrates Steps and returns a metadata-only WorkflowResult,
// with every step output written through state under the canonical
// `workflow:{exec_id}:...` key conventions rather than passed inline.
//
// Generalized from the teacher's pkg/agent/workflowagent package
// (sequential.go, parallel.go, loop.go) and its legacy workflow/executor.go
// ExecutionContext (results/sharedState/errors/status bag), adapted here to
// write through pkg/state instead of holding results purely in memory.
package workflow

import (
	"strconv"
	"time"

	"github.com/lexlapax/llmspell/pkg/agent"
	"github.com/lexlapax/llmspell/pkg/core"
)

// Kind closes the set of workflow composition patterns.
type Kind string

const (
	KindSequential  Kind = "sequential"
	KindParallel    Kind = "parallel"
	KindConditional Kind = "conditional"
	KindLoop        Kind = "loop"
	KindCustom      Kind = "custom"
)

// Status closes the set of terminal/in-flight workflow statuses.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is one unit of work a workflow orchestrates. Steps wrap an
// agent.BaseAgent (an Agent, Tool, or nested Workflow, since Workflow
// itself implements BaseAgent) under a declared name used to build its
// canonical state key.
type Step struct {
	Name  string
	Agent agent.BaseAgent
	Input core.AgentInput

	// BreakOnError, for Sequential steps, halts the workflow at this step's
	// failure instead of recording it and continuing. Defaults to true,
	// per spec.md §4.7's "break_on_error (default) halts at first failure".
	BreakOnError *bool
}

func (s Step) breakOnError() bool {
	if s.BreakOnError == nil {
		return true
	}
	return *s.BreakOnError
}

// WorkflowResult is the metadata-only result every workflow pattern
// returns, per spec.md §4.7/invariant 13: it never carries payload bytes,
// only the state keys where step outputs were written.
type WorkflowResult struct {
	ExecutionID   string         `json:"execution_id"`
	WorkflowType  Kind           `json:"workflow_type"`
	WorkflowName  string         `json:"workflow_name"`
	Success       bool           `json:"success"`
	Status        Status         `json:"status"`
	Summary       string         `json:"summary"`
	StateKeys     []string       `json:"state_keys"`
	StepsExecuted int            `json:"steps_executed"`
	StepsFailed   int            `json:"steps_failed"`
	StepsSkipped  int            `json:"steps_skipped"`
	Duration      time.Duration  `json:"duration"`
	Error         *core.Error    `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// stepKey renders the canonical step-output state key per spec.md §4.7.
func stepKey(execID, stepName string) string {
	return "workflow:" + execID + ":" + stepName
}

// branchKey renders the canonical parallel-branch state key.
func branchKey(execID, branch, step string) string {
	return "workflow:" + execID + ":branch_" + branch + ":" + step
}

// iterationKey renders the canonical loop-iteration state key.
func iterationKey(execID string, n int, step string) string {
	return "workflow:" + execID + ":iteration_" + strconv.Itoa(n) + ":" + step
}

// newAgentOutputs builds the {agent_id -> output} mapping
// WorkflowResult.Metadata["agent_outputs"] carries, per spec.md §4.7.
func newAgentOutputs() map[string]any { return map[string]any{} }
