package workflow

import (
	"time"

	"github.com/lexlapax/llmspell/pkg/core"
)

// ConditionalBranch pairs a guard Condition with the steps to run when it
// is the first branch (in declaration order) whose condition evaluates
// true.
type ConditionalBranch struct {
	Name      string
	Condition Condition
	Steps     []Step
}

// Conditional executes exactly one branch: the first whose Condition
// evaluates true, else Else (if set). Generalizes the teacher's legacy
// workflow/executors.go CanHandle/executor-selection idea — which picks one
// of several registered executors by a boolean predicate — into the
// spec's richer composable Condition expression language (absent from the
// teacher entirely, since it has no conditional executor of its own).
type Conditional struct {
	Base
	branches []ConditionalBranch
	elseStep []Step
}

// NewConditional builds a Conditional workflow. elseSteps may be nil.
func NewConditional(name, description string, branches []ConditionalBranch, elseSteps []Step) *Conditional {
	return &Conditional{Base: NewBase(name, description, KindConditional), branches: branches, elseStep: elseSteps}
}

// Execute implements agent.BaseAgent.
func (c *Conditional) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	return runAndSerialize(ec, input, func(ec core.ExecutionContext, execID string) WorkflowResult {
		return c.run(ec, execID, EvalContext{EC: ec, Data: input.Parameters})
	})
}

// Run implements the Workflow interface, evaluating branch conditions
// against an empty EvalContext.Data; use RunWithEval to supply evaluation
// data explicitly (used by tests and nested evaluation).
func (c *Conditional) Run(ec core.ExecutionContext, execID string) WorkflowResult {
	return c.run(ec, execID, EvalContext{EC: ec, Data: map[string]any{}})
}

// RunWithEval runs the Conditional with an explicit EvalContext used to
// evaluate branch guards.
func (c *Conditional) RunWithEval(ec core.ExecutionContext, execID string, eval EvalContext) WorkflowResult {
	return c.run(ec, execID, eval)
}

func (c *Conditional) run(ec core.ExecutionContext, execID string, eval EvalContext) WorkflowResult {
	start := time.Now()
	wec := ec.WithScope(core.WorkflowScope(execID))

	res := WorkflowResult{
		ExecutionID:  execID,
		WorkflowType: KindConditional,
		WorkflowName: c.metadata.Name,
		Status:       StatusRunning,
		Metadata:     map[string]any{"agent_outputs": newAgentOutputs()},
	}
	agentOutputs := res.Metadata["agent_outputs"].(map[string]any)

	steps, branchName := c.selectBranch(eval)
	if branchName == "" && steps == nil {
		res.Duration = time.Since(start)
		res.Success = true
		res.Status = StatusCompleted
		res.StepsSkipped = 1
		res.Summary = "no branch matched and no else step configured"
		return res
	}

	for _, step := range steps {
		end := traceStep(wec, KindConditional, execID, step.Name)
		out, serr := step.Agent.Execute(wec, step.Input)
		end()
		if serr != nil {
			res.StepsFailed++
			res.Error = core.Workflow(step.Name, "conditional branch step failed", serr)
			break
		}
		key := stepKey(execID, step.Name)
		if werr := wec.State.Set(wec, wec.Scope, key, out.Text); werr != nil {
			res.StepsFailed++
			res.Error = core.Workflow(step.Name, "failed to persist step output", werr)
			break
		}
		res.StateKeys = append(res.StateKeys, key)
		res.StepsExecuted++
		agentOutputs[step.Agent.Metadata().ID.String()] = out.Text
	}

	res.Duration = time.Since(start)
	res.Success = res.Error == nil
	if res.Success {
		res.Status = StatusCompleted
		res.Summary = "conditional branch " + branchName + " completed"
	} else {
		res.Status = StatusFailed
		res.Summary = "conditional branch " + branchName + " failed: " + res.Error.Error()
	}
	return res
}

// selectBranch returns the steps of the first matching branch (in
// declaration order), or the else steps if none matched, or (nil, "") if
// neither exists.
func (c *Conditional) selectBranch(eval EvalContext) ([]Step, string) {
	for _, b := range c.branches {
		if b.Condition.Evaluate(eval) {
			return b.Steps, b.Name
		}
	}
	if c.elseStep != nil {
		return c.elseStep, "else"
	}
	return nil, ""
}
