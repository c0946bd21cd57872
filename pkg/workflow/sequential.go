package workflow

import (
	"time"

	"github.com/lexlapax/llmspell/pkg/core"
)

// Sequential runs its Steps once, in declaration order, each step's output
// written to state before the next step begins. Generalized from the
// teacher's workflowagent.NewSequential, which is itself "a LoopAgent with
// MaxIterations=1"; here it is its own small executor since the spec's
// Loop pattern has materially different termination semantics (collection/
// while/range) that don't collapse cleanly onto a single-iteration special
// case.
type Sequential struct {
	Base
	steps []Step
}

// NewSequential builds a Sequential workflow over steps run in declaration
// order.
func NewSequential(name, description string, steps []Step) *Sequential {
	return &Sequential{Base: NewBase(name, description, KindSequential), steps: steps}
}

// Execute implements agent.BaseAgent.
func (s *Sequential) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	return runAndSerialize(ec, input, s.Run)
}

// Run executes every step in order under execID, honoring each step's
// break_on_error policy, per spec.md §4.7's Sequential semantics (S6).
func (s *Sequential) Run(ec core.ExecutionContext, execID string) WorkflowResult {
	start := time.Now()
	res := WorkflowResult{
		ExecutionID:  execID,
		WorkflowType: KindSequential,
		WorkflowName: s.metadata.Name,
		Status:       StatusRunning,
		Metadata:     map[string]any{"agent_outputs": newAgentOutputs()},
	}

	wec := ec.WithScope(core.WorkflowScope(execID))
	agentOutputs := res.Metadata["agent_outputs"].(map[string]any)

	for _, step := range s.steps {
		if wec.Cancelled() {
			res.Error = core.Cancelled("workflow sequential step " + step.Name)
			break
		}

		end := traceStep(wec, KindSequential, execID, step.Name)
		out, serr := step.Agent.Execute(wec, step.Input)
		end()
		if serr != nil {
			res.StepsFailed++
			if step.breakOnError() {
				res.Error = core.Workflow(step.Name, "step failed", serr)
				break
			}
			continue
		}

		key := stepKey(execID, step.Name)
		if werr := wec.State.Set(wec, wec.Scope, key, out.Text); werr != nil {
			res.StepsFailed++
			if step.breakOnError() {
				res.Error = core.Workflow(step.Name, "failed to persist step output", werr)
				break
			}
			continue
		}

		res.StateKeys = append(res.StateKeys, key)
		res.StepsExecuted++
		agentOutputs[step.Agent.Metadata().ID.String()] = out.Text
	}

	res.Duration = time.Since(start)
	res.Success = res.Error == nil
	if res.Success {
		res.Status = StatusCompleted
		res.Summary = "sequential workflow completed"
	} else {
		res.Status = StatusFailed
		res.Summary = "sequential workflow failed: " + res.Error.Error()
	}
	return res
}
