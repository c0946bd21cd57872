package workflow

import (
	"time"

	"github.com/lexlapax/llmspell/pkg/core"
)

// LoopMode closes the set of ways a Loop can determine when to stop.
type LoopMode string

const (
	// LoopCollection iterates Step over a fixed slice of inputs, one
	// iteration per element.
	LoopCollection LoopMode = "collection"

	// LoopWhile iterates while While.Evaluate(...) returns true, bounded
	// by MaxIterations as a safety net.
	LoopWhile LoopMode = "while"

	// LoopRange iterates a bounded number of times with no condition.
	LoopRange LoopMode = "range"
)

// Loop iterates a named step per spec.md §4.7, terminating on iterator
// exhaustion, condition false, MaxIterations, explicit break (a step
// returning AgentOutput.Metadata.Extra["break"] == true), or step failure
// with BreakOnError. Generalizes the teacher's workflowagent.NewLoop
// (iteration-count/escalate loop over a fixed sub-agent list) into the
// collection/while/range loop forms the spec requires; "escalate" becomes
// the explicit-break convention here since the core has no Event/Action
// type of its own.
type Loop struct {
	Base
	mode       LoopMode
	step       Step
	inputs     []core.AgentInput // LoopCollection
	while      Condition         // LoopWhile
	maxIters   int
	breakOnErr bool
}

// LoopOption configures a Loop workflow at construction.
type LoopOption func(*Loop)

// WithMaxIterations bounds the loop (required for LoopRange/LoopWhile; also
// acts as a safety net for LoopCollection, stopping it before len(inputs)
// when smaller).
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) { l.maxIters = n }
}

// WithBreakOnError halts the loop at the first failing iteration instead of
// recording the failure and continuing.
func WithBreakOnError(b bool) LoopOption {
	return func(l *Loop) { l.breakOnErr = b }
}

// NewCollectionLoop builds a Loop that runs step once per element of
// inputs.
func NewCollectionLoop(name, description string, step Step, inputs []core.AgentInput, opts ...LoopOption) *Loop {
	l := &Loop{Base: NewBase(name, description, KindLoop), mode: LoopCollection, step: step, inputs: inputs, breakOnErr: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewWhileLoop builds a Loop that runs step while cond evaluates true,
// bounded by maxIterations as a safety net.
func NewWhileLoop(name, description string, step Step, cond Condition, maxIterations int, opts ...LoopOption) *Loop {
	l := &Loop{Base: NewBase(name, description, KindLoop), mode: LoopWhile, step: step, while: cond, maxIters: maxIterations, breakOnErr: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewRangeLoop builds a Loop that runs step exactly n times.
func NewRangeLoop(name, description string, step Step, n int, opts ...LoopOption) *Loop {
	l := &Loop{Base: NewBase(name, description, KindLoop), mode: LoopRange, step: step, maxIters: n, breakOnErr: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute implements agent.BaseAgent.
func (l *Loop) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	return runAndSerialize(ec, input, l.Run)
}

// Run implements the Workflow interface.
func (l *Loop) Run(ec core.ExecutionContext, execID string) WorkflowResult {
	start := time.Now()
	wec := ec.WithScope(core.WorkflowScope(execID))

	res := WorkflowResult{
		ExecutionID:  execID,
		WorkflowType: KindLoop,
		WorkflowName: l.metadata.Name,
		Status:       StatusRunning,
		Metadata:     map[string]any{"agent_outputs": newAgentOutputs()},
	}
	agentOutputs := res.Metadata["agent_outputs"].(map[string]any)

	for n := 0; ; n++ {
		if wec.Cancelled() {
			res.Error = core.Cancelled("workflow loop iteration")
			break
		}
		if !l.shouldContinue(wec, n) {
			break
		}

		iterInput := l.step.Input
		if l.mode == LoopCollection {
			iterInput = l.inputs[n]
		}

		end := traceStep(wec, KindLoop, execID, iterationKey(execID, n, l.step.Name))
		out, serr := l.step.Agent.Execute(wec, iterInput)
		end()
		if serr != nil {
			res.StepsFailed++
			if l.breakOnErr {
				res.Error = core.Workflow(l.step.Name, "loop iteration failed", serr)
				break
			}
			continue
		}

		key := iterationKey(execID, n, l.step.Name)
		if werr := wec.State.Set(wec, wec.Scope, key, out.Text); werr != nil {
			res.StepsFailed++
			if l.breakOnErr {
				res.Error = core.Workflow(l.step.Name, "failed to persist iteration output", werr)
				break
			}
			continue
		}

		res.StateKeys = append(res.StateKeys, key)
		res.StepsExecuted++
		agentOutputs[l.step.Agent.Metadata().ID.String()] = out.Text

		if brk, ok := out.Metadata.Extra["break"].(bool); ok && brk {
			break
		}
	}

	res.Duration = time.Since(start)
	res.Success = res.Error == nil
	if res.Success {
		res.Status = StatusCompleted
		res.Summary = "loop workflow completed"
	} else {
		res.Status = StatusFailed
		res.Summary = "loop workflow failed: " + res.Error.Error()
	}
	return res
}

// shouldContinue reports whether iteration n should run, per the loop's
// mode: collection exhausts at len(inputs) (or earlier at maxIters when
// set), while re-evaluates its condition each iteration (bounded by
// maxIters as a safety net when set), range stops at maxIters.
func (l *Loop) shouldContinue(ec core.ExecutionContext, n int) bool {
	switch l.mode {
	case LoopCollection:
		return n < len(l.inputs) && (l.maxIters <= 0 || n < l.maxIters)
	case LoopRange:
		return n < l.maxIters
	case LoopWhile:
		if l.maxIters > 0 && n >= l.maxIters {
			return false
		}
		return l.while.Evaluate(EvalContext{EC: ec})
	default:
		return false
	}
}
