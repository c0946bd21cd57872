package workflow

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexlapax/llmspell/pkg/core"
)

// Branch is one concurrently-executed arm of a Parallel workflow: a named
// sequence of steps run in order within the branch, all branches running
// concurrently with each other.
type Branch struct {
	Name  string
	Steps []Step
}

// Parallel runs its Branches concurrently, up to MaxConcurrency at a time
// (0 means unbounded), per spec.md §4.7. Generalized from the teacher's
// workflowagent.NewParallel / runParallel (errgroup fan-out, per-sub-agent
// goroutine, channel fan-in of results) — adapted from "yield events as
// they complete" into "write every branch step's output to state, then
// aggregate once every branch is done", since the spec treats workflow
// results as metadata-only rather than a live event stream.
type Parallel struct {
	Base
	branches       []Branch
	maxConcurrency int

	// RequireAll, when true (the default), requires every branch to
	// complete without error for Success; when false, Success requires at
	// least one completed branch, per spec.md §4.7 (S7).
	requireAll bool
}

// ParallelOption configures a Parallel workflow at construction.
type ParallelOption func(*Parallel)

// WithMaxConcurrency bounds how many branches run at once (0 = unbounded).
func WithMaxConcurrency(n int) ParallelOption {
	return func(p *Parallel) { p.maxConcurrency = n }
}

// WithRequireAll controls whether every branch must succeed for the
// workflow to report success overall.
func WithRequireAll(requireAll bool) ParallelOption {
	return func(p *Parallel) { p.requireAll = requireAll }
}

// NewParallel builds a Parallel workflow over the given branches.
func NewParallel(name, description string, branches []Branch, opts ...ParallelOption) *Parallel {
	p := &Parallel{Base: NewBase(name, description, KindParallel), branches: branches, requireAll: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute implements agent.BaseAgent.
func (p *Parallel) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	return runAndSerialize(ec, input, p.Run)
}

type branchOutcome struct {
	index     int
	branch    string
	stateKeys []string
	failed    bool
	err       error
	outputs   map[string]string
}

// Run executes every branch concurrently, bounded by maxConcurrency, and
// aggregates results once all branches finish. Declaration order (not
// completion order) determines the order of state keys in the result, per
// spec.md §4.7's "ordering of output keys matches declaration order".
func (p *Parallel) Run(ec core.ExecutionContext, execID string) WorkflowResult {
	start := time.Now()
	wec := ec.WithScope(core.WorkflowScope(execID))

	outcomes := make([]branchOutcome, len(p.branches))

	eg, egCtx := errgroup.WithContext(wec.Context)
	sem := make(chan struct{}, p.semCapacity())

	for i, br := range p.branches {
		i, br := i, br
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-egCtx.Done():
				outcomes[i] = branchOutcome{index: i, branch: br.Name, failed: true, err: egCtx.Err()}
				return nil
			}
			outcomes[i] = p.runBranch(wec, execID, br)
			return nil
		})
	}
	_ = eg.Wait()

	res := WorkflowResult{
		ExecutionID:  execID,
		WorkflowType: KindParallel,
		WorkflowName: p.metadata.Name,
		Status:       StatusRunning,
		Metadata:     map[string]any{"agent_outputs": newAgentOutputs()},
	}
	agentOutputs := res.Metadata["agent_outputs"].(map[string]any)

	completed := 0
	for _, o := range outcomes {
		if o.failed {
			res.StepsFailed++
			continue
		}
		completed++
		res.StepsExecuted++
		res.StateKeys = append(res.StateKeys, o.stateKeys...)
		for k, v := range o.outputs {
			agentOutputs[k] = v
		}
	}

	res.Duration = time.Since(start)
	if p.requireAll {
		res.Success = res.StepsFailed == 0
	} else {
		res.Success = completed > 0
	}

	if res.Success {
		res.Status = StatusCompleted
		res.Summary = "parallel workflow completed"
	} else {
		res.Status = StatusFailed
		res.Error = core.Workflow("", "one or more branches failed")
		res.Summary = "parallel workflow failed"
	}
	return res
}

func (p *Parallel) semCapacity() int {
	if p.maxConcurrency <= 0 || p.maxConcurrency > len(p.branches) {
		if len(p.branches) == 0 {
			return 1
		}
		return len(p.branches)
	}
	return p.maxConcurrency
}

func (p *Parallel) runBranch(wec core.ExecutionContext, execID string, br Branch) branchOutcome {
	out := branchOutcome{branch: br.Name, outputs: map[string]string{}}
	for _, step := range br.Steps {
		end := traceStep(wec, KindParallel, execID, br.Name+"/"+step.Name)
		result, serr := step.Agent.Execute(wec, step.Input)
		end()
		if serr != nil {
			out.failed = true
			out.err = serr
			return out
		}
		key := branchKey(execID, br.Name, step.Name)
		if werr := wec.State.Set(wec, wec.Scope, key, result.Text); werr != nil {
			out.failed = true
			out.err = werr
			return out
		}
		out.stateKeys = append(out.stateKeys, key)
		out.outputs[step.Agent.Metadata().ID.String()] = result.Text
	}
	return out
}

