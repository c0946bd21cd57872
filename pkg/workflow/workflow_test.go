package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/state"
	"github.com/lexlapax/llmspell/pkg/storage/memdb"
)

// stubStep is a minimal agent.BaseAgent test double that returns a fixed
// output or a fixed failure.
type stubStep struct {
	metadata core.ComponentMetadata
	output   string
	fail     bool
}

func newStubStep(name, output string, fail bool) *stubStep {
	return &stubStep{
		metadata: core.NewComponentMetadata(core.ComponentTypeAgent, name, "", semver.New(1, 0, 0)),
		output:   output,
		fail:     fail,
	}
}

func (s *stubStep) Metadata() core.ComponentMetadata { return s.metadata }

func (s *stubStep) ValidateInput(core.AgentInput) *core.Error { return nil }

func (s *stubStep) HandleError(ec core.ExecutionContext, err *core.Error) core.AgentOutput {
	return core.AgentOutput{}
}

func (s *stubStep) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	if s.fail {
		return core.AgentOutput{}, core.Component("stub step failure")
	}
	return core.AgentOutput{Text: s.output}, nil
}

func newTestEC() (core.ExecutionContext, *state.Manager) {
	mgr := state.NewManager(memdb.New())
	ec := core.NewExecutionContext(context.Background(), core.Global(), mgr, nil, "corr-1")
	return ec, mgr
}

func TestSequential_S6_StateOutputsInDeclarationOrder(t *testing.T) {
	ec, _ := newTestEC()
	s1 := newStubStep("s1", "foo", false)
	s2 := newStubStep("s2", "bar", false)

	wf := NewSequential("pipeline", "", []Step{
		{Name: "s1", Agent: s1},
		{Name: "s2", Agent: s2},
	})

	res := wf.Run(ec, "E1")
	require.True(t, res.Success)
	assert.Equal(t, 2, res.StepsExecuted)
	assert.Equal(t, []string{"workflow:E1:s1", "workflow:E1:s2"}, res.StateKeys)

	wec := ec.WithScope(core.WorkflowScope("E1"))
	v1, ok, err := wec.State.Get(wec, wec.Scope, "workflow:E1:s1")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, "foo", v1)

	v2, ok, err := wec.State.Get(wec, wec.Scope, "workflow:E1:s2")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, "bar", v2)
}

func TestSequential_BreakOnErrorHaltsAtFirstFailure(t *testing.T) {
	ec, _ := newTestEC()
	s1 := newStubStep("s1", "foo", false)
	s2 := newStubStep("s2", "", true)
	s3 := newStubStep("s3", "never", false)

	wf := NewSequential("pipeline", "", []Step{
		{Name: "s1", Agent: s1},
		{Name: "s2", Agent: s2},
		{Name: "s3", Agent: s3},
	})

	res := wf.Run(ec, "E2")
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.StepsExecuted)
	assert.Equal(t, 1, res.StepsFailed)
	assert.Equal(t, []string{"workflow:E2:s1"}, res.StateKeys)
}

func TestSequential_ContinuesPastFailureWhenBreakOnErrorFalse(t *testing.T) {
	ec, _ := newTestEC()
	noBreak := false
	s1 := newStubStep("s1", "foo", false)
	s2 := newStubStep("s2", "", true)
	s3 := newStubStep("s3", "baz", false)

	wf := NewSequential("pipeline", "", []Step{
		{Name: "s1", Agent: s1},
		{Name: "s2", Agent: s2, BreakOnError: &noBreak},
		{Name: "s3", Agent: s3},
	})

	res := wf.Run(ec, "E3")
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.StepsExecuted)
	assert.Equal(t, 1, res.StepsFailed)
	assert.Equal(t, []string{"workflow:E3:s1", "workflow:E3:s3"}, res.StateKeys)
}

func TestParallel_S7_OneFailingBranchStillSucceeds(t *testing.T) {
	ec, _ := newTestEC()
	a := newStubStep("a", "alpha", false)
	b := newStubStep("b", "", true)
	c := newStubStep("c", "charlie", false)

	wf := NewParallel("voters", "", []Branch{
		{Name: "A", Steps: []Step{{Name: "a", Agent: a}}},
		{Name: "B", Steps: []Step{{Name: "b", Agent: b}}},
		{Name: "C", Steps: []Step{{Name: "c", Agent: c}}},
	}, WithRequireAll(false))

	res := wf.Run(ec, "E4")
	require.True(t, res.Success)
	assert.Equal(t, 2, res.StepsExecuted)
	assert.Equal(t, 1, res.StepsFailed)
	assert.ElementsMatch(t, []string{"workflow:E4:branch_A:a", "workflow:E4:branch_C:c"}, res.StateKeys)

	agentOutputs := res.Metadata["agent_outputs"].(map[string]any)
	assert.Len(t, agentOutputs, 2)
}

func TestParallel_RequireAllFailsOnAnyBranchFailure(t *testing.T) {
	ec, _ := newTestEC()
	a := newStubStep("a", "alpha", false)
	b := newStubStep("b", "", true)

	wf := NewParallel("voters", "", []Branch{
		{Name: "A", Steps: []Step{{Name: "a", Agent: a}}},
		{Name: "B", Steps: []Step{{Name: "b", Agent: b}}},
	})

	res := wf.Run(ec, "E5")
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.StepsFailed)
}

func TestConditional_FirstMatchingBranchRuns(t *testing.T) {
	ec, _ := newTestEC()
	yes := newStubStep("yes", "took yes branch", false)
	no := newStubStep("no", "took no branch", false)

	wf := NewConditional("router", "", []ConditionalBranch{
		{Name: "no-branch", Condition: Never{}, Steps: []Step{{Name: "no", Agent: no}}},
		{Name: "yes-branch", Condition: Always{}, Steps: []Step{{Name: "yes", Agent: yes}}},
	}, nil)

	res := wf.Run(ec, "E6")
	require.True(t, res.Success)
	assert.Equal(t, []string{"workflow:E6:yes"}, res.StateKeys)
}

func TestConditional_FallsBackToElse(t *testing.T) {
	ec, _ := newTestEC()
	fallback := newStubStep("fallback", "fell back", false)

	wf := NewConditional("router", "", []ConditionalBranch{
		{Name: "no-branch", Condition: Never{}, Steps: []Step{}},
	}, []Step{{Name: "fallback", Agent: fallback}})

	res := wf.Run(ec, "E7")
	require.True(t, res.Success)
	assert.Equal(t, []string{"workflow:E7:fallback"}, res.StateKeys)
}

func TestConditional_JsonPathOverData(t *testing.T) {
	ec, _ := newTestEC()
	matched := newStubStep("matched", "matched", false)

	wf := NewConditional("router", "", []ConditionalBranch{
		{
			Name:      "high-priority",
			Condition: JsonPath{Path: "ticket.priority", Expected: "high"},
			Steps:     []Step{{Name: "matched", Agent: matched}},
		},
	}, nil)

	eval := EvalContext{
		EC: ec,
		Data: map[string]any{
			"ticket": map[string]any{"priority": "high"},
		},
	}
	res := wf.RunWithEval(ec, "E8", eval)
	require.True(t, res.Success)
	assert.Equal(t, []string{"workflow:E8:matched"}, res.StateKeys)
}

func TestLoop_CollectionIteratesEveryInput(t *testing.T) {
	ec, _ := newTestEC()
	step := newStubStep("echo", "", false)
	inputs := []core.AgentInput{{Text: "one"}, {Text: "two"}, {Text: "three"}}

	wf := NewCollectionLoop("echoer", "", Step{Name: "echo", Agent: step}, inputs)

	res := wf.Run(ec, "E9")
	require.True(t, res.Success)
	assert.Equal(t, 3, res.StepsExecuted)
	assert.Equal(t, []string{
		"workflow:E9:iteration_0:echo",
		"workflow:E9:iteration_1:echo",
		"workflow:E9:iteration_2:echo",
	}, res.StateKeys)
}

func TestLoop_RangeStopsAtMaxIterations(t *testing.T) {
	ec, _ := newTestEC()
	step := newStubStep("tick", "tock", false)

	wf := NewRangeLoop("ticker", "", Step{Name: "tick", Agent: step}, 4)

	res := wf.Run(ec, "E10")
	require.True(t, res.Success)
	assert.Equal(t, 4, res.StepsExecuted)
}

func TestLoop_BreakOnErrorHaltsIteration(t *testing.T) {
	ec, _ := newTestEC()
	step := &toggleStep{metadata: core.NewComponentMetadata(core.ComponentTypeAgent, "toggle", "", semver.New(1, 0, 0)), failAt: 2}

	wf := NewRangeLoop("ticker", "", Step{Name: "toggle", Agent: step}, 5)

	res := wf.Run(ec, "E11")
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.StepsExecuted)
	assert.Equal(t, 1, res.StepsFailed)
}

// toggleStep fails on its Nth call (0-indexed), succeeding otherwise.
type toggleStep struct {
	metadata core.ComponentMetadata
	calls    int
	failAt   int
}

func (s *toggleStep) Metadata() core.ComponentMetadata { return s.metadata }

func (s *toggleStep) ValidateInput(core.AgentInput) *core.Error { return nil }

func (s *toggleStep) HandleError(ec core.ExecutionContext, err *core.Error) core.AgentOutput {
	return core.AgentOutput{}
}

func (s *toggleStep) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	defer func() { s.calls++ }()
	if s.calls == s.failAt {
		return core.AgentOutput{}, core.Component("toggled failure")
	}
	return core.AgentOutput{Text: "ok"}, nil
}

func TestWorkflow_ExecuteSerializesResultIntoOutputText(t *testing.T) {
	ec, _ := newTestEC()
	s1 := newStubStep("s1", "foo", false)
	wf := NewSequential("pipeline", "", []Step{{Name: "s1", Agent: s1}})

	out, err := wf.Execute(ec, core.AgentInput{Parameters: map[string]any{"execution_id": "E12"}})
	require.Nil(t, err)
	assert.Contains(t, out.Text, "\"execution_id\":\"E12\"")
	assert.Equal(t, true, out.Metadata.Extra["success"])
}
