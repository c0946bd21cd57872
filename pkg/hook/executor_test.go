package hook

import (
	"errors"
	"testing"
	"time"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor() (*Registry, *Executor) {
	reg := NewRegistry()
	return reg, NewExecutor(reg, NewResultCache(64, time.Minute), nil, DefaultBreakerConfig())
}

func TestExecutor_PriorityOrderAndCancel(t *testing.T) {
	reg, exec := newTestExecutor()

	var order []int
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		order = append(order, 10)
		return Continue(), nil
	}), WithPriority(10))
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		order = append(order, 20)
		return Cancel("stop"), nil
	}), WithPriority(20))
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		order = append(order, 30)
		return Continue(), nil
	}), WithPriority(30))

	ctx := NewHookContext(PointBeforeExecution, core.NewComponentId(core.ComponentTypeAgent, "a"), "c1")
	result, err := exec.ExecuteHooks(ctx)

	require.NotNil(t, err)
	assert.Contains(t, err.Message, "stop")
	assert.Equal(t, ResultCancel, result.Kind)
	assert.Equal(t, []int{10, 20}, order)
}

func TestExecutor_FIFOTieBreakWithinEqualPriority(t *testing.T) {
	reg, exec := newTestExecutor()

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		n := name
		reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
			order = append(order, n)
			return Continue(), nil
		}), WithPriority(PriorityNormal))
	}

	ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
	_, err := exec.ExecuteHooks(ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestExecutor_ModifiedMergesIntoData(t *testing.T) {
	reg, exec := newTestExecutor()
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		return Modified("replacement"), nil
	}), WithHookName("enricher"))

	ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
	_, err := exec.ExecuteHooks(ctx)
	require.Nil(t, err)
	assert.Equal(t, "replacement", ctx.Data["enricher"])
}

func TestExecutor_SkipContinuesChain(t *testing.T) {
	reg, exec := newTestExecutor()
	var ran []string
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		ran = append(ran, "first")
		return Skip(), nil
	}), WithPriority(10))
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		ran = append(ran, "second")
		return Continue(), nil
	}), WithPriority(20))

	ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
	_, err := exec.ExecuteHooks(ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestExecutor_RetryBoundedThenCancels(t *testing.T) {
	reg, exec := newTestExecutor()
	calls := 0
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		calls++
		return Retry(time.Millisecond), nil
	}))

	ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
	result, err := exec.ExecuteHooks(ctx)
	require.NotNil(t, err)
	assert.Equal(t, ResultCancel, result.Kind)
	assert.Equal(t, maxRetriesPerHook+1, calls)
}

func TestExecutor_PropagateErrorsFailsStep(t *testing.T) {
	reg, exec := newTestExecutor()
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		return Continue(), errors.New("boom")
	}), PropagateErrors())

	ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
	_, err := exec.ExecuteHooks(ctx)
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "boom")
}

func TestExecutor_NonPropagatingErrorLogsAndContinues(t *testing.T) {
	reg, exec := newTestExecutor()
	var secondRan bool
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		return Continue(), errors.New("boom")
	}), WithPriority(10))
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		secondRan = true
		return Continue(), nil
	}), WithPriority(20))

	ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
	_, err := exec.ExecuteHooks(ctx)
	require.Nil(t, err)
	assert.True(t, secondRan)
}

func TestExecutor_PureHookServesFromCache(t *testing.T) {
	reg, exec := newTestExecutor()
	calls := 0
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		calls++
		return Continue(), nil
	}), Pure())

	cid := core.NewComponentId(core.ComponentTypeAgent, "a")
	ctx1 := NewHookContext(PointBeforeExecution, cid, "c1")
	ctx2 := NewHookContext(PointBeforeExecution, cid, "c2")

	_, err := exec.ExecuteHooks(ctx1)
	require.Nil(t, err)
	_, err = exec.ExecuteHooks(ctx2)
	require.Nil(t, err)

	assert.Equal(t, 1, calls)
}

func TestExecutor_CircuitBreakerOpensAfterFailures(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg, nil, nil, BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	calls := 0
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		calls++
		return Continue(), errors.New("fail")
	}), PropagateErrors())

	for i := 0; i < 5; i++ {
		ctx := NewHookContext(PointBeforeExecution, core.ComponentId{}, "c1")
		_, _ = exec.ExecuteHooks(ctx)
	}

	// After the breaker trips it short-circuits to Continue without
	// invoking the hook again, so calls stays at the failure threshold.
	assert.Equal(t, 2, calls)
}

func TestExecutor_LimiterRejectsOverBudgetDispatch(t *testing.T) {
	reg, exec := newTestExecutor()
	exec.Limiter = ratelimit.New()
	exec.Limiter.SetRule(string(PointBeforeExecution), ratelimit.Rule{Window: ratelimit.WindowMinute, Limit: 1})

	calls := 0
	reg.Register(PointBeforeExecution, HookFunc(func(ctx *HookContext) (HookResult, error) {
		calls++
		return Continue(), nil
	}), WithPriority(10))

	cid := core.NewComponentId(core.ComponentTypeAgent, "a")
	_, err := exec.ExecuteHooks(NewHookContext(PointBeforeExecution, cid, "c1"))
	require.Nil(t, err)

	_, err = exec.ExecuteHooks(NewHookContext(PointBeforeExecution, cid, "c2"))
	require.NotNil(t, err)
	assert.Equal(t, core.ErrorKindResourceLimit, err.Kind)
	assert.Equal(t, 1, calls)
}
