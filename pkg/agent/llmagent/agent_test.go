package llmagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/lifecycle"
	"github.com/lexlapax/llmspell/pkg/ratelimit"
	"github.com/lexlapax/llmspell/pkg/state"
	"github.com/lexlapax/llmspell/pkg/storage/memdb"
)

type stubProvider struct {
	name    string
	reply   string
	failErr error
	calls   int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, error) {
	p.calls++
	if p.failErr != nil {
		return core.AgentOutput{}, p.failErr
	}
	return core.AgentOutput{Text: p.reply}, nil
}

func newTestEC() core.ExecutionContext {
	return core.NewExecutionContext(context.Background(), core.AgentScope("test-agent"), nil, nil, "corr-1")
}

func TestAgent_ValidateInputRejectsEmptyText(t *testing.T) {
	a := New(Config{Name: "assistant", Provider: &stubProvider{name: "stub"}})
	err := a.ValidateInput(core.AgentInput{})
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindValidation, err.Kind)
}

func TestAgent_ExecuteAutoInitializesFromUninitialized(t *testing.T) {
	p := &stubProvider{name: "stub", reply: "hello there"}
	a := New(Config{Name: "assistant", Provider: p})

	out, err := a.Execute(newTestEC(), core.AgentInput{Text: "hi"})
	require.Nil(t, err)
	assert.Equal(t, "hello there", out.Text)
	assert.Equal(t, lifecycle.Running, a.State())
	assert.Equal(t, 1, p.calls)
}

func TestAgent_ExecuteAppendsConversationTurn(t *testing.T) {
	p := &stubProvider{name: "stub", reply: "42"}
	a := New(Config{Name: "assistant", Provider: p, MaxConversationLength: 4})

	_, err := a.Execute(newTestEC(), core.AgentInput{Text: "what is the answer"})
	require.Nil(t, err)

	conv := a.GetConversation()
	require.Len(t, conv, 2)
	assert.Equal(t, core.RoleUser, conv[0].Role)
	assert.Equal(t, "what is the answer", conv[0].Content)
	assert.Equal(t, core.RoleAssistant, conv[1].Role)
	assert.Equal(t, "42", conv[1].Content)
}

func TestAgent_ExecuteRejectsEstimatedTokenOverBudget(t *testing.T) {
	p := &stubProvider{name: "stub", reply: "ignored"}
	a := New(Config{Name: "assistant", Provider: p, MaxTokens: 2})

	longText := "this input is far too long to fit the configured token budget for this agent"
	_, err := a.Execute(newTestEC(), core.AgentInput{Text: longText})
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindValidation, err.Kind)
	assert.Equal(t, 0, p.calls)
}

func TestAgent_ProviderFailureDrivesLifecycleToError(t *testing.T) {
	p := &stubProvider{name: "stub", failErr: assertErr{"boom"}}
	a := New(Config{Name: "assistant", Provider: p})

	out, err := a.Execute(newTestEC(), core.AgentInput{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindProvider, err.Kind)
	assert.Contains(t, out.Metadata.Extra["error"], "boom")
	assert.Equal(t, lifecycle.Error, a.State())
}

func TestAgent_PauseStopSaveStateAndResumeLoadsIt(t *testing.T) {
	backend := memdb.New()
	mgr := state.NewManager(backend)
	p := &stubProvider{name: "stub", reply: "yo"}

	a := New(Config{Name: "assistant", Provider: p, StateManager: mgr, MaxConversationLength: 10})
	ec := newTestEC()

	_, err := a.Execute(ec, core.AgentInput{Text: "remember me"})
	require.Nil(t, err)

	require.NoError(t, a.Start(ec))
	require.NoError(t, a.Pause(ec))

	b := New(Config{Name: "assistant", Provider: p, StateManager: mgr, MaxConversationLength: 10})
	restored, lerr := b.LoadState(ec)
	require.Nil(t, lerr)
	assert.True(t, restored)
	assert.Len(t, b.GetConversation(), 2)
}

func TestAgent_StopWithoutStateManagerIsNoop(t *testing.T) {
	a := New(Config{Name: "assistant", Provider: &stubProvider{name: "stub"}})
	ec := newTestEC()
	require.NoError(t, a.Start(ec))
	require.NoError(t, a.Stop(ec))
	assert.Equal(t, lifecycle.Stopped, a.State())
}

func TestAgent_Metadata(t *testing.T) {
	a := New(Config{Name: "assistant", Description: "a test agent", Version: semver.New(1, 0, 0), Provider: &stubProvider{name: "stub"}})
	md := a.Metadata()
	assert.Equal(t, "assistant", md.Name)
	assert.False(t, md.ID.IsZero())
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestAgent_RateLimiterRejectsExcessInvocations(t *testing.T) {
	p := &stubProvider{name: "stub", reply: "hi"}
	limiter := ratelimit.New()
	limiter.SetRule(agentInvocationsResource, ratelimit.Rule{Window: ratelimit.WindowMinute, Limit: 1})

	a := New(Config{Name: "assistant", Provider: p, Limiter: limiter})
	ec := newTestEC()

	_, err := a.Execute(ec, core.AgentInput{Text: "hello"})
	require.Nil(t, err)

	_, err = a.Execute(ec, core.AgentInput{Text: "hello again"})
	require.NotNil(t, err)
	assert.Equal(t, core.ErrorKindResourceLimit, err.Kind)
}

func TestAgent_TokenModelPopulatesUsageStats(t *testing.T) {
	p := &stubProvider{name: "stub", reply: "hi there"}
	a := New(Config{Name: "assistant", Provider: p, TokenModel: "gpt-4"})
	ec := newTestEC()

	out, err := a.Execute(ec, core.AgentInput{Text: "hello"})
	require.Nil(t, err)
	assert.Greater(t, out.Metadata.TokensUsed, 0)
	assert.Greater(t, a.stats.TotalTokens, int64(0))
}
