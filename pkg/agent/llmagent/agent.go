package llmagent

import (
	"fmt"
	"time"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/agent"
	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/hook"
	"github.com/lexlapax/llmspell/pkg/lifecycle"
	"github.com/lexlapax/llmspell/pkg/ratelimit"
	"github.com/lexlapax/llmspell/pkg/state"
	"github.com/lexlapax/llmspell/pkg/tokens"
)

// agentInvocationsResource is the ratelimit.Rule key for "max agent
// invocations per unit time" (spec.md §5).
const agentInvocationsResource = "agent_invocations"

// estimatedCharsPerToken matches spec.md §4.6's "estimated_tokens ≈
// text_len/4" budget check.
const estimatedCharsPerToken = 4

// Config configures a new LLM Agent.
type Config struct {
	Name        string
	Description string
	Version     semver.Version

	Provider ProviderInstance

	MaxConversationLength int
	SystemPrompt          string
	Temperature           float64
	MaxTokens             int

	// Hooks, if set, dispatches BeforeExecution/AfterExecution/OnError at
	// the corresponding HookPoints around Execute.
	Hooks *hook.Executor

	// StateManager, if set, is used by Pause/Stop to best-effort save
	// PersistentAgentState and by LoadState to restore it. Per spec.md
	// §4.6, LoadState must be called explicitly before Start/Resume —
	// there is no hidden I/O on the hot execute path.
	StateManager *state.Manager

	// Limiter, if set, enforces "max agent invocations per unit time"
	// (spec.md §5) against a Rule registered under agentInvocationsResource.
	Limiter *ratelimit.Limiter

	// TokenModel, if non-empty, selects the tiktoken-go encoding used to
	// populate AgentOutput.Metadata.TokensUsed and the persisted
	// tool-usage-stats token total. Empty disables accurate token
	// accounting (ValidateInput's estimated-token budget check still uses
	// the cheap text_len/4 heuristic regardless).
	TokenModel string

	Lifecycle []lifecycle.Option
}

// Agent is the LLM-backed implementation of agent.Agent, per spec.md §4.6.
type Agent struct {
	metadata core.ComponentMetadata
	machine  *lifecycle.Machine

	provider ProviderInstance
	conv     *agent.ConversationBuffer
	cfg      agent.Config

	hooks        *hook.Executor
	stateManager *state.Manager
	limiter      *ratelimit.Limiter
	tokenCounter *tokens.Counter

	stats state.ToolUsageStats
}

// New constructs an LLM Agent in the Uninitialized lifecycle state.
func New(cfg Config) *Agent {
	metadata := core.NewComponentMetadata(core.ComponentTypeAgent, cfg.Name, cfg.Description, cfg.Version)

	a := &Agent{
		metadata: metadata,
		provider: cfg.Provider,
		conv:     agent.NewConversationBuffer(cfg.MaxConversationLength),
		cfg: agent.Config{
			MaxConversationLength: cfg.MaxConversationLength,
			SystemPrompt:          cfg.SystemPrompt,
			Temperature:           cfg.Temperature,
			MaxTokens:             cfg.MaxTokens,
		},
		hooks:        cfg.Hooks,
		stateManager: cfg.StateManager,
		limiter:      cfg.Limiter,
	}
	if cfg.TokenModel != "" {
		// A counter only fails to build on a corrupt/missing vocabulary
		// file; accurate token accounting is best-effort, never fatal to
		// agent construction.
		if tc, err := tokens.NewCounter(cfg.TokenModel); err == nil {
			a.tokenCounter = tc
		}
	}
	a.machine = lifecycle.New(cfg.Lifecycle...)
	return a
}

var _ agent.Agent = (*Agent)(nil)

// Metadata implements agent.BaseAgent.
func (a *Agent) Metadata() core.ComponentMetadata { return a.metadata }

// Config implements agent.Agent.
func (a *Agent) Config() agent.Config { return a.cfg }

// GetConversation implements agent.Agent.
func (a *Agent) GetConversation() []core.ConversationMessage { return a.conv.Messages() }

// AddMessage implements agent.Agent.
func (a *Agent) AddMessage(msg core.ConversationMessage) {
	a.conv.Add(msg)
	a.metadata.Touch()
}

// ClearConversation implements agent.Agent.
func (a *Agent) ClearConversation() {
	a.conv.Clear()
	a.metadata.Touch()
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() lifecycle.State { return a.machine.State() }

// ValidateInput implements agent.BaseAgent per spec.md §4.6: rejects empty
// text, and optionally enforces an estimated-token budget against
// MaxTokens.
func (a *Agent) ValidateInput(input core.AgentInput) *core.Error {
	if err := input.ValidateTextOrData(); err != nil {
		return err
	}
	if a.cfg.MaxTokens > 0 {
		estimated := len(input.Text) / estimatedCharsPerToken
		if estimated > a.cfg.MaxTokens {
			return core.Validation(fmt.Sprintf("input estimated at %d tokens exceeds max_tokens %d", estimated, a.cfg.MaxTokens), "text")
		}
	}
	return nil
}

// Execute implements agent.BaseAgent per spec.md §4.6's execute_impl steps.
func (a *Agent) Execute(ec core.ExecutionContext, input core.AgentInput) (core.AgentOutput, *core.Error) {
	start := time.Now()

	if err := a.ValidateInput(input); err != nil {
		return core.AgentOutput{}, err
	}

	if a.limiter != nil {
		res := a.limiter.Allow(agentInvocationsResource, a.metadata.ID.String())
		if !res.Allowed {
			return core.AgentOutput{}, core.ResourceLimit(agentInvocationsResource, res.Limit, res.Current)
		}
	}

	if lerr := a.machine.EnsureExecutable(); lerr != nil {
		return core.AgentOutput{}, core.Component(lerr.Error())
	}

	hctx := hook.NewHookContext(hook.PointBeforeExecution, a.metadata.ID, ec.Correlation.CorrelationID)
	hctx.Data["input_text"] = input.Text
	if cerr := a.dispatchHooks(hctx); cerr != nil {
		return core.AgentOutput{}, cerr
	}

	providerInput := a.buildProviderInput(input)

	output, provErr := a.provider.Complete(ec, providerInput)
	if provErr != nil {
		cerr := core.Provider(a.provider.Name(), "completion request failed", provErr)
		return a.HandleError(ec, cerr), cerr
	}

	a.conv.Add(core.ConversationMessage{Role: core.RoleUser, Content: input.Text, Timestamp: start})
	a.conv.Add(core.ConversationMessage{Role: core.RoleAssistant, Content: output.Text, Timestamp: time.Now()})
	a.stats.TotalInvocations++
	a.stats.SuccessfulInvocations++
	a.metadata.Touch()

	if a.tokenCounter != nil {
		used := a.tokenCounter.CountConversation(a.conv.Messages())
		output.Metadata.TokensUsed = used
		a.stats.TotalTokens += int64(used)
	}

	output.Metadata.DurationMS = time.Since(start).Milliseconds()

	afterCtx := hook.NewHookContext(hook.PointAfterExecution, a.metadata.ID, ec.Correlation.CorrelationID)
	afterCtx.Data["output_text"] = output.Text
	_ = a.dispatchHooks(afterCtx)

	return output, nil
}

// buildProviderInput implements spec.md §4.6 step 2-3: prepend the system
// prompt if present, append a bounded suffix of conversation history, then
// the current user message, attaching temperature/max_tokens as
// parameters.
func (a *Agent) buildProviderInput(input core.AgentInput) core.AgentInput {
	params := map[string]any{}
	for k, v := range input.Parameters {
		params[k] = v
	}
	if a.cfg.Temperature != 0 {
		params["temperature"] = a.cfg.Temperature
	}
	if a.cfg.MaxTokens != 0 {
		params["max_tokens"] = a.cfg.MaxTokens
	}

	history := a.conv.Messages()
	params["system_prompt"] = a.cfg.SystemPrompt
	params["conversation_history"] = history

	return core.AgentInput{Text: input.Text, Parameters: params, Media: input.Media}
}

// HandleError implements agent.BaseAgent: Component/Provider faults drive
// the lifecycle to Error and emit a correlated error event via the hook
// pipeline's OnError point.
func (a *Agent) HandleError(ec core.ExecutionContext, err *core.Error) core.AgentOutput {
	a.stats.TotalInvocations++
	a.stats.FailedInvocations++

	if err != nil && (err.Kind == core.ErrorKindComponent || err.Kind == core.ErrorKindProvider) {
		_ = a.machine.Transition(lifecycle.Error, err.Error(), 0)
	}

	errCtx := hook.NewHookContext(hook.PointOnError, a.metadata.ID, ec.Correlation.CorrelationID)
	if err != nil {
		errCtx.Data["error"] = err.Error()
	}
	_ = a.dispatchHooks(errCtx)

	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	return core.AgentOutput{Text: "", Metadata: core.OutputMetadata{Extra: map[string]any{"error": msg}}}
}

func (a *Agent) dispatchHooks(hctx *hook.HookContext) *core.Error {
	if a.hooks == nil {
		return nil
	}
	_, err := a.hooks.ExecuteHooks(hctx)
	return err
}

// LoadState restores conversation history and tool-usage stats from the
// bound StateManager. Must be called explicitly before Start/Resume per
// spec.md §4.6 ("design decision: avoid hidden I/O on hot paths").
func (a *Agent) LoadState(ec core.ExecutionContext) (bool, *core.Error) {
	if a.stateManager == nil {
		return false, nil
	}
	saved, ok, err := a.stateManager.LoadAgentState(ec, a.metadata.ID.String())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	a.conv.Load(saved.State.ConversationHistory)
	a.stats = saved.State.ToolUsageStats
	return true, nil
}

// saveState best-effort persists PersistentAgentState; failures are logged
// by the caller but never block the lifecycle transition (spec.md §4.6).
func (a *Agent) saveState(ec core.ExecutionContext) *core.Error {
	if a.stateManager == nil {
		return nil
	}
	return a.stateManager.SaveAgentState(ec, state.PersistentAgentState{
		AgentID:   a.metadata.ID.String(),
		AgentType: "llm",
		State: state.AgentState{
			ConversationHistory: a.conv.Messages(),
			ToolUsageStats:      a.stats,
			Custom:              map[string]any{},
		},
		Metadata: map[string]any{},
	})
}

// Start transitions Ready -> Running (or Uninitialized -> ... -> Running
// via EnsureExecutable).
func (a *Agent) Start(ec core.ExecutionContext) error {
	if a.machine.State() == lifecycle.Ready {
		return a.machine.Transition(lifecycle.Running, "start", 0)
	}
	return a.machine.EnsureExecutable()
}

// Pause transitions Running -> Paused, best-effort saving agent state.
func (a *Agent) Pause(ec core.ExecutionContext) error {
	if err := a.machine.Transition(lifecycle.Paused, "pause", 0); err != nil {
		return err
	}
	_ = a.saveState(ec)
	return nil
}

// Resume transitions Paused -> Running. Callers that need restored
// conversation history must call LoadState first.
func (a *Agent) Resume(ec core.ExecutionContext) error {
	return a.machine.Transition(lifecycle.Running, "resume", 0)
}

// Stop transitions the current state to Stopped, best-effort saving agent
// state.
func (a *Agent) Stop(ec core.ExecutionContext) error {
	if err := a.machine.Transition(lifecycle.Stopped, "stop", 0); err != nil {
		return err
	}
	_ = a.saveState(ec)
	return nil
}

// Terminate transitions the current state to Terminated.
func (a *Agent) Terminate(ec core.ExecutionContext) error {
	return a.machine.Transition(lifecycle.Terminated, "terminate", 0)
}
