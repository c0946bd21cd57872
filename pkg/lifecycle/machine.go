// Package lifecycle implements the 8-state agent lifecycle machine from
// spec.md §4.5: guarded transitions, per-transition deadlines, and feature
// flags controlling logging/hooks/circuit-breaker behavior. Generalized
// from the teacher's fixed `ExecutionPhase` checkpoint-phase enum
// (pkg/agent/execution_state.go) into a full transition-guarded state
// machine with an explicit allowed-transition table instead of a flat set
// of phase constants.
package lifecycle

import (
	"fmt"
	"sync"
	"time"
)

// State enumerates the lifecycle states spec.md §4.5 names.
type State string

const (
	Uninitialized State = "uninitialized"
	Initializing  State = "initializing"
	Ready         State = "ready"
	Running       State = "running"
	Paused        State = "paused"
	Stopped       State = "stopped"
	Terminated    State = "terminated"
	Error         State = "error"
)

// allowedTransitions is the guarded transition relation from spec.md §4.5.
// Error is reachable from any non-terminal state, encoded separately in
// Transition rather than repeated in every row.
var allowedTransitions = map[State][]State{
	Uninitialized: {Initializing},
	Initializing:  {Ready, Error},
	Ready:         {Running, Terminated, Error},
	Running:       {Paused, Stopped, Error},
	Paused:        {Running, Stopped, Error},
	Stopped:       {Ready, Terminated},
	Error:         {Ready, Terminated},
	Terminated:    {},
}

// terminalStates have no outgoing transitions.
var terminalStates = map[State]bool{Terminated: true}

// CanTransition reports whether from -> to is a legal transition per
// spec.md §4.5's table.
func CanTransition(from, to State) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanExecute reports whether a component in this state may accept
// Execute calls (spec.md §4.5: "true iff current ∈ {Ready, Running}").
func (s State) CanExecute() bool {
	return s == Ready || s == Running
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return terminalStates[s]
}

// FeatureFlags toggles per-state-machine instrumentation, per spec.md §4.5.
type FeatureFlags struct {
	EnableLogging        bool
	EnableHooks          bool
	EnableCircuitBreaker bool
}

// DefaultFeatureFlags matches the teacher's "observability on by default"
// posture: logging and hooks enabled, circuit breaker opt-in per agent.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{EnableLogging: true, EnableHooks: true}
}

// TransitionEvent is emitted on every successful or failed transition
// attempt, for callers that want to bridge it onto the hook/event
// pipelines without this package importing either (avoiding an import
// cycle: pkg/hook and pkg/event would otherwise need to import
// pkg/lifecycle for typed state values).
type TransitionEvent struct {
	From      State
	To        State
	Timestamp time.Time
	Reason    string
	Timeout   bool
}

// Hooks fire "state.enter"/"state.exit" around every transition when
// FeatureFlags.EnableHooks is set. Defined as a narrow interface (rather
// than importing pkg/hook) for the same import-cycle reason as
// core.StateHandle/EventSink in pkg/core.
type Hooks interface {
	OnExit(from State)
	OnEnter(to State)
}

// Machine is the guarded lifecycle state machine for one agent or workflow
// instance. Not safe for use by value; always construct via New.
type Machine struct {
	mu sync.Mutex

	state        State
	flags        FeatureFlags
	hooks        Hooks
	onTransition func(TransitionEvent)

	// maxTransitionTime bounds every transition's duration; exceeding it
	// forces a transition to Error with reason "transition timeout" per
	// spec.md §4.5.
	maxTransitionTime time.Duration
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithFeatureFlags overrides the default feature flags.
func WithFeatureFlags(f FeatureFlags) Option {
	return func(m *Machine) { m.flags = f }
}

// WithHooks attaches a Hooks implementation invoked around transitions when
// hooks are enabled.
func WithHooks(h Hooks) Option {
	return func(m *Machine) { m.hooks = h }
}

// WithMaxTransitionTime sets the per-transition deadline (default 5s).
func WithMaxTransitionTime(d time.Duration) Option {
	return func(m *Machine) { m.maxTransitionTime = d }
}

// WithOnTransition registers a callback invoked after every transition
// attempt (successful or not), letting a caller bridge transitions onto an
// event bus without this package depending on pkg/event.
func WithOnTransition(fn func(TransitionEvent)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// New constructs a Machine starting in Uninitialized.
func New(opts ...Option) *Machine {
	m := &Machine{
		state:             Uninitialized,
		flags:             DefaultFeatureFlags(),
		maxTransitionTime: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanExecute reports whether the machine's current state accepts Execute.
func (m *Machine) CanExecute() bool {
	return m.State().CanExecute()
}

// Transition attempts from the current state to `to`, honoring the
// deadline and guard table. The transition's elapsed time is threaded in
// (rather than measured here) so callers/tests can simulate a slow
// transition without a real sleep.
func (m *Machine) Transition(to State, reason string, elapsed time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state

	if elapsed > m.maxTransitionTime {
		m.state = Error
		m.emitLocked(from, Error, "transition timeout", true)
		return fmt.Errorf("lifecycle: transition %s->%s exceeded max_transition_time: %s", from, to, reason)
	}

	legal := (to == Error && !from.Terminal()) || CanTransition(from, to)
	if !legal {
		return fmt.Errorf("lifecycle: illegal transition %s->%s", from, to)
	}

	if m.flags.EnableHooks && m.hooks != nil {
		m.hooks.OnExit(from)
	}
	m.state = to
	if m.flags.EnableHooks && m.hooks != nil {
		m.hooks.OnEnter(to)
	}
	m.emitLocked(from, to, reason, false)
	return nil
}

func (m *Machine) emitLocked(from, to State, reason string, timeout bool) {
	if m.onTransition == nil {
		return
	}
	m.onTransition(TransitionEvent{From: from, To: to, Timestamp: time.Now(), Reason: reason, Timeout: timeout})
}

// EnsureExecutable implements spec.md §4.5's "auto-initialize" convenience:
// invoking execute from Uninitialized drives initialize()->start() first;
// invoking from any other non-executable state is a hard failure.
func (m *Machine) EnsureExecutable() error {
	if m.CanExecute() {
		return nil
	}
	if m.State() == Uninitialized {
		if err := m.Transition(Initializing, "auto-initialize on first execute", 0); err != nil {
			return err
		}
		if err := m.Transition(Ready, "auto-initialize on first execute", 0); err != nil {
			return err
		}
		return m.Transition(Running, "auto-start on first execute", 0)
	}
	return fmt.Errorf("lifecycle: cannot execute in state %s", m.State())
}
