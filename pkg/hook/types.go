// Package hook implements the hook registry and executor from spec.md
// §4.4: ordered dispatch of interceptors at well-defined HookPoints, a
// per-hook circuit breaker, an LRU+TTL result cache, and replayable
// persistence. Grounded on the priority-sorted registration/dispatch shape
// of haasonsaas-nexus's internal/hooks.Registry, generalized from a single
// Trigger-and-log-errors dispatch into the spec's richer HookResult sum
// type (Continue/Modified/Cancel/Skip/Retry).
package hook

import (
	"time"

	"github.com/lexlapax/llmspell/pkg/core"
)

// HookPoint closes the set of instrumentation sites spec.md §4.4 names.
// Custom(name) extends the set at runtime for subsystem-specific points
// (e.g. "state.enter"/"state.exit" from the lifecycle machine, §4.5).
type HookPoint string

const (
	PointSystemStartup   HookPoint = "system_startup"
	PointSystemShutdown  HookPoint = "system_shutdown"
	PointBeforeExecution HookPoint = "before_execution"
	PointAfterExecution  HookPoint = "after_execution"
	PointOnError         HookPoint = "on_error"
	PointStateChange     HookPoint = "state_change"
	PointMigrationStart  HookPoint = "migration_start"
	PointMigrationEnd    HookPoint = "migration_end"
)

// Custom builds a HookPoint for a subsystem-specific extension point, e.g.
// Custom("state.enter").
func Custom(name string) HookPoint { return HookPoint("custom:" + name) }

// Priority orders hooks at a HookPoint: lower runs first, FIFO within an
// equal priority (spec.md §4.4, invariant 9).
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 10
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 90
	PriorityLowest  Priority = 100
)

// Language tags the scripting surface (if any) a hook was registered from;
// the core never interprets it beyond carrying it through to HookContext.
type Language string

const (
	LanguageNone Language = ""
	LanguageGo   Language = "go"
	LanguageLua  Language = "lua"
	LanguageJS   Language = "javascript"
)

// HookContext is the mutable per-invocation bag passed to every hook in a
// chain. Hooks read/write Data to pass information to later hooks and back
// to the caller (via ResultKind Modified).
type HookContext struct {
	Point         HookPoint
	ComponentID   core.ComponentId
	Data          map[string]any
	Metadata      map[string]string
	LanguageTag   Language
	CorrelationID string
}

// NewHookContext builds an empty HookContext ready for dispatch.
func NewHookContext(point HookPoint, componentID core.ComponentId, correlationID string) *HookContext {
	return &HookContext{
		Point:         point,
		ComponentID:   componentID,
		Data:          map[string]any{},
		Metadata:      map[string]string{},
		CorrelationID: correlationID,
	}
}

// ResultKind closes the sum type a Hook.Execute may return.
type ResultKind string

const (
	ResultContinue ResultKind = "continue"
	ResultModified ResultKind = "modified"
	ResultCancel   ResultKind = "cancel"
	ResultSkip     ResultKind = "skip"
	ResultRetry    ResultKind = "retry"
)

// HookResult is the outcome of one hook's Execute call.
type HookResult struct {
	Kind ResultKind

	// Modified
	Value any

	// Cancel
	Reason string

	// Retry
	Delay time.Duration
}

// Continue is the default, no-op result.
func Continue() HookResult { return HookResult{Kind: ResultContinue} }

// Modified wraps a replacement value to merge into ctx.Data.
func Modified(value any) HookResult { return HookResult{Kind: ResultModified, Value: value} }

// Cancel aborts the remainder of the chain with reason.
func Cancel(reason string) HookResult { return HookResult{Kind: ResultCancel, Reason: reason} }

// Skip skips only the current hook, continuing the chain.
func Skip() HookResult { return HookResult{Kind: ResultSkip} }

// Retry re-executes the same hook after delay, bounded by its retry budget.
func Retry(delay time.Duration) HookResult { return HookResult{Kind: ResultRetry, Delay: delay} }

// Hook is the contract every registered interceptor implements.
type Hook interface {
	Execute(ctx *HookContext) (HookResult, error)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx *HookContext) (HookResult, error)

// Execute implements Hook.
func (f HookFunc) Execute(ctx *HookContext) (HookResult, error) { return f(ctx) }

// ReplayableHook is implemented by hooks whose invocation context can be
// serialized and later replayed offline (spec.md §4.4).
type ReplayableHook interface {
	Hook
	SerializeContext(ctx *HookContext) ([]byte, error)
	DeserializeContext(data []byte) (*HookContext, error)
	ReplayID() string
}

// Metadata describes a registered hook for HookRegistry.List.
type Metadata struct {
	Token           string
	Point           HookPoint
	Priority        Priority
	Language        Language
	Name            string
	Replayable      bool
	Pure            bool
	PropagateErrors bool
}
