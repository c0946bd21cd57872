package workflow

import (
	"strings"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/hook"
	"github.com/lexlapax/llmspell/pkg/lifecycle"
)

// EvalContext is the ambient data a Condition evaluates against: the
// workflow's execution context, the accumulated step data (ctx.data in
// spec.md §4.7's JsonPath wording), hook-point/component-type tags of the
// step under evaluation, and the most recent step error (if any).
type EvalContext struct {
	EC            core.ExecutionContext
	Data          map[string]any
	HookPoint     hook.HookPoint
	ComponentType core.ComponentType
	DebugMode     bool
	State         lifecycle.State
	LastError     *core.Error
}

// Condition is the small closed expression language spec.md §4.7 names for
// Conditional branches: Always/Never/HasMetadata/MetadataEquals/
// HookPointMatches/ComponentTypeMatches/DebugMode/ExecutionState/HasError/
// JsonPath, composed via And/Or/Not. None of these exist in the teacher
// (which has no conditional executor); grounded instead on the
// dotted-JSON-path evaluation idiom common to config-driven routers in the
// wider example pack.
type Condition interface {
	Evaluate(ctx EvalContext) bool
}

// Always always evaluates true.
type Always struct{}

func (Always) Evaluate(EvalContext) bool { return true }

// Never always evaluates false.
type Never struct{}

func (Never) Evaluate(EvalContext) bool { return false }

// HasMetadata evaluates true iff ctx.Data carries a non-nil entry at Key.
type HasMetadata struct{ Key string }

func (c HasMetadata) Evaluate(ctx EvalContext) bool {
	v, ok := ctx.Data[c.Key]
	return ok && v != nil
}

// MetadataEquals evaluates true iff ctx.Data[Key] equals Value.
type MetadataEquals struct {
	Key   string
	Value any
}

func (c MetadataEquals) Evaluate(ctx EvalContext) bool {
	v, ok := ctx.Data[c.Key]
	if !ok {
		return false
	}
	return v == c.Value
}

// HookPointMatches evaluates true iff the step under evaluation is tagged
// with the given hook.HookPoint.
type HookPointMatches struct{ Point hook.HookPoint }

func (c HookPointMatches) Evaluate(ctx EvalContext) bool { return ctx.HookPoint == c.Point }

// ComponentTypeMatches evaluates true iff the step's component is of the
// given core.ComponentType.
type ComponentTypeMatches struct{ Type core.ComponentType }

func (c ComponentTypeMatches) Evaluate(ctx EvalContext) bool { return ctx.ComponentType == c.Type }

// DebugMode evaluates true iff the workflow is running with debug mode set.
type DebugMode struct{}

func (DebugMode) Evaluate(ctx EvalContext) bool { return ctx.DebugMode }

// ExecutionState evaluates true iff the owning component's lifecycle state
// equals the given state.
type ExecutionState struct{ State lifecycle.State }

func (c ExecutionState) Evaluate(ctx EvalContext) bool { return ctx.State == c.State }

// HasError evaluates true iff the prior step recorded a non-nil error.
type HasError struct{}

func (HasError) Evaluate(ctx EvalContext) bool { return ctx.LastError != nil }

// JsonPath evaluates a dotted path ("a.b.c") over ctx.Data against an
// expected value, per spec.md §4.7: "JSON-path evaluation supports dotted
// notation over ctx.data".
type JsonPath struct {
	Path     string
	Expected any
}

func (c JsonPath) Evaluate(ctx EvalContext) bool {
	v, ok := resolveDottedPath(ctx.Data, c.Path)
	if !ok {
		return false
	}
	return v == c.Expected
}

func resolveDottedPath(data map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = data
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// And evaluates true iff every operand evaluates true (empty And is true).
type And []Condition

func (c And) Evaluate(ctx EvalContext) bool {
	for _, cond := range c {
		if !cond.Evaluate(ctx) {
			return false
		}
	}
	return true
}

// Or evaluates true iff any operand evaluates true (empty Or is false).
type Or []Condition

func (c Or) Evaluate(ctx EvalContext) bool {
	for _, cond := range c {
		if cond.Evaluate(ctx) {
			return true
		}
	}
	return false
}

// Not negates its operand.
type Not struct{ Cond Condition }

func (c Not) Evaluate(ctx EvalContext) bool { return !c.Cond.Evaluate(ctx) }
