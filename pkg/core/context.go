package core

import (
	"context"
	"time"
)

// StateHandle is the narrow state-manager surface an ExecutionContext
// carries, so pkg/core never imports pkg/state (which imports pkg/core for
// Error/ComponentId). pkg/state.Manager satisfies this interface. Methods
// take the full ExecutionContext (not a bare context.Context) because tenant
// isolation is enforced from ec.TenantOrDefault(), not threaded separately.
type StateHandle interface {
	Get(ec ExecutionContext, scope StateScope, key string) (any, bool, *Error)
	Set(ec ExecutionContext, scope StateScope, key string, value any) *Error
	Delete(ec ExecutionContext, scope StateScope, key string) (bool, *Error)
	List(ec ExecutionContext, scope StateScope, prefix string) ([]string, *Error)
}

// EventSink is the narrow event-bus surface an ExecutionContext carries.
// pkg/event.Bus satisfies this interface.
type EventSink interface {
	Publish(ec ExecutionContext, topic string, eventType string, payload map[string]any, corr CorrelationContext)
}

// CorrelationContext groups events and hook executions belonging to one
// logical operation. Root contexts have RootID == CorrelationID and no
// parent; children inherit RootID, record ParentID, and mint a fresh
// CorrelationID.
type CorrelationContext struct {
	CorrelationID string
	ParentID      string
	RootID        string
	CreatedAt     time.Time
	Metadata      map[string]string
	Tags          []string
}

// IsRoot reports whether this correlation context has no parent.
func (c CorrelationContext) IsRoot() bool {
	return c.ParentID == "" && c.CorrelationID == c.RootID
}

// ExecutionContext is the ambient, cloneable bundle propagated unchanged
// into nested invocations: correlation id, scope, state handle, event sink,
// cancellation, and deadline. One is constructed per in-flight Execute call.
type ExecutionContext struct {
	context.Context

	Correlation CorrelationContext
	Scope       StateScope
	Tenant      string
	State       StateHandle
	Events      EventSink

	deadline time.Time
}

// NewExecutionContext builds a root ExecutionContext over a standard
// context.Context, rooted at the caller-supplied correlation id.
func NewExecutionContext(ctx context.Context, scope StateScope, state StateHandle, events EventSink, correlationID string) ExecutionContext {
	return ExecutionContext{
		Context: ctx,
		Correlation: CorrelationContext{
			CorrelationID: correlationID,
			RootID:        correlationID,
			CreatedAt:     timeNow(),
			Metadata:      map[string]string{},
		},
		Scope:  scope,
		State:  state,
		Events: events,
	}
}

// Child derives a nested ExecutionContext for a sub-invocation: the scope,
// state handle, and event sink propagate unchanged, but a fresh correlation
// id is minted with this context's id recorded as parent and root_id
// inherited, per spec.md §8 invariant 8.
func (ec ExecutionContext) Child(childCorrelationID string) ExecutionContext {
	root := ec.Correlation.RootID
	if root == "" {
		root = ec.Correlation.CorrelationID
	}
	return ExecutionContext{
		Context: ec.Context,
		Correlation: CorrelationContext{
			CorrelationID: childCorrelationID,
			ParentID:      ec.Correlation.CorrelationID,
			RootID:        root,
			CreatedAt:     timeNow(),
			Metadata:      map[string]string{},
		},
		Scope:    ec.Scope,
		Tenant:   ec.Tenant,
		State:    ec.State,
		Events:   ec.Events,
		deadline: ec.deadline,
	}
}

// WithScope returns a copy of ec scoped to a different StateScope, used when
// a workflow step or sub-agent should read/write a narrower scope than its
// caller.
func (ec ExecutionContext) WithScope(scope StateScope) ExecutionContext {
	ec.Scope = scope
	return ec
}

// WithTenant returns a copy of ec bound to a different tenant. Every state
// and storage call made through this ExecutionContext carries this tenant,
// per spec.md's "active tenant set via scoped context" isolation rule.
func (ec ExecutionContext) WithTenant(tenant string) ExecutionContext {
	ec.Tenant = tenant
	return ec
}

// TenantOrDefault returns ec.Tenant, or "default" if the context was
// constructed without an explicit tenant (the common single-tenant case).
func (ec ExecutionContext) TenantOrDefault() string {
	if ec.Tenant == "" {
		return "default"
	}
	return ec.Tenant
}

// WithDeadline returns a copy of ec whose underlying context carries the
// given deadline, alongside the shorter-wins bookkeeping workflows need
// (spec.md §5: "Workflow steps honor both step-level and workflow-level
// deadlines; the shorter wins").
func (ec ExecutionContext) WithDeadline(d time.Time) (ExecutionContext, context.CancelFunc) {
	if !ec.deadline.IsZero() && ec.deadline.Before(d) {
		d = ec.deadline
	}
	nctx, cancel := context.WithDeadline(ec.Context, d)
	ec.Context = nctx
	ec.deadline = d
	return ec, cancel
}

// Deadline returns the effective deadline, if any, combining the context's
// own deadline with any explicitly narrowed deadline recorded via
// WithDeadline.
func (ec ExecutionContext) Deadline() (time.Time, bool) {
	if !ec.deadline.IsZero() {
		return ec.deadline, true
	}
	return ec.Context.Deadline()
}

// Cancelled reports whether the context has been cancelled or its deadline
// has passed, the condition suspendable operations must check at each await
// point per spec.md §5.
func (ec ExecutionContext) Cancelled() bool {
	select {
	case <-ec.Context.Done():
		return true
	default:
		return false
	}
}
