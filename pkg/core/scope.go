package core

import "fmt"

// ScopeKind closes the set of namespaces a StateScope can denote.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeAgent    ScopeKind = "agent"
	ScopeWorkflow ScopeKind = "workflow"
	ScopeSession  ScopeKind = "session"
	ScopeTenant   ScopeKind = "tenant"
	ScopeCustom   ScopeKind = "custom"
)

// StateScope is a sum type determining the physical key prefix and ACL
// domain for state access, per spec.md §3. The zero value is ScopeGlobal.
type StateScope struct {
	Kind ScopeKind
	// ID is the scoping identifier (agent id, workflow exec id, session id,
	// tenant id, or a custom tag); empty for ScopeGlobal.
	ID string
}

// Global returns the process-wide scope.
func Global() StateScope { return StateScope{Kind: ScopeGlobal} }

// AgentScope scopes state to a single agent instance.
func AgentScope(agentID string) StateScope { return StateScope{Kind: ScopeAgent, ID: agentID} }

// WorkflowScope scopes state to a single workflow execution.
func WorkflowScope(execID string) StateScope { return StateScope{Kind: ScopeWorkflow, ID: execID} }

// SessionScope scopes state to a session.
func SessionScope(sessionID string) StateScope { return StateScope{Kind: ScopeSession, ID: sessionID} }

// TenantScope scopes state to a tenant.
func TenantScope(tenantID string) StateScope { return StateScope{Kind: ScopeTenant, ID: tenantID} }

// CustomScope scopes state to an arbitrary named namespace.
func CustomScope(tag string) StateScope { return StateScope{Kind: ScopeCustom, ID: tag} }

// Tag renders the scope as the backend-independent "scope_tag" used in
// persisted key layouts (spec.md §6): "{kind}" for Global, "{kind}/{id}"
// otherwise.
func (s StateScope) Tag() string {
	if s.Kind == "" {
		s.Kind = ScopeGlobal
	}
	if s.Kind == ScopeGlobal || s.ID == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s/%s", s.Kind, s.ID)
}

// String implements fmt.Stringer.
func (s StateScope) String() string { return s.Tag() }
