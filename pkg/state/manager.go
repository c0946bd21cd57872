package state

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/storage"
)

const agentStateKeySuffix = "__state__"

// scopeKey renders the backend-independent "scope://{scope_tag}/{key}"
// layout from spec.md §6, with the agent-state special case
// "scope://agent/{agent_id}/__state__" falling naturally out of it when key
// == agentStateKeySuffix.
func scopeKey(scope core.StateScope, key string) string {
	return fmt.Sprintf("scope://%s/%s", scope.Tag(), key)
}

func agentStateKey(agentID string) string {
	return scopeKey(core.AgentScope(agentID), agentStateKeySuffix)
}

// Manager is the scope-keyed KV store described in spec.md §4.2. It
// implements core.StateHandle so it can be embedded directly into an
// ExecutionContext, and emits a "state_changed" event (correlated with the
// writing context) on every Set.
type Manager struct {
	backend storage.Backend
}

// NewManager wraps a storage.Backend with scope/schema-version semantics.
func NewManager(backend storage.Backend) *Manager {
	return &Manager{backend: backend}
}

var _ core.StateHandle = (*Manager)(nil)

// Get reads key under scope, decoding the stored JSON into an any. Returns
// ok=false if no entry exists.
func (m *Manager) Get(ec core.ExecutionContext, scope core.StateScope, key string) (any, bool, *core.Error) {
	entry, ok, err := m.backend.Get(ec, ec.TenantOrDefault(), scopeKey(scope, key))
	if err != nil {
		return nil, false, core.Storage("get", err.Error(), err)
	}
	if !ok {
		return nil, false, nil
	}

	var value any
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return nil, false, core.Storage("get", "stored value is not valid JSON", err)
	}
	return value, true, nil
}

// Set overwrites key under scope and publishes a correlated "state_changed"
// event, per spec.md §4.2.
func (m *Manager) Set(ec core.ExecutionContext, scope core.StateScope, key string, value any) *core.Error {
	raw, err := json.Marshal(value)
	if err != nil {
		return core.Validation(fmt.Sprintf("value is not JSON-serializable: %v", err), key)
	}

	if err := m.backend.Set(ec, ec.TenantOrDefault(), scopeKey(scope, key), storage.Entry{Value: raw}); err != nil {
		return core.Storage("set", err.Error(), err)
	}

	if ec.Events != nil {
		ec.Events.Publish(ec, "state."+scope.Tag(), "state_changed", map[string]any{
			"scope": scope.Tag(),
			"key":   key,
		}, ec.Correlation)
	}
	return nil
}

// Delete removes key under scope, reporting whether it existed.
func (m *Manager) Delete(ec core.ExecutionContext, scope core.StateScope, key string) (bool, *core.Error) {
	existed, err := m.backend.Delete(ec, ec.TenantOrDefault(), scopeKey(scope, key))
	if err != nil {
		return false, core.Storage("delete", err.Error(), err)
	}
	return existed, nil
}

// List returns the relative keys (scope-prefix stripped) under scope whose
// name starts with prefix.
func (m *Manager) List(ec core.ExecutionContext, scope core.StateScope, prefix string) ([]string, *core.Error) {
	backendPrefix := scopeKey(scope, prefix)
	fullKeys, err := m.backend.List(ec, ec.TenantOrDefault(), backendPrefix)
	if err != nil {
		return nil, core.Storage("list", err.Error(), err)
	}

	scopePrefix := fmt.Sprintf("scope://%s/", scope.Tag())
	keys := make([]string, 0, len(fullKeys))
	for _, k := range fullKeys {
		keys = append(keys, strings.TrimPrefix(k, scopePrefix))
	}
	return keys, nil
}

// LoadAgentState reads an agent's full PersistentAgentState, or ok=false if
// it has never been saved.
func (m *Manager) LoadAgentState(ec core.ExecutionContext, agentID string) (PersistentAgentState, bool, *core.Error) {
	entry, ok, err := m.backend.Get(ec, ec.TenantOrDefault(), agentStateKey(agentID))
	if err != nil {
		return PersistentAgentState{}, false, core.Storage("load_agent_state", err.Error(), err)
	}
	if !ok {
		return PersistentAgentState{}, false, nil
	}

	var s PersistentAgentState
	if err := json.Unmarshal(entry.Value, &s); err != nil {
		return PersistentAgentState{}, false, core.Storage("load_agent_state", "stored state is not valid JSON", err)
	}
	return s, true, nil
}

// SaveAgentState persists an agent's full PersistentAgentState as a single
// unit, keyed by agent_id.
func (m *Manager) SaveAgentState(ec core.ExecutionContext, s PersistentAgentState) *core.Error {
	raw, err := json.Marshal(s)
	if err != nil {
		return core.Validation(fmt.Sprintf("agent state is not JSON-serializable: %v", err))
	}

	if err := m.backend.Set(ec, ec.TenantOrDefault(), agentStateKey(s.AgentID), storage.Entry{Value: raw}); err != nil {
		return core.Storage("save_agent_state", err.Error(), err)
	}

	if ec.Events != nil {
		ec.Events.Publish(ec, "state.agent."+s.AgentID, "state_changed", map[string]any{
			"scope":    core.AgentScope(s.AgentID).Tag(),
			"agent_id": s.AgentID,
		}, ec.Correlation)
	}
	return nil
}
