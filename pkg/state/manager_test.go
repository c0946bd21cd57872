package state

import (
	"context"
	"testing"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/storage/memdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSink struct {
	topics []string
	types  []string
}

func (s *capturingSink) Publish(ec core.ExecutionContext, topic, eventType string, payload map[string]any, corr core.CorrelationContext) {
	s.topics = append(s.topics, topic)
	s.types = append(s.types, eventType)
}

func newTestManager() (*Manager, *capturingSink) {
	return NewManager(memdb.New()), &capturingSink{}
}

func TestManager_SetGetDelete(t *testing.T) {
	m, sink := newTestManager()
	ec := core.NewExecutionContext(context.Background(), core.AgentScope("a1"), nil, sink, "c1")

	v, ok, err := m.Get(ec, ec.Scope, "foo")
	require.Nil(t, err)
	assert.False(t, ok)

	require.Nil(t, m.Set(ec, ec.Scope, "foo", map[string]any{"bar": 1.0}))
	assert.Len(t, sink.types, 1)
	assert.Equal(t, "state_changed", sink.types[0])

	v, ok, err = m.Get(ec, ec.Scope, "foo")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"bar": 1.0}, v)

	existed, err := m.Delete(ec, ec.Scope, "foo")
	require.Nil(t, err)
	assert.True(t, existed)
}

func TestManager_ListStripsScopePrefix(t *testing.T) {
	m, _ := newTestManager()
	ec := core.NewExecutionContext(context.Background(), core.AgentScope("a1"), nil, nil, "c1")

	require.Nil(t, m.Set(ec, ec.Scope, "conversation", "x"))
	require.Nil(t, m.Set(ec, ec.Scope, "stats", "y"))

	keys, err := m.List(ec, ec.Scope, "")
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{"conversation", "stats"}, keys)
}

func TestManager_TenantIsolation(t *testing.T) {
	m, _ := newTestManager()
	ecA := core.NewExecutionContext(context.Background(), core.Global(), nil, nil, "c1").WithTenant("a")
	ecB := core.NewExecutionContext(context.Background(), core.Global(), nil, nil, "c2").WithTenant("b")

	require.Nil(t, m.Set(ecA, ecA.Scope, "shared", "from-a"))
	require.Nil(t, m.Set(ecB, ecB.Scope, "shared", "from-b"))

	vA, _, err := m.Get(ecA, ecA.Scope, "shared")
	require.Nil(t, err)
	assert.Equal(t, "from-a", vA)

	vB, _, err := m.Get(ecB, ecB.Scope, "shared")
	require.Nil(t, err)
	assert.Equal(t, "from-b", vB)
}

func TestManager_LoadSaveAgentState(t *testing.T) {
	m, _ := newTestManager()
	ec := core.NewExecutionContext(context.Background(), core.AgentScope("a1"), nil, nil, "c1")

	_, ok, err := m.LoadAgentState(ec, "a1")
	require.Nil(t, err)
	assert.False(t, ok)

	s := PersistentAgentState{
		AgentID:   "a1",
		AgentType: "llm",
		State: AgentState{
			ConversationHistory: []core.ConversationMessage{
				{Role: core.RoleUser, Content: "hi"},
				{Role: core.RoleAssistant, Content: "hello"},
			},
		},
		Metadata: map[string]any{},
	}
	require.Nil(t, m.SaveAgentState(ec, s))

	loaded, ok, err := m.LoadAgentState(ec, "a1")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, s.AgentID, loaded.AgentID)
	require.Len(t, loaded.State.ConversationHistory, 2)
	assert.Equal(t, core.RoleUser, loaded.State.ConversationHistory[0].Role)
	assert.Equal(t, "hello", loaded.State.ConversationHistory[1].Content)
}
