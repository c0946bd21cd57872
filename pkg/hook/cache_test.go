package hook

import (
	"testing"
	"time"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_HitMissAndStats(t *testing.T) {
	c := NewResultCache(8, time.Minute)
	key := BuildKey(PointBeforeExecution, core.ComponentId{}, nil, nil, LanguageNone)

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, Continue(), 0)
	result, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, ResultContinue, result.Kind)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestResultCache_TTLExpiration(t *testing.T) {
	c := NewResultCache(8, time.Millisecond)
	key := BuildKey(PointBeforeExecution, core.ComponentId{}, nil, nil, LanguageNone)
	c.Put(key, Continue(), time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestResultCache_KeyDeterministic(t *testing.T) {
	cid := core.NewComponentId(core.ComponentTypeAgent, "a")
	data := map[string]any{"x": 1.0, "y": "z"}
	k1 := BuildKey(PointBeforeExecution, cid, data, nil, LanguageGo)
	k2 := BuildKey(PointBeforeExecution, cid, map[string]any{"y": "z", "x": 1.0}, nil, LanguageGo)
	assert.Equal(t, k1, k2)
}

func TestResultCache_SweepRemovesExpired(t *testing.T) {
	c := NewResultCache(8, 0)
	key := BuildKey(PointBeforeExecution, core.ComponentId{}, nil, nil, LanguageNone)
	c.Put(key, Continue(), time.Nanosecond)
	time.Sleep(time.Millisecond)

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
}
