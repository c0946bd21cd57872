package hook

import (
	"context"
	"testing"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/storage/memdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoReplayHook struct {
	response HookResult
}

func (h *echoReplayHook) Execute(ctx *HookContext) (HookResult, error) { return h.response, nil }
func (h *echoReplayHook) SerializeContext(ctx *HookContext) ([]byte, error) {
	return []byte(ctx.CorrelationID), nil
}
func (h *echoReplayHook) DeserializeContext(data []byte) (*HookContext, error) {
	return NewHookContext(PointBeforeExecution, core.ComponentId{}, string(data)), nil
}
func (h *echoReplayHook) ReplayID() string { return "echo-hook" }

func TestStorageRecorder_RecordAndRetrieve(t *testing.T) {
	rec := NewStorageRecorder(memdb.New(), "default")
	require.NoError(t, rec.Record("corr-1", SerializedHookExecution{HookReplayID: "h1", Result: Continue()}))
	require.NoError(t, rec.Record("corr-1", SerializedHookExecution{HookReplayID: "h2", Result: Continue()}))

	execs, err := rec.Executions(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, 0, execs[0].Seq)
	assert.Equal(t, 1, execs[1].Seq)
}

func TestReplayManager_ReplayMatches(t *testing.T) {
	reg := NewRegistry()
	h := &echoReplayHook{response: Continue()}
	reg.Register(PointBeforeExecution, h, WithHookName("echo"))

	rec := NewStorageRecorder(memdb.New(), "default")
	require.NoError(t, rec.Record("corr-1", SerializedHookExecution{
		HookReplayID:  "echo-hook",
		SerializedCtx: []byte("corr-1"),
		Result:        Continue(),
	}))

	mgr := NewReplayManager(rec, reg)
	mismatches, err := mgr.Replay(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Empty(t, mismatches["echo-hook"])
}

func TestReplayManager_ReplayDetectsMismatch(t *testing.T) {
	reg := NewRegistry()
	h := &echoReplayHook{response: Cancel("changed")}
	reg.Register(PointBeforeExecution, h, WithHookName("echo"))

	rec := NewStorageRecorder(memdb.New(), "default")
	require.NoError(t, rec.Record("corr-1", SerializedHookExecution{
		HookReplayID:  "echo-hook",
		SerializedCtx: []byte("corr-1"),
		Result:        Continue(),
	}))

	mgr := NewReplayManager(rec, reg)
	mismatches, err := mgr.Replay(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.NotEmpty(t, mismatches["echo-hook"])
}
