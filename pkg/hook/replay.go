package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lexlapax/llmspell/pkg/storage"
)

// replayExecutionsKeyPrefix mirrors the persisted layout from spec.md §6:
// hook_executions/{correlation_id}/{seq}.
const replayExecutionsKeyPrefix = "hook_executions"

func replayKey(correlationID string, seq int) string {
	return fmt.Sprintf("%s/%s/%d", replayExecutionsKeyPrefix, correlationID, seq)
}

// StorageRecorder persists SerializedHookExecution records under the
// storage.Backend key layout from spec.md §6, grounded on the teacher's
// checkpoint Storage (pkg/checkpoint/storage.go), which persists structured
// JSON blobs under a service-backed key scheme the same way.
type StorageRecorder struct {
	backend storage.Backend
	tenant  string

	mu   sync.Mutex
	seqs map[string]*atomic.Int64
}

// NewStorageRecorder builds a recorder over backend for the given tenant.
func NewStorageRecorder(backend storage.Backend, tenant string) *StorageRecorder {
	return &StorageRecorder{backend: backend, tenant: tenant, seqs: make(map[string]*atomic.Int64)}
}

func (r *StorageRecorder) nextSeq(correlationID string) int64 {
	r.mu.Lock()
	ctr, ok := r.seqs[correlationID]
	if !ok {
		ctr = &atomic.Int64{}
		r.seqs[correlationID] = ctr
	}
	r.mu.Unlock()
	return ctr.Add(1) - 1
}

// Record implements ReplayRecorder.
func (r *StorageRecorder) Record(correlationID string, exec SerializedHookExecution) error {
	exec.Seq = int(r.nextSeq(correlationID))
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("hook: marshal replay record: %w", err)
	}
	return r.backend.Set(context.Background(), r.tenant, replayKey(correlationID, exec.Seq), storage.Entry{Value: raw})
}

// Executions returns every recorded execution for correlationID, in
// ascending sequence order.
func (r *StorageRecorder) Executions(ctx context.Context, correlationID string) ([]SerializedHookExecution, error) {
	prefix := fmt.Sprintf("%s/%s/", replayExecutionsKeyPrefix, correlationID)
	keys, err := r.backend.List(ctx, r.tenant, prefix)
	if err != nil {
		return nil, fmt.Errorf("hook: list replay records: %w", err)
	}

	out := make([]SerializedHookExecution, 0, len(keys))
	for _, key := range keys {
		entry, ok, err := r.backend.Get(ctx, r.tenant, key)
		if err != nil {
			return nil, fmt.Errorf("hook: get replay record %q: %w", key, err)
		}
		if !ok {
			continue
		}
		var exec SerializedHookExecution
		if err := json.Unmarshal(entry.Value, &exec); err != nil {
			return nil, fmt.Errorf("hook: decode replay record %q: %w", key, err)
		}
		out = append(out, exec)
	}
	sortBySeq(out)
	return out, nil
}

func sortBySeq(execs []SerializedHookExecution) {
	for i := 1; i < len(execs); i++ {
		for j := i; j > 0 && execs[j].Seq < execs[j-1].Seq; j-- {
			execs[j], execs[j-1] = execs[j-1], execs[j]
		}
	}
}

// Mismatch describes one field-by-field difference a replay comparison
// found between the recorded result and the freshly re-executed one. This
// is the supplemented "replay diffing" feature from SPEC_FULL.md §9
// (grounded on original_source/llmspell-hooks' ReplayManager, which
// compares field-by-field rather than whole-result equality).
type Mismatch struct {
	Field    string
	Expected any
	Actual   any
}

// ReplayManager reconstructs a recorded hook session by re-deserializing
// contexts and re-invoking the registered hooks, comparing outputs against
// the recorded results. Mismatches are reported, never used to mutate
// state, per spec.md §4.4.
type ReplayManager struct {
	recorder *StorageRecorder
	registry *Registry
}

// NewReplayManager builds a manager over a recorder and the hook registry
// whose replayable hooks it will re-invoke.
func NewReplayManager(recorder *StorageRecorder, registry *Registry) *ReplayManager {
	return &ReplayManager{recorder: recorder, registry: registry}
}

// Replay re-executes every recorded hook invocation for correlationID and
// returns, per recorded execution, the list of field mismatches found (empty
// if the replay matched exactly).
func (m *ReplayManager) Replay(ctx context.Context, correlationID string) (map[string][]Mismatch, error) {
	execs, err := m.recorder.Executions(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]Mismatch, len(execs))
	for _, exec := range execs {
		hook, hctx, found := m.findReplayableHook(exec)
		if !found {
			results[exec.HookReplayID] = append(results[exec.HookReplayID], Mismatch{
				Field:    "replay_id",
				Expected: exec.HookReplayID,
				Actual:   "<not registered>",
			})
			continue
		}

		got, execErr := hook.Execute(hctx)
		if execErr != nil {
			results[exec.HookReplayID] = append(results[exec.HookReplayID], Mismatch{
				Field:    "error",
				Expected: nil,
				Actual:   execErr.Error(),
			})
			continue
		}

		results[exec.HookReplayID] = Compare(exec.Result, got)
	}
	return results, nil
}

func (m *ReplayManager) findReplayableHook(exec SerializedHookExecution) (ReplayableHook, *HookContext, bool) {
	for _, point := range []HookPoint{
		PointSystemStartup, PointSystemShutdown, PointBeforeExecution, PointAfterExecution,
		PointOnError, PointStateChange, PointMigrationStart, PointMigrationEnd,
	} {
		for _, reg := range m.registry.hooksAt(point) {
			replayable, ok := reg.hook.(ReplayableHook)
			if !ok || replayable.ReplayID() != exec.HookReplayID {
				continue
			}
			hctx, err := replayable.DeserializeContext(exec.SerializedCtx)
			if err != nil {
				continue
			}
			return replayable, hctx, true
		}
	}
	return nil, nil, false
}

// Compare returns the field-by-field differences between two HookResults.
func Compare(want, got HookResult) []Mismatch {
	var mismatches []Mismatch
	if want.Kind != got.Kind {
		mismatches = append(mismatches, Mismatch{Field: "kind", Expected: want.Kind, Actual: got.Kind})
	}
	if fmt.Sprint(want.Value) != fmt.Sprint(got.Value) {
		mismatches = append(mismatches, Mismatch{Field: "value", Expected: want.Value, Actual: got.Value})
	}
	if want.Reason != got.Reason {
		mismatches = append(mismatches, Mismatch{Field: "reason", Expected: want.Reason, Actual: got.Reason})
	}
	if want.Delay != got.Delay {
		mismatches = append(mismatches, Mismatch{Field: "delay", Expected: want.Delay, Actual: got.Delay})
	}
	return mismatches
}
