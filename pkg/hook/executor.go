package hook

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/ratelimit"
)

// maxRetriesPerHook bounds the per-hook retry budget from spec.md §4.4
// ("bounded by per-hook retry budget; final failure behaves as Cancel").
const maxRetriesPerHook = 3

// Executor dispatches hooks registered in a Registry, applying circuit
// breaking, result caching, and replay persistence around each call.
type Executor struct {
	registry *Registry
	cache    *ResultCache
	recorder ReplayRecorder

	breakerCfg BreakerConfig
	breakersMu sync.Mutex
	breakers   map[string]*circuitBreaker

	// OnBreakerEvent, if set, is invoked on trip/reset transitions for
	// observability (spec.md §4.4: "transitions emit events"). Wiring it to
	// an event.Bus is the caller's responsibility to avoid an import cycle.
	OnBreakerEvent func(token string, point HookPoint, state string)

	// Limiter, if set, enforces "max hook invocations per point per window"
	// (spec.md §5) before any hook at a point runs. A point with no
	// registered ratelimit.Rule is never limited; nil disables limiting
	// entirely.
	Limiter *ratelimit.Limiter

	// Tracer, if set, wraps each ExecuteHooks call in a span named
	// "hook.execute_hooks" carrying the hook point as an attribute, one of the "hook and workflow execution boundaries"
	// pkg/trace instruments (spec.md's hook pipeline has no context.Context
	// of its own to carry a span through, so this traces the dispatch call
	// as a root span rather than a child of the caller's).
	Tracer trace.Tracer
}

// ReplayRecorder persists SerializedHookExecution records for replayable
// hooks. StorageRecorder (replay.go) implements this over a
// storage.Backend.
type ReplayRecorder interface {
	Record(correlationID string, exec SerializedHookExecution) error
}

// SerializedHookExecution is the durable record of one replayable hook
// invocation, per spec.md §4.4.
type SerializedHookExecution struct {
	HookReplayID  string
	SerializedCtx []byte
	Result        HookResult
	Duration      time.Duration
	Metadata      map[string]string
	CorrelationID string
	Seq           int
}

// NewExecutor builds an Executor over registry, with the given result cache
// and breaker config. cache and recorder may be nil to disable caching /
// replay persistence respectively.
func NewExecutor(registry *Registry, cache *ResultCache, recorder ReplayRecorder, breakerCfg BreakerConfig) *Executor {
	return &Executor{
		registry:   registry,
		cache:      cache,
		recorder:   recorder,
		breakerCfg: breakerCfg,
		breakers:   make(map[string]*circuitBreaker),
	}
}

func (e *Executor) breakerFor(token string) *circuitBreaker {
	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	b, ok := e.breakers[token]
	if !ok {
		b = newCircuitBreaker(e.breakerCfg)
		e.breakers[token] = b
	}
	return b
}

// ExecuteHooks iterates every hook registered at ctx.Point in priority
// order, applying §4.4's dispatch rules:
//   - Continue: proceed.
//   - Modified(v): merge v into ctx.Data and continue.
//   - Cancel(reason): stop the chain; caller surfaces Component{message:reason}.
//   - Skip: skip this hook only.
//   - Retry(delay): re-execute the same hook, bounded by maxRetriesPerHook.
//
// Returns the terminal result (Continue unless cancelled) and a *core.Error
// if the chain was cancelled or a propagate_errors hook failed.
func (e *Executor) ExecuteHooks(ctx *HookContext) (HookResult, *core.Error) {
	if e.Tracer != nil {
		_, span := e.Tracer.Start(context.Background(), "hook.execute_hooks",
			trace.WithAttributes(
				attribute.String("hook.point", string(ctx.Point)),
				attribute.String("hook.component_id", ctx.ComponentID.String()),
				attribute.String("hook.correlation_id", ctx.CorrelationID),
			),
		)
		defer span.End()
	}

	if e.Limiter != nil {
		res := e.Limiter.Allow(string(ctx.Point), ctx.ComponentID.String())
		if !res.Allowed {
			return Continue(), core.ResourceLimit("hook_invocations:"+string(ctx.Point), res.Limit, res.Current)
		}
	}

	regs := e.registry.hooksAt(ctx.Point)

	for _, reg := range regs {
		result, err := e.executeOne(reg, ctx)
		if err != nil {
			return result, err
		}
		switch result.Kind {
		case ResultCancel:
			return result, core.Component(result.Reason)
		case ResultSkip:
			continue
		case ResultModified:
			mergeKey := reg.meta.Token
			if reg.meta.Name != "" {
				mergeKey = reg.meta.Name
			}
			ctx.Data[mergeKey] = result.Value
		}
	}
	return Continue(), nil
}

func (e *Executor) executeOne(reg *registration, ctx *HookContext) (HookResult, *core.Error) {
	breaker := e.breakerFor(reg.meta.Token)

	var cacheKey CacheKey
	if e.cache != nil && reg.meta.Pure {
		cacheKey = BuildKey(ctx.Point, ctx.ComponentID, ctx.Data, stringMapToAny(ctx.Metadata), ctx.LanguageTag)
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	now := timeNow()
	if !breaker.Allow(now) {
		return Continue(), nil
	}

	retries := 0
	start := now
	var result HookResult
	var execErr error
	for {
		result, execErr = reg.hook.Execute(ctx)
		if execErr == nil && result.Kind != ResultRetry {
			break
		}
		if execErr == nil && result.Kind == ResultRetry {
			retries++
			if retries > maxRetriesPerHook {
				result = Cancel("retry budget exhausted for hook " + reg.meta.Token)
				break
			}
			time.Sleep(result.Delay)
			continue
		}
		break
	}

	transition := breaker.RecordResult(timeNow(), execErr == nil && result.Kind != ResultCancel)
	if transition != "" && e.OnBreakerEvent != nil {
		e.OnBreakerEvent(reg.meta.Token, reg.meta.Point, transition)
	}

	if execErr != nil {
		if reg.meta.PropagateErrors {
			return Continue(), core.Component("hook failed: "+execErr.Error(), execErr)
		}
		return Continue(), nil
	}

	if e.cache != nil && reg.meta.Pure && result.Kind != ResultCancel {
		e.cache.Put(cacheKey, result, 0)
	}

	if e.recorder != nil && reg.meta.Replayable {
		if replayable, ok := reg.hook.(ReplayableHook); ok {
			serialized, serr := replayable.SerializeContext(ctx)
			if serr == nil {
				_ = e.recorder.Record(ctx.CorrelationID, SerializedHookExecution{
					HookReplayID:  replayable.ReplayID(),
					SerializedCtx: serialized,
					Result:        result,
					Duration:      timeNow().Sub(start),
					Metadata:      cloneStringMap(ctx.Metadata),
					CorrelationID: ctx.CorrelationID,
				})
			}
		}
	}

	return result, nil
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
