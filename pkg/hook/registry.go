package hook

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// registration pairs a Hook with its registered metadata.
type registration struct {
	meta Metadata
	hook Hook
	seq  int // registration order, for FIFO tie-break within equal priority
}

// RegisterOption configures a hook registration.
type RegisterOption func(*registration)

// WithPriority sets the hook's dispatch priority (default PriorityNormal).
func WithPriority(p Priority) RegisterOption {
	return func(r *registration) { r.meta.Priority = p }
}

// WithLanguage tags the hook's originating scripting language.
func WithLanguage(l Language) RegisterOption {
	return func(r *registration) { r.meta.Language = l }
}

// WithHookName sets a human-readable name for listing/debugging.
func WithHookName(name string) RegisterOption {
	return func(r *registration) { r.meta.Name = name }
}

// Pure marks the hook as safe to serve from the result cache.
func Pure() RegisterOption {
	return func(r *registration) { r.meta.Pure = true }
}

// PropagateErrors marks the hook so a non-nil error from Execute fails the
// enclosing step rather than being logged and swallowed (spec.md §7).
func PropagateErrors() RegisterOption {
	return func(r *registration) { r.meta.PropagateErrors = true }
}

// Registry holds hooks per HookPoint, sorted by priority with FIFO
// tie-break, grounded on haasonsaas-nexus's internal/hooks.Registry
// (sort.Slice-by-priority on every registration).
type Registry struct {
	mu      sync.RWMutex
	byPoint map[HookPoint][]*registration
	byToken map[string]*registration
	nextSeq int
}

// NewRegistry constructs an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{
		byPoint: make(map[HookPoint][]*registration),
		byToken: make(map[string]*registration),
	}
}

// Register adds hook at point, returning a token usable with Unregister.
func (r *Registry) Register(point HookPoint, h Hook, opts ...RegisterOption) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	reg := &registration{
		meta: Metadata{
			Token:    token,
			Point:    point,
			Priority: PriorityNormal,
		},
		hook: h,
		seq:  r.nextSeq,
	}
	r.nextSeq++
	if _, ok := h.(ReplayableHook); ok {
		reg.meta.Replayable = true
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.byPoint[point] = append(r.byPoint[point], reg)
	sortRegistrations(r.byPoint[point])
	r.byToken[token] = reg
	return token
}

// Unregister removes a previously registered hook by token.
func (r *Registry) Unregister(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byToken[token]
	if !ok {
		return false
	}
	delete(r.byToken, token)

	hooks := r.byPoint[reg.meta.Point]
	for i, h := range hooks {
		if h.meta.Token == token {
			r.byPoint[reg.meta.Point] = append(hooks[:i], hooks[i+1:]...)
			break
		}
	}
	return true
}

// List returns the metadata of every hook registered at point, in dispatch
// order.
func (r *Registry) List(point HookPoint) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.byPoint[point]
	out := make([]Metadata, len(regs))
	for i, reg := range regs {
		out[i] = reg.meta
	}
	return out
}

// hooksAt returns the ordered (hook, metadata) pairs registered at point.
// Used internally by the Executor so it doesn't need to re-sort per call.
func (r *Registry) hooksAt(point HookPoint) []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.byPoint[point]
	out := make([]*registration, len(regs))
	copy(out, regs)
	return out
}

func sortRegistrations(regs []*registration) {
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].meta.Priority != regs[j].meta.Priority {
			return regs[i].meta.Priority < regs[j].meta.Priority
		}
		return regs[i].seq < regs[j].seq
	})
}
