// Package capability implements a process-wide service locator keyed by
// interface type. Implementations are registered once during startup and
// looked up by business code through the interface it depends on.
package capability

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps capability interface types to their implementations.
// Writes are allowed until Freeze; after that the registry is read-only and
// lookups take no lock.
type Registry struct {
	mu     sync.Mutex
	frozen atomic.Bool
	items  atomic.Pointer[map[reflect.Type]any]
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := make(map[reflect.Type]any)
	r.items.Store(&empty)
	return r
}

func key[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register stores impl under the identity of T, replacing any previous
// entry. Registering into a frozen registry is a programming error.
func Register[T any](r *Registry, impl T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		panic(fmt.Sprintf("capability: register %s after freeze", key[T]()))
	}

	// copy-on-write so concurrent readers never see a map being mutated
	cur := *r.items.Load()
	next := make(map[reflect.Type]any, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[key[T]()] = impl
	r.items.Store(&next)
}

// Get returns the implementation registered for T. The second result is
// false when nothing is registered.
func Get[T any](r *Registry) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	v, ok := (*r.items.Load())[key[T]()]
	if !ok {
		return zero, false
	}
	impl, ok := v.(T)
	if !ok {
		return zero, false
	}
	return impl, true
}

// Has reports whether T has a registered implementation.
func Has[T any](r *Registry) bool {
	_, ok := Get[T](r)
	return ok
}

// Freeze marks the end of startup.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Names lists registered capability types, sorted.
func (r *Registry) Names() []string {
	items := *r.items.Load()
	out := make([]string, 0, len(items))
	for k := range items {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}
