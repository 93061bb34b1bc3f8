// Package router resolves ordered path segments to procedures. The tree is
// read-only after construction; the lazy-subtree memo is the only shared
// mutable state and guarantees at-most-one load per node.
package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mefengl/note-orpc/internal/runtime/meta"
	"github.com/mefengl/note-orpc/internal/runtime/procedure"
)

// Loader resolves a lazy subtree on first access. The result, including a
// load failure, is memoized for the lifetime of the router so every caller
// observes the same outcome.
type Loader func() (*Router, error)

type entry struct {
	proc   *procedure.Procedure
	sub    *Router
	hidden bool

	loader   Loader
	loadOnce sync.Once
	loaded   *Router
	loadErr  error
}

func (e *entry) resolveSub() (*Router, error) {
	if e.loader == nil {
		return e.sub, nil
	}
	e.loadOnce.Do(func() {
		e.loaded, e.loadErr = e.loader()
		if e.loaded == nil && e.loadErr == nil {
			e.loadErr = fmt.Errorf("orpc: lazy loader returned no router")
		}
	})
	return e.loaded, e.loadErr
}

// EntryOption customises a single router entry.
type EntryOption func(*entry)

// Hidden excludes the entry from List while leaving it matchable.
func Hidden() EntryOption {
	return func(e *entry) { e.hidden = true }
}

// Router maps path segments to procedures or nested routers. Build the tree
// up front, then share it freely: matching never mutates it.
type Router struct {
	entries map[string]*entry
}

// New returns an empty router.
func New() *Router {
	return &Router{entries: make(map[string]*entry)}
}

// Procedure registers p under segment. It returns the router for chaining
// and panics on duplicate segments: a path must resolve to at most one
// procedure.
func (r *Router) Procedure(segment string, p *procedure.Procedure, opts ...EntryOption) *Router {
	if p == nil {
		panic(fmt.Sprintf("orpc: nil procedure for segment %q", segment))
	}
	r.add(segment, &entry{proc: p}, opts)
	return r
}

// Mount nests sub under segment.
func (r *Router) Mount(segment string, sub *Router, opts ...EntryOption) *Router {
	if sub == nil {
		panic(fmt.Sprintf("orpc: nil router for segment %q", segment))
	}
	r.add(segment, &entry{sub: sub}, opts)
	return r
}

// Lazy nests a subtree that is built by loader on first lookup crossing the
// boundary. Concurrent first lookups observe a single load.
func (r *Router) Lazy(segment string, loader Loader, opts ...EntryOption) *Router {
	if loader == nil {
		panic(fmt.Sprintf("orpc: nil loader for segment %q", segment))
	}
	r.add(segment, &entry{loader: loader}, opts)
	return r
}

func (r *Router) add(segment string, e *entry, opts []EntryOption) {
	if segment == "" {
		panic("orpc: router segment cannot be empty")
	}
	if _, exists := r.entries[segment]; exists {
		panic(fmt.Sprintf("orpc: duplicate router segment %q", segment))
	}
	for _, opt := range opts {
		opt(e)
	}
	r.entries[segment] = e
}

// Find walks the tree segment by segment. No-match is the (nil, false, nil)
// outcome, distinguished from a lazy-load failure which is an error.
func (r *Router) Find(path []string) (*procedure.Procedure, bool, error) {
	current := r
	for i, segment := range path {
		e, ok := current.entries[segment]
		if !ok {
			return nil, false, nil
		}

		last := i == len(path)-1
		if last {
			if e.proc != nil {
				return e.proc, true, nil
			}
			return nil, false, nil
		}

		if e.proc != nil {
			return nil, false, nil
		}
		sub, err := e.resolveSub()
		if err != nil {
			return nil, false, err
		}
		current = sub
	}
	return nil, false, nil
}

// Route describes one visible procedure for introspection.
type Route struct {
	Path []string
	Meta meta.Meta
}

// List returns the visible procedures in deterministic segment order.
// Hidden entries are excluded; lazy subtrees are resolved, so listing a
// router with lazy entries triggers (memoized) loads. Load failures are
// skipped: introspection never fails dispatch-capable routers.
func (r *Router) List() []Route {
	var routes []Route
	r.walk(nil, &routes)
	return routes
}

func (r *Router) walk(prefix []string, routes *[]Route) {
	segments := make([]string, 0, len(r.entries))
	for segment := range r.entries {
		segments = append(segments, segment)
	}
	sort.Strings(segments)

	for _, segment := range segments {
		e := r.entries[segment]
		if e.hidden {
			continue
		}
		path := append(append([]string{}, prefix...), segment)
		if e.proc != nil {
			*routes = append(*routes, Route{Path: path, Meta: e.proc.Meta})
			continue
		}
		sub, err := e.resolveSub()
		if err != nil {
			continue
		}
		sub.walk(path, routes)
	}
}
