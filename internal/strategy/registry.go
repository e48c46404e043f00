package strategy

import (
	"sort"

	"go.uber.org/zap"
)

// DefaultID is resolved whenever an unknown strategy id is requested.
const DefaultID = "aggressive"

// Factory builds a fresh strategy instance.
type Factory func(Deps) Strategy

// Registry maps strategy ids to factories.
type Registry struct {
	deps      Deps
	factories map[string]Factory
	defaultID string
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry(deps Deps) *Registry {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	r := &Registry{deps: deps, factories: make(map[string]Factory), defaultID: DefaultID}
	r.Register("aggressive", NewAggressive)
	r.Register("conservative", NewConservative)
	r.Register("session_breakout", NewSessionBreakout)
	r.Register("trend_pullback", NewTrendPullback)
	return r
}

func (r *Registry) Register(id string, f Factory) { r.factories[id] = f }

// Known reports whether id names a registered strategy.
func (r *Registry) Known(id string) bool {
	_, ok := r.factories[id]
	return ok
}

// IDs lists registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default returns the id substituted for unknown ones.
func (r *Registry) Default() string { return r.defaultID }

// Resolve builds the strategy for id, substituting the default for unknown ids.
func (r *Registry) Resolve(id string) Strategy {
	f, ok := r.factories[id]
	if !ok {
		r.deps.Log.Warn("unknown strategy, using default",
			zap.String("requested", id), zap.String("default", r.defaultID))
		f = r.factories[r.defaultID]
	}
	return f(r.deps)
}
