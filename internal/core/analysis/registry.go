package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/penwyp/go-trace-project/internal/util"
)

// OnDemand describes an analysis run explicitly by the user, producing reports.
type OnDemand struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	AppliesTo []string `yaml:"appliesTo"`
}

// AppliesToType reports whether the on-demand analysis applies to traceTypeID.
func (o OnDemand) AppliesToType(traceTypeID string) bool {
	for _, id := range o.AppliesTo {
		if id == traceTypeID {
			return true
		}
	}
	return false
}

// Registry manages the analysis module descriptors. Subscribers are
// notified whenever the set of configurable analyses is reloaded.
type Registry struct {
	mu       sync.RWMutex
	helpers  []Helper
	derived  []Helper
	onDemand []OnDemand

	subMu       sync.Mutex
	subscribers map[int]func()
	nextSub     int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		helpers:     make([]Helper, 0),
		subscribers: make(map[int]func()),
	}
}

// Register adds a module descriptor, replacing one with the same id.
func (r *Registry) Register(h Helper) error {
	if h.ID == "" {
		return fmt.Errorf("analysis module has no id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.helpers {
		if existing.ID == h.ID {
			r.helpers[i] = h
			util.LogDebug(fmt.Sprintf("AnalysisRegistry: Replaced existing module '%s'", h.ID))
			return nil
		}
	}
	r.helpers = append(r.helpers, h)
	util.LogDebug(fmt.Sprintf("AnalysisRegistry: Registered module '%s'", h.ID))
	return nil
}

// RegisterOnDemand adds an on-demand analysis, replacing one with the same id.
func (r *Registry) RegisterOnDemand(o OnDemand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.onDemand {
		if existing.ID == o.ID {
			r.onDemand[i] = o
			return
		}
	}
	r.onDemand = append(r.onDemand, o)
}

// modules returns the usable modules: plain helpers plus derived ones.
// Caller holds r.mu.
func (r *Registry) modules() []Helper {
	all := make([]Helper, 0, len(r.helpers)+len(r.derived))
	for _, h := range r.helpers {
		if !h.IsTemplate() {
			all = append(all, h)
		}
	}
	return append(all, r.derived...)
}

// All returns every usable module in registration order.
func (r *Registry) All() []Helper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules()
}

// Get returns the module with the given id.
func (r *Registry) Get(id string) (Helper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.modules() {
		if h.ID == id {
			return h, true
		}
	}
	return Helper{}, false
}

// ModulesFor returns the modules applicable to a trace type, keyed by id.
func (r *Registry) ModulesFor(traceTypeID string) map[string]Helper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Helper)
	for _, h := range r.modules() {
		if h.AppliesToType(traceTypeID) {
			result[h.ID] = h
		}
	}
	return result
}

// ExperimentModules returns the modules that apply at experiment level.
func (r *Registry) ExperimentModules() []Helper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Helper
	for _, h := range r.modules() {
		if h.AppliesToExperiment {
			result = append(result, h)
		}
	}
	return result
}

// OnDemandFor returns the on-demand analyses applicable to a trace type.
func (r *Registry) OnDemandFor(traceTypeID string) []OnDemand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []OnDemand
	for _, o := range r.onDemand {
		if o.AppliesToType(traceTypeID) {
			result = append(result, o)
		}
	}
	return result
}

// Subscribe registers fn to be called after each reload. The returned
// function removes the subscription.
func (r *Registry) Subscribe(fn func()) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subscribers, id)
	}
}

func (r *Registry) notify() {
	r.subMu.Lock()
	fns := make([]func(), 0, len(r.subscribers))
	ids := make([]int, 0, len(r.subscribers))
	for id := range r.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, r.subscribers[id])
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Reload re-reads the configuration folder of every template module,
// replaces the derived modules and notifies subscribers. A template whose
// folder can't be listed is logged and contributes no module. Only a
// cancelled ctx aborts the reload.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.RLock()
	templates := make([]Helper, 0)
	for _, h := range r.helpers {
		if h.IsTemplate() {
			templates = append(templates, h)
		}
	}
	r.mu.RUnlock()

	derived := make([]Helper, 0)
	for _, tmpl := range templates {
		configs, err := LoadConfigurations(ctx, tmpl.ConfigRoot)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("reload configurable analysis %s: %w", tmpl.ID, ctxErr)
			}
			util.LogErrorFields("AnalysisRegistry: Skipping configurable analysis",
				util.Field{Key: "analysis", Value: tmpl.ID},
				util.Field{Key: "config_root", Value: tmpl.ConfigRoot},
				util.ErrField(err))
			continue
		}
		for _, cfg := range configs {
			derived = append(derived, tmpl.derive(cfg))
		}
	}

	r.mu.Lock()
	r.derived = derived
	r.mu.Unlock()

	util.LogInfo(fmt.Sprintf("AnalysisRegistry: Reloaded %d configured modules from %d templates", len(derived), len(templates)))
	r.notify()
	return nil
}
