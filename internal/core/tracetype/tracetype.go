// Package tracetype holds the registry of known trace and experiment types.
package tracetype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/penwyp/go-trace-project/internal/util"
)

// DefaultExperimentType is assigned to experiments without a persisted type.
const DefaultExperimentType = "experiment.generic"

// TraceType describes one trace format.
type TraceType struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	// DirectoryMarker names a file whose presence makes a folder a
	// directory-format trace of this type.
	DirectoryMarker string `yaml:"directoryMarker"`
	Experiment      bool   `yaml:"experiment"`
}

// Registry is the set of registered trace types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TraceType
}

// NewRegistry creates a registry holding the default experiment type.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]TraceType)}
	r.Register(TraceType{
		ID:         DefaultExperimentType,
		Name:       "Generic Experiment",
		Category:   "Experiment",
		Experiment: true,
	})
	return r
}

// Register adds or replaces a trace type.
func (r *Registry) Register(tt TraceType) error {
	if tt.ID == "" {
		return fmt.Errorf("trace type has no id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[tt.ID]; exists {
		util.LogDebug(fmt.Sprintf("TraceTypeRegistry: Replaced trace type '%s'", tt.ID))
	}
	r.types[tt.ID] = tt
	return nil
}

// Get returns the trace type with the given id.
func (r *Registry) Get(id string) (TraceType, bool) {
	if id == "" {
		return TraceType{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tt, ok := r.types[id]
	return tt, ok
}

// All returns every registered type sorted by id.
func (r *Registry) All() []TraceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]TraceType, 0, len(r.types))
	for _, tt := range r.types {
		all = append(all, tt)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// DetectDirectoryTrace returns the id of the directory-format trace type
// whose marker exists inside dir, or "" when dir is a plain folder.
func (r *Registry) DetectDirectoryTrace(dir string) string {
	for _, tt := range r.All() {
		if tt.DirectoryMarker == "" || tt.Experiment {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, tt.DirectoryMarker)); err == nil {
			return tt.ID
		}
	}
	return ""
}

// IsDirectoryTrace reports whether dir is a recognized directory-format trace.
func (r *Registry) IsDirectoryTrace(dir string) bool {
	return r.DetectDirectoryTrace(dir) != ""
}
