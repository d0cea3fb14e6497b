// Package catalog loads the trace types, analysis modules and output
// exclusions a project works with from a YAML file.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/penwyp/go-trace-project/internal/core/analysis"
	"github.com/penwyp/go-trace-project/internal/core/engine"
	"github.com/penwyp/go-trace-project/internal/core/tracetype"
	"github.com/penwyp/go-trace-project/internal/util"
)

// Catalog is the content of a catalog file.
type Catalog struct {
	TraceTypes    []tracetype.TraceType      `yaml:"traceTypes"`
	Analyses      []analysis.Helper          `yaml:"analyses"`
	OnDemand      []analysis.OnDemand        `yaml:"onDemand"`
	HiddenOutputs []analysis.OutputExclusion `yaml:"hiddenOutputs"`
}

// MemberResolver returns the live member traces of an experiment.
type MemberResolver func(experiment string) []engine.Trace

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and decodes the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Write encodes the catalog to path.
func (c *Catalog) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog %s: %w", path, err)
	}
	return nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for _, tt := range c.TraceTypes {
		if tt.ID == "" {
			return fmt.Errorf("catalog: trace type without id")
		}
		if seen[tt.ID] {
			return fmt.Errorf("catalog: duplicate trace type %s", tt.ID)
		}
		seen[tt.ID] = true
	}
	for _, h := range c.Analyses {
		if h.ID == "" {
			return fmt.Errorf("catalog: analysis without id")
		}
	}
	for _, o := range c.OnDemand {
		if o.ID == "" {
			return fmt.Errorf("catalog: on-demand analysis without id")
		}
	}
	return nil
}

// OutputFilter builds the output exclusions of the catalog.
func (c *Catalog) OutputFilter() analysis.OutputFilter {
	return analysis.NewOutputFilter(c.HiddenOutputs...)
}

// Apply registers the catalog content and one engine factory per trace
// type. Factories read the registry at instantiation time so reloaded
// modules are picked up.
func (c *Catalog) Apply(types *tracetype.Registry, modules *analysis.Registry, mgr *engine.Manager, members MemberResolver) error {
	for _, tt := range c.TraceTypes {
		if err := types.Register(tt); err != nil {
			return err
		}
	}
	for _, h := range c.Analyses {
		if err := modules.Register(h); err != nil {
			return err
		}
	}
	for _, o := range c.OnDemand {
		modules.RegisterOnDemand(o)
	}

	for _, tt := range types.All() {
		typeID := tt.ID
		if tt.Experiment {
			mgr.RegisterFactory(typeID, func(resource string) (engine.Trace, error) {
				helpers := experimentHelpers(modules, typeID)
				var set []engine.Trace
				if members != nil {
					set = members(resource)
				}
				return engine.NewStaticExperiment(resource, typeID, helpers, set...), nil
			})
			continue
		}
		mgr.RegisterFactory(typeID, func(resource string) (engine.Trace, error) {
			return engine.NewStaticTrace(resource, typeID, sortedHelpers(modules.ModulesFor(typeID))), nil
		})
	}

	util.LogInfo(fmt.Sprintf("Catalog applied: %d trace types, %d analyses, %d hidden outputs",
		len(c.TraceTypes), len(c.Analyses), len(c.HiddenOutputs)))
	return nil
}

func sortedHelpers(m map[string]analysis.Helper) []analysis.Helper {
	helpers := make([]analysis.Helper, 0, len(m))
	for _, h := range m {
		helpers = append(helpers, h)
	}
	sort.Slice(helpers, func(i, j int) bool { return helpers[i].ID < helpers[j].ID })
	return helpers
}

// experimentHelpers returns the modules of the experiment type plus those
// flagged as experiment-level.
func experimentHelpers(modules *analysis.Registry, typeID string) []analysis.Helper {
	m := modules.ModulesFor(typeID)
	for _, h := range modules.ExperimentModules() {
		m[h.ID] = h
	}
	return sortedHelpers(m)
}

// Default returns the catalog used when no catalog file is configured.
func Default() *Catalog {
	return &Catalog{
		TraceTypes: []tracetype.TraceType{
			{ID: "text.log", Name: "Text Log", Category: "Common"},
			{ID: "ctf.kernel", Name: "Kernel Trace", Category: "CTF", DirectoryMarker: "metadata"},
		},
		Analyses: []analysis.Helper{
			{
				ID: "statistics", Name: "Statistics", HelpText: "Event counts per type",
				AppliesTo: []string{"text.log", "ctf.kernel"},
				Outputs:   []analysis.OutputDescriptor{{ID: "statistics.view", Name: "Statistics"}},
			},
			{
				ID: "kernel.cpu", Name: "CPU Usage", HelpText: "CPU usage per thread",
				AppliesTo: []string{"ctf.kernel"},
				Outputs: []analysis.OutputDescriptor{
					{ID: "kernel.cpu.view", Name: "CPU Usage"},
					{ID: "kernel.cpu.debug", Name: "CPU Usage (debug)"},
				},
			},
			{
				ID: "experiment.sync", Name: "Synchronization", HelpText: "Trace synchronization",
				AppliesToExperiment: true,
				Outputs:             []analysis.OutputDescriptor{{ID: "experiment.sync.view", Name: "Synchronization"}},
			},
		},
		HiddenOutputs: []analysis.OutputExclusion{
			{TraceType: "ctf.kernel", Analysis: "kernel.cpu", Output: "kernel.cpu.debug"},
		},
	}
}
