// Package analysis holds analysis module descriptors and the registry the
// project model queries for the analyses applicable to a trace type.
package analysis

// OutputDescriptor declares one output an analysis module provides.
type OutputDescriptor struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Helper describes an analysis module independently of any trace.
type Helper struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	HelpText string `yaml:"help"`
	Icon     string `yaml:"icon"`
	Bundle   string `yaml:"bundle"`
	// AppliesTo lists the trace type ids the module applies to.
	AppliesTo []string `yaml:"appliesTo"`
	// AppliesToExperiment makes the module available on experiments
	// even when no member trace surfaces it.
	AppliesToExperiment bool               `yaml:"appliesToExperiment"`
	Automatic           bool               `yaml:"automatic"`
	Properties          map[string]string  `yaml:"properties"`
	Outputs             []OutputDescriptor `yaml:"outputs"`
	// ConfigRoot makes the helper a template: one module is derived from
	// every configuration file found under this folder.
	ConfigRoot string `yaml:"configRoot"`
	// Configuration is set on helpers derived from a template.
	Configuration *Configuration `yaml:"-"`
}

// AppliesToType reports whether the module applies to traceTypeID.
func (h Helper) AppliesToType(traceTypeID string) bool {
	for _, id := range h.AppliesTo {
		if id == traceTypeID {
			return true
		}
	}
	return false
}

// HelperProperties returns a copy of the descriptor properties, never nil.
func (h Helper) HelperProperties() map[string]string {
	props := make(map[string]string, len(h.Properties))
	for k, v := range h.Properties {
		props[k] = v
	}
	return props
}

// IsTemplate reports whether the helper only produces configured modules.
func (h Helper) IsTemplate() bool {
	return h.ConfigRoot != ""
}

// derive builds the module a configuration produces from a template.
func (h Helper) derive(cfg Configuration) Helper {
	derived := h
	derived.ID = h.ID + ":" + cfg.ID
	derived.Name = cfg.Name
	if cfg.Description != "" {
		derived.HelpText = cfg.Description
	}
	derived.ConfigRoot = ""
	derived.Properties = h.HelperProperties()
	derived.Properties["configuration.id"] = cfg.ID
	derived.Properties["configuration.parameters"] = cfg.Parameters
	c := cfg
	derived.Configuration = &c
	return derived
}
