package workspace

import (
	"errors"
	"path/filepath"
	"time"
)

// MetadataFolderName holds the workspace databases inside the project.
const MetadataFolderName = ".project"

// Config contains configuration for a workspace
type Config struct {
	// Project location
	ProjectDir string
	Name       string
	Label      string

	// Catalog file; the built-in catalog is used when empty
	CatalogFile string
	// ConfigRoot resolves relative configuration folders of configurable analyses
	ConfigRoot string

	// Property store settings
	PropertiesDir      string
	InMemoryProperties bool

	// Watch settings
	Debounce time.Duration
}

// ErrNoProjectDir is returned when no project directory is configured.
var ErrNoProjectDir = errors.New("project directory is required")

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if c.ProjectDir == "" {
		return ErrNoProjectDir
	}
	if c.Name == "" {
		c.Name = filepath.Base(c.ProjectDir)
	}
	if c.ConfigRoot == "" {
		c.ConfigRoot = filepath.Join(c.ProjectDir, MetadataFolderName, "analyses")
	}
	if c.PropertiesDir == "" {
		c.PropertiesDir = filepath.Join(c.ProjectDir, MetadataFolderName, "properties")
	}
	if c.Debounce == 0 {
		c.Debounce = 500 * time.Millisecond
	}
	return nil
}
