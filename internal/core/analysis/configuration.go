package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/penwyp/go-trace-project/internal/util"
	"golang.org/x/sync/errgroup"
)

// JSONExtension is the extension of configuration files.
const JSONExtension = ".json"

const defaultConfigurationName = "No Name"

// ErrNoSourceType is returned for configuration files without a sourceTypeId.
var ErrNoSourceType = errors.New("no sourceTypeId in configuration")

// Configuration parameterizes a configurable analysis.
type Configuration struct {
	ID           string
	Name         string
	Description  string
	SourceTypeID string
	// Parameters is the raw JSON parameter object.
	Parameters string
}

type configurationFile struct {
	ID           *string         `json:"id,omitempty"`
	Name         *string         `json:"name,omitempty"`
	Description  *string         `json:"description,omitempty"`
	SourceTypeID *string         `json:"sourceTypeId,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

func rawParameters(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "{}"
	}
	return s
}

// generatedID derives a stable id from the name and parameters.
func generatedID(name, parameters string) string {
	input := "name=" + name + "parameters=" + parameters
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(input)).String()
}

// ParseConfiguration decodes one configuration document. A missing name
// defaults to "No Name" and a missing id is derived from name and parameters.
func ParseConfiguration(data []byte) (Configuration, error) {
	var file configurationFile
	if err := sonic.Unmarshal(data, &file); err != nil {
		return Configuration{}, fmt.Errorf("can't parse configuration: %w", err)
	}
	if file.SourceTypeID == nil {
		return Configuration{}, ErrNoSourceType
	}

	cfg := Configuration{
		Name:         defaultConfigurationName,
		SourceTypeID: *file.SourceTypeID,
		Parameters:   rawParameters(file.Parameters),
	}
	if file.Name != nil {
		cfg.Name = *file.Name
	}
	if file.Description != nil {
		cfg.Description = *file.Description
	}
	if file.ID != nil && strings.TrimSpace(*file.ID) != "" {
		cfg.ID = *file.ID
	} else {
		cfg.ID = generatedID(cfg.Name, cfg.Parameters)
	}
	return cfg, nil
}

// ReadConfiguration reads and decodes one configuration file.
func ReadConfiguration(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, fmt.Errorf("read configuration %s: %w", path, err)
	}
	cfg, err := ParseConfiguration(data)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// LoadConfigurations reads every configuration file in dir concurrently.
// Files that fail to parse are logged and skipped. A missing dir yields
// no configurations.
func LoadConfigurations(ctx context.Context, dir string) ([]Configuration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list configurations in %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != JSONExtension {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	var mu sync.Mutex
	loaded := make(map[string]Configuration, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, file := range files {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			cfg, err := ReadConfiguration(file)
			if err != nil {
				util.LogError(fmt.Sprintf("Can't read configuration from file: %v", err))
				return nil
			}
			mu.Lock()
			loaded[file] = cfg
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	configs := make([]Configuration, 0, len(loaded))
	for _, file := range files {
		if cfg, ok := loaded[file]; ok {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// WriteConfiguration stores cfg as <dir>/<id>.json, creating dir if needed.
func WriteConfiguration(cfg Configuration, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create configuration folder %s: %w", dir, err)
	}
	if cfg.ID == "" {
		cfg.ID = generatedID(cfg.Name, cfg.Parameters)
	}
	params := json.RawMessage(rawParameters(json.RawMessage(cfg.Parameters)))
	file := configurationFile{
		ID:           &cfg.ID,
		Name:         &cfg.Name,
		Description:  &cfg.Description,
		SourceTypeID: &cfg.SourceTypeID,
		Parameters:   params,
	}
	data, err := sonic.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("error writing configuration: %w", err)
	}
	path := filepath.Join(dir, cfg.ID+JSONExtension)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing configuration: %w", err)
	}
	return nil
}
