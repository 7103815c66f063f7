// Package seed loads a declarative YAML file of services to register at
// startup, so well-known MCP servers appear in the registry without a
// manual POST after every deploy.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcpmon/mcpmon/internal/domain"
)

// File is the top-level structure of the seed file.
type File struct {
	Services []Entry `yaml:"services"`
}

// Entry is one seeded service.
type Entry struct {
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type,omitempty"`
	Endpoint     string         `yaml:"endpoint"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty"`
}

// Loader handles loading and parsing of the seed file.
type Loader struct {
	filePath string
}

// NewLoader creates a loader for filePath.
func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads the file and maps it to registration configs. Entries that
// fail validation are returned as an error; a seed file is authored by the
// operator and should not be silently half-applied.
func (l *Loader) Load() ([]domain.RegisterConfig, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	configs := make([]domain.RegisterConfig, 0, len(file.Services))
	for i, entry := range file.Services {
		cfg := domain.RegisterConfig{
			Name:         entry.Name,
			Type:         domain.ServiceType(entry.Type),
			Endpoint:     entry.Endpoint,
			Capabilities: entry.Capabilities,
			Metadata:     entry.Metadata,
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d (%q): %w", i, entry.Name, err)
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}
