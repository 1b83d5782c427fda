package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ViewDefinitionConfig describes one materialized view to register at startup.
type ViewDefinitionConfig struct {
	Name        string   `json:"name"`
	KeyField    string   `json:"key_field"`
	ValueFields []string `json:"value_fields"`
}

// ViewConfig holds the list of views registered from a config file.
type ViewConfig struct {
	Views []ViewDefinitionConfig `json:"views"`
}

// LoadViewConfig reads a JSON view config file and validates it.
func LoadViewConfig(path string) (*ViewConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read view config: %w", err)
	}

	var cfg ViewConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse view config: %w", err)
	}

	if len(cfg.Views) == 0 {
		return nil, fmt.Errorf("view config: no views defined")
	}

	seen := make(map[string]bool)
	for i, v := range cfg.Views {
		if v.Name == "" {
			return nil, fmt.Errorf("view config: view #%d has empty name", i)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("view config: view %q defined more than once", v.Name)
		}
		seen[v.Name] = true
	}

	return &cfg, nil
}
