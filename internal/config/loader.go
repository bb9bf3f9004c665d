package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadModel reads a per-model configuration file based on its extension.
// Supports: .json, .yaml/.yml, .toml
func LoadModel(path string) (Model, error) {
	var m Model
	if err := loadInto(path, &m); err != nil {
		return Model{}, err
	}
	if strings.TrimSpace(m.ModelPath) == "" {
		return Model{}, fmt.Errorf("%s: model_path is required", path)
	}
	if strings.TrimSpace(m.ModelName) == "" {
		return Model{}, fmt.Errorf("%s: model_name is required", path)
	}
	return m, nil
}

// LoadServer reads a server configuration file based on its extension.
func LoadServer(path string) (Server, error) {
	var s Server
	if err := loadInto(path, &s); err != nil {
		return Server{}, err
	}
	return s, nil
}

func loadInto(path string, v any) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(b, v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}
