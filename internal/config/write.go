package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileNameFor derives the config file name for a model id. The short name
// (the part after the slash) is lowercased with dashes folded to underscores.
func FileNameFor(modelID string) string {
	name := modelID
	if parts := strings.Split(modelID, "/"); len(parts) == 2 {
		name = parts[1]
	}
	return strings.ToLower(strings.ReplaceAll(name, "-", "_")) + ".json"
}

// WriteDefault creates a default per-model config file under dir and returns
// its path. modelID must be in "owner/name" form. Chat models get an explicit
// think=false so a reasoning-capable model stays quiet until opted in; the
// field is omitted entirely for models that never think (transcription).
func WriteDefault(dir, modelID string, chat bool) (string, error) {
	parts := strings.Split(modelID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid model ID format: %q (want owner/name)", modelID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	m := struct {
		ModelPath string `json:"model_path"`
		ModelName string `json:"model_name"`
		Think     *bool  `json:"think,omitempty"`
	}{
		ModelPath: modelID,
		ModelName: parts[1],
	}
	if chat {
		m.Think = new(bool)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileNameFor(modelID))
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
