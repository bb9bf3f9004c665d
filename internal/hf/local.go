package hf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local resolves a model from an earlier Fetch without touching the network.
// It scans the model's directory under destDir for the single weights file.
func Local(modelID, destDir string) (ModelFiles, error) {
	modelDir := filepath.Join(destDir, strings.ReplaceAll(modelID, "/", "_"))
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		return ModelFiles{}, fmt.Errorf("read model dir: %w", err)
	}
	var weights []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), weightsExt) {
			weights = append(weights, e.Name())
		}
	}
	switch len(weights) {
	case 0:
		return ModelFiles{}, fmt.Errorf("%s has no %s weights file (fetch the model first)", modelDir, weightsExt)
	case 1:
	default:
		return ModelFiles{}, fmt.Errorf("%s has multiple %s files: %s", modelDir, weightsExt, strings.Join(weights, " "))
	}
	return ModelFiles{Dir: modelDir, Weights: filepath.Join(modelDir, weights[0])}, nil
}
