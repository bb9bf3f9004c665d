// Package hf resolves Hugging Face model repositories to local files: an
// existence check at startup, a capability heuristic from the model id, and
// download of the engine weights plus tokenizer metadata.
package hf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/go-huggingface/hub"
)

// Kind is the capability a model id resolves to.
type Kind string

const (
	KindChat       Kind = "chat"
	KindTranscribe Kind = "transcribe"
)

// weightsExt is the engine weights format we load.
const weightsExt = ".gguf"

// DetectKind guesses a model's capability from its id. Naming-convention
// heuristic, no API call; chat markers take precedence when an id carries
// both, and unknown ids default to chat.
func DetectKind(modelID string) Kind {
	id := strings.ToLower(modelID)
	for _, marker := range []string{"llm", "gpt", "llama", "mistral"} {
		if strings.Contains(id, marker) {
			return KindChat
		}
	}
	for _, marker := range []string{"voice", "asr", "whisper"} {
		if strings.Contains(id, marker) {
			return KindTranscribe
		}
	}
	return KindChat
}

// Exists reports whether the model repository is reachable on the hub.
func Exists(modelID string) bool {
	repo := hub.New(modelID)
	repo.Verbosity = 0
	repo.WithProgressBar(false)
	return repo.DownloadInfo(false) == nil
}

// FetchOptions tunes hub downloads.
type FetchOptions struct {
	AuthToken     string
	Revision      string
	MaxRetries    int
	RetryInterval time.Duration
	Concurrency   int
	Verbose       bool
}

// DefaultFetchOptions returns the retry/concurrency defaults.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Revision:      "main",
		MaxRetries:    5,
		RetryInterval: 5 * time.Second,
		Concurrency:   5,
	}
}

// ModelFiles locates the downloaded artifacts for one model.
type ModelFiles struct {
	// Dir holds tokenizer_config.json and friends.
	Dir string
	// Weights is the engine weights file inside Dir.
	Weights string
}

// Fetch downloads the model's weights and tokenizer metadata into a
// per-model directory under destDir and returns their locations. Repos
// without exactly one weights file are rejected up front.
func Fetch(modelID, destDir string, opts FetchOptions) (ModelFiles, error) {
	repo := hub.New(modelID)
	if opts.AuthToken != "" {
		repo = repo.WithAuth(opts.AuthToken)
	}
	if opts.Revision != "" {
		repo = repo.WithRevision(opts.Revision)
	}
	if opts.Concurrency > 0 {
		repo.MaxParallelDownload = opts.Concurrency
	}
	if opts.Verbose {
		repo.Verbosity = 1
		repo.WithProgressBar(true)
	} else {
		repo.Verbosity = 0
		repo.WithProgressBar(false)
	}

	files, weightsName, err := pickFiles(repo, opts)
	if err != nil {
		return ModelFiles{}, err
	}

	modelDir := filepath.Join(destDir, strings.ReplaceAll(modelID, "/", "_"))
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return ModelFiles{}, err
	}

	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		paths, err := repo.DownloadFiles(files...)
		if err != nil {
			lastErr = err
			time.Sleep(opts.RetryInterval)
			continue
		}
		for i, p := range paths {
			resolved, err := filepath.EvalSymlinks(p)
			if err != nil {
				return ModelFiles{}, err
			}
			if err := copyFile(resolved, filepath.Join(modelDir, filepath.Base(files[i]))); err != nil {
				return ModelFiles{}, err
			}
		}
		return ModelFiles{Dir: modelDir, Weights: filepath.Join(modelDir, weightsName)}, nil
	}
	return ModelFiles{}, fmt.Errorf("failed to download %s after %d attempts: %w", modelID, opts.MaxRetries, lastErr)
}

// pickFiles lists the repo and selects the weights file plus tokenizer
// metadata worth having locally.
func pickFiles(repo *hub.Repo, opts FetchOptions) ([]string, string, error) {
	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		if lastErr = repo.DownloadInfo(false); lastErr == nil {
			break
		}
		time.Sleep(opts.RetryInterval)
	}
	if lastErr != nil {
		return nil, "", lastErr
	}

	var toDownload []string
	var weights []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return nil, "", err
		}
		base := filepath.Base(fileName)
		switch {
		case strings.EqualFold(filepath.Ext(base), weightsExt):
			weights = append(weights, fileName)
		case base == "tokenizer_config.json" || base == "tokenizer.json" ||
			base == "special_tokens_map.json" || base == "config.json":
			toDownload = append(toDownload, fileName)
		}
	}
	switch len(weights) {
	case 0:
		return nil, "", fmt.Errorf("repository has no %s weights file", weightsExt)
	case 1:
	default:
		return nil, "", fmt.Errorf("repository has multiple %s files, cannot choose: %s", weightsExt, strings.Join(weights, " "))
	}
	return append(toDownload, weights[0]), filepath.Base(weights[0]), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Join(err, os.Remove(dst))
	}
	return out.Close()
}
