// Package prompt turns ordered chat messages into a single prompt string
// using the template conventions shipped in a model's tokenizer config.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrIncompatible marks a tokenizer config whose schema this server cannot
// interpret, as opposed to a plain read failure. Callers use it to suggest
// remediation (wrong model, or a library/model version mismatch).
var ErrIncompatible = errors.New("tokenizer config incompatible with this server version")

// Message is one chat turn, content already flattened to text.
type Message struct {
	Role    string
	Content string
}

type dialect int

const (
	dialectChatML dialect = iota
	dialectGemma
	dialectMistral
)

// tokenizerConfig is the subset of tokenizer_config.json we interpret.
type tokenizerConfig struct {
	ChatTemplate   json.RawMessage `json:"chat_template"`
	TokenizerClass string          `json:"tokenizer_class"`
	Legacy         *bool           `json:"legacy"`
	BOSToken       json.RawMessage `json:"bos_token"`
}

// Template renders conversations for one model. Stateless per call and safe
// to share across worker instances of the same model.
type Template struct {
	raw     string
	dialect dialect
	legacy  bool
}

// Load reads tokenizer_config.json from dir and selects a render dialect.
func Load(dir string) (*Template, error) {
	path := filepath.Join(dir, "tokenizer_config.json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer config: %w", err)
	}
	var tc tokenizerConfig
	if err := json.Unmarshal(b, &tc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	raw, err := templateString(tc.ChatTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIncompatible, path, err)
	}
	t := &Template{
		raw:     raw,
		dialect: detectDialect(raw),
		legacy:  tc.Legacy == nil || *tc.Legacy,
	}
	return t, nil
}

// templateString extracts the chat template text. Newer model releases ship a
// list of named templates; we only understand the plain string form and the
// "default" entry of a list. Anything else is a schema we don't speak.
func templateString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("no chat_template present")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []struct {
		Name     string `json:"name"`
		Template string `json:"template"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, e := range list {
			if e.Name == "default" {
				return e.Template, nil
			}
		}
		return "", errors.New("chat_template list has no default entry")
	}
	return "", errors.New("unrecognized chat_template schema")
}

// detectDialect picks a renderer from markers in the template text.
func detectDialect(tpl string) dialect {
	switch {
	case strings.Contains(tpl, "<start_of_turn>"):
		return dialectGemma
	case strings.Contains(tpl, "[INST]"):
		return dialectMistral
	default:
		return dialectChatML
	}
}
