package config

import "time"

// Model is the per-model configuration consumed at startup. One Model value
// may back several worker instances; it is never mutated after load.
type Model struct {
	// ModelPath is the canonical model locator, e.g. "owner/repo".
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	// ModelName is the short local identifier used for routing.
	ModelName string `json:"model_name" yaml:"model_name" toml:"model_name"`
	// CachePath, when set, enables prompt-cache persistence at that path.
	CachePath string `json:"cache_path,omitempty" yaml:"cache_path,omitempty" toml:"cache_path,omitempty"`
	// Think allows the model to emit its internal reasoning segment.
	Think bool `json:"think" yaml:"think" toml:"think"`
	// Legacy selects the older tokenizer behavior. Absent means true.
	Legacy *bool `json:"legacy,omitempty" yaml:"legacy,omitempty" toml:"legacy,omitempty"`
}

// LegacyMode reports the effective legacy flag (defaults to true when unset).
func (m Model) LegacyMode() bool {
	return m.Legacy == nil || *m.Legacy
}

// Server holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by defaults in main.
type Server struct {
	Addr         string        `json:"addr" yaml:"addr" toml:"addr"`
	ConfigDir    string        `json:"config_dir" yaml:"config_dir" toml:"config_dir"`
	ModelsDir    string        `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Instances    int           `json:"instances" yaml:"instances" toml:"instances"`
	MaxQueue     int           `json:"max_queue" yaml:"max_queue" toml:"max_queue"`
	MaxWait      time.Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	InferTimeout time.Duration `json:"infer_timeout" yaml:"infer_timeout" toml:"infer_timeout"`
	ContextSize  int           `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads      int           `json:"threads" yaml:"threads" toml:"threads"`
	MaxTokens    int           `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	CORSOrigins  []string      `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}
