package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds the per-vendor connection settings plus the handful
// of vendor-specific knobs. Unused fields are simply left zero for vendors
// they do not apply to.
type ProviderConfig struct {
	Type    string        `yaml:"type"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	// Chat knobs.
	EnableThinking    bool `yaml:"enable_thinking,omitempty"`
	EnableEnhancement bool `yaml:"enable_enhancement,omitempty"`

	// Generation defaults.
	DefaultStyle    string `yaml:"default_style,omitempty"`
	DefaultSize     string `yaml:"default_size,omitempty"`
	DefaultQuality  string `yaml:"default_quality,omitempty"`
	DefaultFPS      int    `yaml:"default_fps,omitempty"`
	DefaultDuration int    `yaml:"default_duration,omitempty"`

	// Separate base for the task-status endpoint when the vendor hosts it
	// elsewhere than the submission endpoint.
	QueryBaseURL string `yaml:"query_base_url,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`
}
