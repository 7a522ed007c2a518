package inkling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	defaults "github.com/Paranoid-AF/inkling/default"
	"github.com/Paranoid-AF/inkling/segment"
)

// envPrefix prefixes every environment override.
const envPrefix = "INKLING_"

// Known generation providers.
var Providers = []string{"openai", "grok", "gemini", "ollama"}

// Config represents the user's inkling configuration.
type Config struct {
	Generation GenerationConfig `koanf:"generation" json:"generation"`
	Embedding  EmbeddingConfig  `koanf:"embedding" json:"embedding"`
	Completion CompletionConfig `koanf:"completion" json:"completion"`
	Profiles   []Profile        `koanf:"profiles" json:"profiles,omitempty"`
	Telemetry  TelemetryConfig  `koanf:"telemetry" json:"telemetry"`
}

// GenerationConfig holds settings for the generation API.
type GenerationConfig struct {
	Provider       string   `koanf:"provider" json:"provider"`
	BaseURL        string   `koanf:"base_url" json:"base_url"`
	APIKey         string   `koanf:"api_key" json:"api_key"`
	Model          string   `koanf:"model" json:"model"`
	MaxTokens      int      `koanf:"max_tokens" json:"max_tokens,omitempty"`
	Temperature    float64  `koanf:"temperature" json:"temperature,omitempty"`
	Stop           []string `koanf:"stop" json:"stop,omitempty"`
	TimeoutSeconds int      `koanf:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// EmbeddingConfig holds settings for the embedding API used by the
// related-passage index.
type EmbeddingConfig struct {
	BaseURL         string `koanf:"base_url" json:"base_url"`
	APIKey          string `koanf:"api_key" json:"api_key"`
	Model           string `koanf:"model" json:"model"`
	MaxPassages     int    `koanf:"max_passages" json:"max_passages,omitempty"`
	RelatedPassages int    `koanf:"related_passages" json:"related_passages,omitempty"`
}

// CompletionConfig holds the suggestion lifecycle settings.
type CompletionConfig struct {
	DelayMs         int              `koanf:"delay_ms" json:"delay_ms"`
	SplitStrategy   string           `koanf:"split_strategy" json:"split_strategy"`
	AutoTrigger     bool             `koanf:"auto_trigger" json:"auto_trigger"`
	AcceptKey       string           `koanf:"accept_key" json:"accept_key"`
	SingleShot      bool             `koanf:"single_shot" json:"single_shot"`
	ContextChars    int              `koanf:"context_chars" json:"context_chars"`
	RateLimit       float64          `koanf:"rate_limit" json:"rate_limit"`
	RateBurst       int              `koanf:"rate_burst" json:"rate_burst"`
	CacheTTLMinutes int              `koanf:"cache_ttl_minutes" json:"cache_ttl_minutes"`
	CacheCapacity   int              `koanf:"cache_capacity" json:"cache_capacity"`
	Activation      ActivationConfig `koanf:"activation" json:"activation"`
}

// ActivationConfig toggles the rules an automatic trigger must pass.
type ActivationConfig struct {
	RequireNonEmptyLine         bool `koanf:"require_non_empty_line" json:"require_non_empty_line"`
	RequireCursorNotAtStart     bool `koanf:"require_cursor_not_at_start" json:"require_cursor_not_at_start"`
	RequireSpaceBeforeCursor    bool `koanf:"require_space_before_cursor" json:"require_space_before_cursor"`
	SuppressWhenTextAfterCursor bool `koanf:"suppress_when_text_after_cursor" json:"suppress_when_text_after_cursor"`
}

// Profile overrides completion settings for documents whose path matches
// Pattern (a doublestar glob). Nil fields inherit from [completion].
type Profile struct {
	Pattern       string            `koanf:"pattern" json:"pattern"`
	Disabled      bool              `koanf:"disabled" json:"disabled,omitempty"`
	DelayMs       *int              `koanf:"delay_ms" json:"delay_ms,omitempty"`
	SplitStrategy *string           `koanf:"split_strategy" json:"split_strategy,omitempty"`
	AutoTrigger   *bool             `koanf:"auto_trigger" json:"auto_trigger,omitempty"`
	AcceptKey     *string           `koanf:"accept_key" json:"accept_key,omitempty"`
	SingleShot    *bool             `koanf:"single_shot" json:"single_shot,omitempty"`
	Activation    *ActivationConfig `koanf:"activation" json:"activation,omitempty"`
}

// TelemetryConfig holds telemetry settings.
type TelemetryConfig struct {
	OpenRouter *bool `koanf:"openrouter" json:"openrouter,omitempty"`
}

// Settings is the completion configuration in effect for one document.
type Settings struct {
	Delay       time.Duration
	Strategy    segment.Strategy
	AutoTrigger bool
	AcceptKey   string
	SingleShot  bool
	Activation  ActivationConfig
}

// ConfigDir returns the config directory path.
// Resolution order: $INKLING_CONFIG_DIR > $XDG_CONFIG_HOME/inkling > ~/.config/inkling
func ConfigDir() string {
	if dir := os.Getenv("INKLING_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "inkling")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "inkling-config")
	}
	return filepath.Join(home, ".config", "inkling")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the custom prompt template path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// IndexCachePath returns where the related-passage index is persisted.
func IndexCachePath() string {
	return filepath.Join(ConfigDir(), "index.msgpack")
}

// tomlParser adapts BurntSushi/toml to koanf.Parser.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]any, error) {
	out := make(map[string]any)
	if _, err := toml.Decode(string(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]any) ([]byte, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(m); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// envKey maps INKLING_GENERATION_API_KEY to generation.api_key. Only the
// first underscore after the section name becomes a dot. Variables that are
// not config keys return "" and are skipped.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key == "config_dir" {
		return ""
	}
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return ""
	}
	// Nested activation rules: COMPLETION_ACTIVATION_REQUIRE_... .
	if section == "completion" && strings.HasPrefix(field, "activation_") {
		return "completion.activation." + strings.TrimPrefix(field, "activation_")
	}
	return section + "." + field
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults.DefaultConfigTOML), tomlParser{}); err != nil {
		panic("inkling: invalid embedded default_config.toml: " + err.Error())
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic("inkling: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig layers the embedded defaults, the user's config.toml (if any)
// and INKLING_* environment variables, in increasing precedence.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile is LoadConfig with an explicit file path.
func LoadConfigFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults.DefaultConfigTOML), tomlParser{}); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(data), tomlParser{}); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}

	if !knownProvider(cfg.Generation.Provider) {
		warnings = append(warnings, fmt.Sprintf("unknown generation provider %q; expected one of %s",
			cfg.Generation.Provider, strings.Join(Providers, ", ")))
	} else if cfg.Generation.Provider != "ollama" && cfg.Generation.APIKey == "" {
		warnings = append(warnings, "generation api_key is not configured; set INKLING_GENERATION_API_KEY")
	}
	if _, ok := segment.ParseStrategy(cfg.Completion.SplitStrategy); !ok {
		warnings = append(warnings, fmt.Sprintf("unknown split_strategy %q; falling back to word", cfg.Completion.SplitStrategy))
	}
	if cfg.Completion.DelayMs < 0 {
		warnings = append(warnings, "delay_ms is negative; using 0")
	}
	if cfg.Completion.AcceptKey == "" {
		warnings = append(warnings, "accept_key is empty; suggestions cannot be accepted")
	}
	if (cfg.Embedding.BaseURL == "") != (cfg.Embedding.APIKey == "") {
		warnings = append(warnings, "embedding needs both base_url and api_key; related passages are disabled")
	}
	for i, p := range cfg.Profiles {
		if p.Pattern == "" {
			warnings = append(warnings, fmt.Sprintf("profile %d has no pattern and never matches", i))
			continue
		}
		if !doublestar.ValidatePattern(p.Pattern) {
			warnings = append(warnings, fmt.Sprintf("profile %d: invalid pattern %q", i, p.Pattern))
		}
		if p.SplitStrategy != nil {
			if _, ok := segment.ParseStrategy(*p.SplitStrategy); !ok {
				warnings = append(warnings, fmt.Sprintf("profile %q: unknown split_strategy %q", p.Pattern, *p.SplitStrategy))
			}
		}
	}
	return warnings
}

func knownProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// ResolveSettings returns the completion settings for a document path. The
// first profile whose pattern matches wins; a disabled profile turns
// automatic triggering off.
func (c *Config) ResolveSettings(path string) Settings {
	comp := c.Completion
	strategy, _ := segment.ParseStrategy(comp.SplitStrategy)
	s := Settings{
		Delay:       time.Duration(max(comp.DelayMs, 0)) * time.Millisecond,
		Strategy:    strategy,
		AutoTrigger: comp.AutoTrigger,
		AcceptKey:   comp.AcceptKey,
		SingleShot:  comp.SingleShot,
		Activation:  comp.Activation,
	}

	p := c.matchProfile(path)
	if p == nil {
		return s
	}
	if p.DelayMs != nil {
		s.Delay = time.Duration(max(*p.DelayMs, 0)) * time.Millisecond
	}
	if p.SplitStrategy != nil {
		s.Strategy, _ = segment.ParseStrategy(*p.SplitStrategy)
	}
	if p.AutoTrigger != nil {
		s.AutoTrigger = *p.AutoTrigger
	}
	if p.AcceptKey != nil {
		s.AcceptKey = *p.AcceptKey
	}
	if p.SingleShot != nil {
		s.SingleShot = *p.SingleShot
	}
	if p.Activation != nil {
		s.Activation = *p.Activation
	}
	if p.Disabled {
		s.AutoTrigger = false
	}
	return s
}

func (c *Config) matchProfile(path string) *Profile {
	if path == "" {
		return nil
	}
	slashed := filepath.ToSlash(path)
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.Pattern == "" {
			continue
		}
		if ok, _ := doublestar.Match(p.Pattern, slashed); ok {
			return p
		}
		// Bare patterns like "*.md" also match on the base name.
		if !strings.Contains(p.Pattern, "/") {
			if ok, _ := doublestar.Match(p.Pattern, filepath.Base(slashed)); ok {
				return p
			}
		}
	}
	return nil
}

// EmbeddingEnabled returns true when both base_url and api_key are configured for embedding.
func EmbeddingEnabled(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Embedding.BaseURL != "" && cfg.Embedding.APIKey != ""
}

// OpenRouterTelemetryEnabled returns whether OpenRouter attribution headers should be sent.
func OpenRouterTelemetryEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Telemetry.OpenRouter == nil {
		return true
	}
	return *cfg.Telemetry.OpenRouter
}
