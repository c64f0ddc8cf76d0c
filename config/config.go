// Package config loads snapsight's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"snapsight/combo"
)

type Config struct {
	Hotkey HotkeyConfig `toml:"hotkey"`
	Vision VisionConfig `toml:"vision"`
	Screen ScreenConfig `toml:"screen"`
	Output OutputConfig `toml:"output"`
}

type HotkeyConfig struct {
	Combo          string              `toml:"combo"`
	PollInterval   Duration            `toml:"poll_interval"`
	DebounceWindow Duration            `toml:"debounce_window"`
	MinHold        Duration            `toml:"min_hold"`
	QueueSize      int                 `toml:"queue_size"`
	Synonyms       map[string][]string `toml:"synonyms,omitempty"`
}

type VisionConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	Prompt      string   `toml:"prompt"`
	Timeout     Duration `toml:"timeout"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature float64  `toml:"temperature"`
	Detail      string   `toml:"detail"`
}

type ScreenConfig struct {
	Format         string `toml:"format"`
	JPEGQuality    int    `toml:"jpeg_quality"`
	MaxImageSizeMB int    `toml:"max_image_size_mb"`
	SaveDir        string `toml:"save_dir"`
	Display        int    `toml:"display"`
}

type OutputConfig struct {
	CopyToClipboard bool `toml:"copy_to_clipboard"`
	Beep            bool `toml:"beep"`
	History         bool `toml:"history"`
}

// Duration is a time.Duration written as "500ms" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Combo:          "meta+shift+space",
			PollInterval:   Duration{50 * time.Millisecond},
			DebounceWindow: Duration{500 * time.Millisecond},
			QueueSize:      2,
		},
		Vision: VisionConfig{
			Provider:    "openai",
			Timeout:     Duration{60 * time.Second},
			MaxTokens:   1000,
			Temperature: 0.1,
			Detail:      "high",
		},
		Screen: ScreenConfig{
			Format:         "auto",
			JPEGQuality:    95,
			MaxImageSizeMB: 10,
		},
		Output: OutputConfig{
			Beep:    true,
			History: true,
		},
	}
}

// Dir is the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "snapsight"), nil
}

func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads path, writing a default file there first if none exists.
// Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &ValidationError{Problems: []string{"unknown keys: " + strings.Join(keys, ", ")}}
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var p []string
	if _, err := c.Spec(); err != nil {
		p = append(p, err.Error())
	}
	if c.Hotkey.PollInterval.Duration <= 0 {
		p = append(p, "hotkey.poll_interval must be positive")
	}
	if c.Hotkey.DebounceWindow.Duration < 0 {
		p = append(p, "hotkey.debounce_window must not be negative")
	}
	if c.Hotkey.MinHold.Duration < 0 {
		p = append(p, "hotkey.min_hold must not be negative")
	}
	if c.Hotkey.QueueSize < 1 || c.Hotkey.QueueSize > 4 {
		p = append(p, fmt.Sprintf("hotkey.queue_size %d out of range 1..4", c.Hotkey.QueueSize))
	}
	switch c.Vision.Provider {
	case "openai", "groq":
	default:
		p = append(p, fmt.Sprintf("vision.provider %q unknown", c.Vision.Provider))
	}
	if c.Vision.Timeout.Duration <= 0 {
		p = append(p, "vision.timeout must be positive")
	}
	if c.Vision.MaxTokens <= 0 {
		p = append(p, "vision.max_tokens must be positive")
	}
	if c.Vision.Temperature < 0 || c.Vision.Temperature > 2 {
		p = append(p, "vision.temperature must be within 0..2")
	}
	switch c.Vision.Detail {
	case "low", "high", "auto":
	default:
		p = append(p, fmt.Sprintf("vision.detail %q must be low, high or auto", c.Vision.Detail))
	}
	switch c.Screen.Format {
	case "auto", "png", "jpeg":
	default:
		p = append(p, fmt.Sprintf("screen.format %q must be auto, png or jpeg", c.Screen.Format))
	}
	if c.Screen.JPEGQuality < 1 || c.Screen.JPEGQuality > 100 {
		p = append(p, "screen.jpeg_quality must be within 1..100")
	}
	if c.Screen.MaxImageSizeMB < 0 {
		p = append(p, "screen.max_image_size_mb must not be negative")
	}
	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

// SynonymTable merges [hotkey.synonyms] over the built-in table.
func (c *Config) SynonymTable() combo.Synonyms {
	out := make(combo.Synonyms, len(combo.DefaultSynonyms)+len(c.Hotkey.Synonyms))
	for k, v := range combo.DefaultSynonyms {
		out[k] = v
	}
	for k, v := range c.Hotkey.Synonyms {
		out[strings.ToLower(k)] = v
	}
	return out
}

func (c *Config) Spec() (combo.Spec, error) {
	return combo.ParseSpec(c.Hotkey.Combo, c.SynonymTable())
}

// APIKey resolves the key: flag, then SNAPSIGHT_API_KEY or AI_API_KEY,
// then the provider's own variable, then the file. The second value
// names where it came from.
func (c *Config) APIKey(flagKey string) (string, string) {
	if flagKey != "" {
		return flagKey, "flag"
	}
	for _, env := range []string{"SNAPSIGHT_API_KEY", "AI_API_KEY", providerEnv(c.Vision.Provider)} {
		if env == "" {
			continue
		}
		if v := os.Getenv(env); v != "" {
			return v, env
		}
	}
	if c.Vision.APIKey != "" {
		return c.Vision.APIKey, "config"
	}
	return "", ""
}

func providerEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	}
	return ""
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Vision.APIKey != "" {
		cp.Vision.APIKey = "***"
	}
	return &cp
}
