package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hotkey.Combo != "meta+shift+space" {
		t.Errorf("combo = %q", cfg.Hotkey.Combo)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if !strings.Contains(string(data), `debounce_window = "500ms"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reloading default file: %v", err)
	}
	if again.Hotkey.DebounceWindow.Duration != 500*time.Millisecond || again.Vision.Temperature != 0.1 {
		t.Errorf("round trip changed values: %+v", again)
	}
	if err := again.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte(`
[hotkey]
combo = "ctrl+alt+s"
min_hold = "150ms"

[hotkey.synonyms]
hyper = ["lctrl", "lalt", "lmeta", "lshift"]

[screen]
save_dir = "/tmp/caps"
`), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hotkey.MinHold.Duration != 150*time.Millisecond {
		t.Errorf("min_hold = %v", cfg.Hotkey.MinHold)
	}
	if cfg.Hotkey.PollInterval.Duration != 50*time.Millisecond {
		t.Errorf("poll_interval default lost: %v", cfg.Hotkey.PollInterval)
	}
	if cfg.Screen.SaveDir != "/tmp/caps" || cfg.Screen.JPEGQuality != 95 {
		t.Errorf("screen = %+v", cfg.Screen)
	}
	if got := cfg.SynonymTable()["hyper"]; len(got) != 4 {
		t.Errorf("custom synonym = %v", got)
	}
	if got := cfg.SynonymTable()["shift"]; len(got) != 2 {
		t.Errorf("built-in synonym lost: %v", got)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	for _, tt := range []struct{ name, body string }{
		{"bad duration", "[hotkey]\npoll_interval = \"fast\"\n"},
		{"unknown key", "[hotkey]\ncombo = \"a+b\"\ncolour = \"red\"\n"},
		{"not toml", "[hotkey\n"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte(tt.body), 0644)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Hotkey.Combo = "ctrl++"
	cfg.Hotkey.QueueSize = 9
	cfg.Vision.Provider = "acme"
	cfg.Screen.Format = "gif"

	err := cfg.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want *ValidationError", err)
	}
	if len(ve.Problems) != 4 {
		t.Errorf("problems = %q", ve.Problems)
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	cfg := Default()
	cfg.Vision.APIKey = "from-file"

	t.Setenv("SNAPSIGHT_API_KEY", "")
	t.Setenv("AI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if key, src := cfg.APIKey(""); key != "from-file" || src != "config" {
		t.Errorf("file: %q from %q", key, src)
	}
	t.Setenv("OPENAI_API_KEY", "from-provider-env")
	if key, _ := cfg.APIKey(""); key != "from-provider-env" {
		t.Errorf("provider env: %q", key)
	}
	t.Setenv("AI_API_KEY", "from-ai-env")
	if key, _ := cfg.APIKey(""); key != "from-ai-env" {
		t.Errorf("AI_API_KEY: %q", key)
	}
	t.Setenv("SNAPSIGHT_API_KEY", "from-env")
	if key, src := cfg.APIKey(""); key != "from-env" || src != "SNAPSIGHT_API_KEY" {
		t.Errorf("env: %q from %q", key, src)
	}
	if key, src := cfg.APIKey("from-flag"); key != "from-flag" || src != "flag" {
		t.Errorf("flag: %q from %q", key, src)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Vision.APIKey = "sk-secret"
	if r := cfg.Redacted(); r.Vision.APIKey != "***" {
		t.Errorf("redacted key = %q", r.Vision.APIKey)
	}
	if cfg.Vision.APIKey != "sk-secret" {
		t.Error("Redacted modified the original")
	}
}
