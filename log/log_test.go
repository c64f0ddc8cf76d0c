package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		name, flag, env, want string
	}{
		{"absolute flag", "/tmp/mylog", "", "/tmp/mylog"},
		{"relative flag", "logs", "", filepath.Join(wd, "logs")},
		{"flag beats env", "/tmp/flag", "/tmp/env", "/tmp/flag"},
		{"env", "", "/tmp/snapsight-env-log", "/tmp/snapsight-env-log"},
		{"relative env", "", "envlogs", filepath.Join(wd, "envlogs")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SNAPSIGHT_LOG_PATH", tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("SNAPSIGHT_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "snapsight") {
		t.Errorf("default dir %q should mention snapsight", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "analysis_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestAnalysisTextOneLine(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	AnalysisText("line one\nline two")

	data, err := os.ReadFile(filepath.Join(tmp, "analysis_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d: %q", len(lines), data)
	}
	// format: "2006-01-02 15:04:05\t[pid]\ttext"
	if fields := strings.Split(lines[0], "\t"); len(fields) != 3 || fields[2] != `line one\nline two` {
		t.Errorf("unexpected line %q", lines[0])
	}
}

func TestDebugLevel(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Debug("hidden")
	SetDebug(true)
	Debug("shown")
	TriggerAccepted(7, 40*time.Millisecond)
	Logger().Info().Str("component", "monitor").Msg("injected")
	Close()

	data, _ := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("debug line written before SetDebug")
	}
	for _, want := range []string{"shown", "seq=7", "component=monitor"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	Close()
	Info("dropped")
	AnalysisText("dropped")
	SessionStart("openai", "gpt-4o-mini", "meta+shift+space")
	Logger().Info().Msg("dropped")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}
