//go:build integration

package test_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snapsight/history"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SNAPSIGHT_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SNAPSIGHT_TEST_BIN not set; point it at a built snapsight binary")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// runSnapsight runs the binary in -test mode with an isolated config and
// log directory and returns the log directory.
func runSnapsight(t *testing.T, stdin string, args ...string) (logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	cmdArgs := append([]string{"-test", "-logpath", logDir, "-config", cfgPath, "-combo", "a+b"}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	done := make(chan struct{})
	var out []byte
	var err error
	go func() {
		out, err = cmd.CombinedOutput()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		cmd.Process.Kill()
		t.Fatal("snapsight did not exit")
	}
	if err != nil {
		t.Fatalf("snapsight exited with error: %v\noutput: %s", err, out)
	}
	return logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func countAnalyses(t *testing.T, logDir string) int {
	t.Helper()
	text := readLog(t, logDir, "analysis_log.txt")
	return strings.Count(text, "fake analysis of the captured screen")
}

func TestSinglePress(t *testing.T) {
	logDir := runSnapsight(t, cmds("KEYS a", "SLEEP 150", "KEYS a+b", "WAIT", "KEYS", "QUIT"))
	if n := countAnalyses(t, logDir); n != 1 {
		t.Errorf("got %d analyses, want 1", n)
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "trigger", "analysis", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %q", want)
		}
	}
}

func TestHeldComboTriggersOnce(t *testing.T) {
	logDir := runSnapsight(t, cmds("KEYS a+b", "WAIT", "SLEEP 1500", "KEYS", "SLEEP 200", "QUIT"))
	if n := countAnalyses(t, logDir); n != 1 {
		t.Errorf("holding the combo gave %d analyses, want 1", n)
	}
}

func TestDebounceSuppressesQuickRepress(t *testing.T) {
	logDir := runSnapsight(t, cmds(
		"KEYS a+b", "WAIT", "KEYS", "SLEEP 150",
		"KEYS a+b", "SLEEP 150", "KEYS", "SLEEP 200", "QUIT",
	), "-debounce", "2s")
	if n := countAnalyses(t, logDir); n != 1 {
		t.Errorf("got %d analyses, want 1 inside the debounce window", n)
	}
}

func TestRepressAfterWindow(t *testing.T) {
	logDir := runSnapsight(t, cmds(
		"KEYS a+b", "WAIT", "KEYS", "SLEEP 400",
		"KEYS a+b", "WAIT", "KEYS", "QUIT",
	), "-debounce", "300ms")
	if n := countAnalyses(t, logDir); n != 2 {
		t.Errorf("got %d analyses, want 2", n)
	}
}

func TestHistoryRecorded(t *testing.T) {
	logDir := runSnapsight(t, cmds("KEYS a+b", "WAIT", "KEYS", "QUIT"))

	db, err := history.Open(logDir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	entries, err := db.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Success || entries[0].Provider != "fake" {
		t.Errorf("history = %+v", entries)
	}
}
