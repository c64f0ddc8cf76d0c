package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog      zerolog.Logger
	diagFile     *os.File
	analysisFile *os.File
	logMu        sync.Mutex
	logReady     bool
	pid          int
	dir          string
)

type Metrics struct {
	ImageKB     float64
	CaptureMs   float64
	DNSTimeMs   float64
	TLSTimeMs   float64
	TTFBMs      float64
	TotalTimeMs float64
	PromptTok   int
	OutputTok   int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: SNAPSIGHT_LOG_PATH environment variable
	if envPath := os.Getenv("SNAPSIGHT_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	analysisPath := filepath.Join(dir, "analysis_log.txt")
	analysisFile, err = os.OpenFile(analysisPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(zerolog.InfoLevel).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if analysisFile != nil {
		analysisFile.Close()
		analysisFile = nil
	}
	logReady = false
}

// SetDebug lowers the diagnostics level to debug.
func SetDebug(on bool) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return
	}
	if on {
		diagLog = diagLog.Level(zerolog.DebugLevel)
	} else {
		diagLog = diagLog.Level(zerolog.InfoLevel)
	}
}

// Logger returns the diagnostics logger for packages that take one by
// injection. Before Init it discards everything.
func Logger() *zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		nop := zerolog.Nop()
		return &nop
	}
	l := diagLog
	return &l
}

func Debug(msg string) {
	if logReady {
		diagLog.Debug().Msg(msg)
	}
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func AnalysisMetrics(m Metrics, provider, model string, connReused bool, tlsProto string) {
	if !logReady {
		return
	}

	connStatus := "new"
	if connReused {
		connStatus = "reused"
	}

	ev := diagLog.Info().
		Str("provider", provider).
		Str("model", model).
		Str("conn", connStatus)
	if tlsProto != "" {
		ev = ev.Str("tls_proto", tlsProto)
	}
	ev.Float64("image_kb", m.ImageKB).
		Float64("capture_ms", m.CaptureMs).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Int("prompt_tokens", m.PromptTok).
		Int("output_tokens", m.OutputTok).
		Msg("analysis")
}

// AnalysisText appends one tab-separated line to analysis_log.txt.
// Newlines in text are escaped so each analysis stays on one line.
func AnalysisText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	text = strings.ReplaceAll(text, "\n", `\n`)
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	analysisFile.WriteString(line)
}

func TriggerAccepted(seq uint64, heldFor time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("seq", seq).
		Dur("held", heldFor).
		Msg("trigger")
}

func SessionStart(provider, model, combo string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("model", model).
		Str("combo", combo).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
