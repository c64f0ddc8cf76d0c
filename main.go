package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"snapsight/beep"
	"snapsight/clipboard"
	"snapsight/config"
	"snapsight/doctor"
	"snapsight/history"
	"snapsight/keystate"
	"snapsight/log"
	"snapsight/monitor"
	"snapsight/screen"
	"snapsight/shutdown"
	"snapsight/trigger"
	"snapsight/vision"
)

var version = "dev"

var commands = []string{"run", "capture", "config", "test", "doctor", "history", "version"}

type options struct {
	configPath string
	combo      string
	provider   string
	model      string
	prompt     string
	apiKey     string
	debounce   time.Duration
	poll       time.Duration
	tui        bool
	copy       bool
	debug      bool
	logPath    string
	profile    string
	test       bool
	selfTest   bool
	limit      int

	set map[string]bool
}

// splitCommand peels the subcommand off args. No subcommand means run.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "run", args
	}
	for _, c := range commands {
		if args[0] == c {
			return c, args[1:]
		}
	}
	return "", args
}

func parseFlags(cmd string, args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("snapsight "+cmd, flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "config file path (default: OS config dir)")
	fs.StringVar(&o.combo, "combo", "", "hotkey combination, e.g. meta+shift+space")
	fs.StringVar(&o.provider, "provider", "", "vision provider: "+strings.Join(vision.Providers(), ", "))
	fs.StringVar(&o.model, "model", "", "vision model (default: provider's default)")
	fs.StringVar(&o.prompt, "prompt", "", "question sent with every capture (default: explain the code on screen)")
	fs.StringVar(&o.apiKey, "api-key", "", "API key (overrides environment and config)")
	fs.DurationVar(&o.debounce, "debounce", 0, "minimum time between triggers")
	fs.DurationVar(&o.poll, "poll", 0, "key state polling interval")
	fs.BoolVar(&o.tui, "tui", false, "run with terminal UI")
	fs.BoolVar(&o.copy, "copy", false, "copy each analysis (its code blocks, if any) to the clipboard")
	fs.BoolVar(&o.debug, "debug", false, "debug logging")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.profile, "profile", "", "enable pprof profiling server (e.g. localhost:6060)")
	fs.BoolVar(&o.test, "test", false, "test mode (headless, stdin-driven)")
	fs.BoolVar(&o.selfTest, "selftest", false, "doctor: press the combo through a virtual keyboard")
	fs.IntVar(&o.limit, "n", 10, "history: number of entries to list")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// applyFlags copies explicitly set flags over the file values.
func applyFlags(cfg *config.Config, o *options) {
	if o.set["combo"] {
		cfg.Hotkey.Combo = o.combo
	}
	if o.set["provider"] {
		cfg.Vision.Provider = o.provider
	}
	if o.set["model"] {
		cfg.Vision.Model = o.model
	}
	if o.set["prompt"] {
		cfg.Vision.Prompt = o.prompt
	}
	if o.set["debounce"] {
		cfg.Hotkey.DebounceWindow.Duration = o.debounce
	}
	if o.set["poll"] {
		cfg.Hotkey.PollInterval.Duration = o.poll
	}
	if o.set["copy"] {
		cfg.Output.CopyToClipboard = o.copy
	}
}

func loadConfig(o *options) (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	applyFlags(cfg, o)
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// initCrashLog sends runtime crash output to crash_log.txt in the default
// log directory, before any flags are parsed.
func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func run() {
	os.Exit(runCommand(os.Args[1:]))
}

func runCommand(args []string) int {
	cmd, rest := splitCommand(args)
	if cmd == "" {
		fmt.Fprintf(os.Stderr, "Unknown command %q (available: %s)\n", args[0], strings.Join(commands, ", "))
		return 2
	}
	if cmd == "version" {
		fmt.Printf("snapsight %s\n", version)
		return 0
	}
	o, err := parseFlags(cmd, rest)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logPath, err := log.ResolveDir(o.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SetDebug(o.debug)

	if o.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", o.profile)
			if err := http.ListenAndServe(o.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	cfg, path, err := loadConfig(o)
	if err != nil {
		log.Errorf("config error: %v", err)
		fmt.Fprintf(os.Stderr, "Error in %s: %v\n", path, err)
		return 1
	}
	if !cfg.Output.Beep {
		beep.Disable()
	}
	if (cmd == "run" && !o.test) || cmd == "capture" {
		go beep.Init()
	}

	switch cmd {
	case "config":
		return printConfig(cfg, path)
	case "history":
		return printHistory(o.limit)
	case "doctor":
		return runDoctor(cfg, o)
	case "test":
		return testConnection(cfg, o)
	case "capture":
		return captureOnce(cfg, o)
	}
	if o.test {
		return runTestMode(cfg)
	}
	return runMonitor(cfg, o)
}

func printConfig(cfg *config.Config, path string) int {
	fmt.Printf("# %s\n", path)
	if err := toml.NewEncoder(os.Stdout).Encode(cfg.Redacted()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newAnalyzer(cfg *config.Config, o *options) (*vision.Client, error) {
	key, source := cfg.APIKey(o.apiKey)
	if key == "" {
		return nil, fmt.Errorf("no API key for %s (use -api-key, SNAPSIGHT_API_KEY or api_key in the config file)", cfg.Vision.Provider)
	}
	log.Debugf("api key from %s", source)
	return vision.New(vision.Options{
		Provider:    cfg.Vision.Provider,
		APIKey:      key,
		Model:       cfg.Vision.Model,
		MaxTokens:   cfg.Vision.MaxTokens,
		Temperature: cfg.Vision.Temperature,
		Detail:      cfg.Vision.Detail,
		Timeout:     cfg.Vision.Timeout.Duration,
	})
}

func newCapturer(cfg *config.Config) *screen.Capturer {
	return screen.New(screen.Options{
		Format:      cfg.Screen.Format,
		JPEGQuality: cfg.Screen.JPEGQuality,
		MaxBytes:    cfg.Screen.MaxImageSizeMB * 1024 * 1024,
		Display:     cfg.Screen.Display,
		SaveDir:     cfg.Screen.SaveDir,
	}, *log.Logger())
}

func openHistory(cfg *config.Config) *history.DB {
	if !cfg.Output.History {
		return nil
	}
	db, err := history.Open(log.Dir())
	if err != nil {
		log.Warnf("history disabled: %v", err)
		return nil
	}
	return db
}

func printHistory(limit int) int {
	db, err := history.Open(log.Dir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := db.Recent(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("No analyses yet.")
		return 0
	}
	for _, e := range entries {
		status := "ok"
		text := e.Response
		if !e.Success {
			status = "FAIL"
			text = e.Error
		}
		fmt.Printf("%s  %-4s %s/%s  %5.1f KB  %6s  %s\n",
			e.At.Format("2006-01-02 15:04:05"), status, e.Provider, e.Model,
			float64(e.ImageBytes)/1024, e.Analyze.Round(time.Millisecond), firstLine(text, 60))
	}
	if sum, err := db.Summary(); err == nil {
		fmt.Printf("\n%d analyses, %d succeeded, avg %s\n", sum.Total, sum.Succeeded, sum.AvgAnalyze.Round(time.Millisecond))
	}
	return 0
}

func firstLine(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > n {
		s = s[:n-3] + "..."
	}
	return s
}

func runDoctor(cfg *config.Config, o *options) int {
	spec, err := cfg.Spec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	opts := doctor.Options{
		Spec:     spec,
		Capture:  newCapturer(cfg).Capture,
		SelfTest: o.selfTest,
		Poll:     cfg.Hotkey.PollInterval.Duration,
	}
	if an, err := newAnalyzer(cfg, o); err == nil {
		opts.Analyzer = an
	}
	return doctor.Run(opts)
}

// testConnection sends a 1x1 image to the provider.
func testConnection(cfg *config.Config, o *options) int {
	an, err := newAnalyzer(cfg, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Testing %s (%s)...\n", an.Name(), an.Model())
	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	res, err := an.Analyze(ctx, screen.TinyPNG, "Reply with the single word OK.")
	if err != nil {
		log.Errorf("connection test failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Response: %s\n", res.Text)
	if res.Metrics != nil {
		fmt.Printf("Latency: %s (tls %s, ttfb %s)\n", res.Metrics.Total.Round(time.Millisecond),
			res.Metrics.TLS.Round(time.Millisecond), res.Metrics.TTFB.Round(time.Millisecond))
	}
	if res.RateLimit != "" && res.RateLimit != "?/?" {
		fmt.Printf("Requests remaining: %s\n", res.RateLimit)
	}
	return 0
}

func captureOnce(cfg *config.Config, o *options) int {
	an, err := newAnalyzer(cfg, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}
	s := newSession(cfg, an, newPrinter(os.Stdout), hist)
	log.SessionStart(an.Name(), an.Model(), "capture")
	defer func() { log.SessionEnd(s.Count()) }()

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()
	if err := s.Handler(newCapturer(cfg).Capture).Handle(ctx); err != nil {
		return 1
	}
	return 0
}

func runMonitor(cfg *config.Config, o *options) int {
	spec, err := cfg.Spec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	an, err := newAnalyzer(cfg, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	an.Warm()

	src, err := keystate.New(spec)
	if err != nil {
		log.Errorf("key source error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: cannot read keyboard state: %v\n", err)
		if hint := keystate.PermissionHint(); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		return 1
	}
	defer src.Close()

	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	ctrl := monitor.New(src, spec, monitorConfig(cfg))

	var disp trigger.Display
	if o.tui {
		t := startTUI(spec.String(), fmt.Sprintf("[%s | %s]", an.Name(), an.Model()), ctrl.Stats, cancel)
		defer t.Close()
		disp = t
	} else {
		p := newPrinter(os.Stdout)
		p.Banner(spec.String(), an.Name(), an.Model())
		disp = p
	}

	s := newSession(cfg, an, disp, hist)

	log.SessionStart(an.Name(), an.Model(), spec.String())
	err = ctrl.Start(ctx, s.HandleFunc(newCapturer(cfg).Capture))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	select {
	case <-ctx.Done():
	case <-ctrl.Done():
	}
	ctrl.Stop()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := ctrl.Wait(waitCtx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
	st := ctrl.Stats()
	log.Infof("monitor stats: accepted=%d debounced=%d dropped=%d handled=%d failed=%d sample_errors=%d",
		st.Accepted, st.Debounced, st.Dropped, st.Handled, st.Failed, st.SampleErrors)
	log.SessionEnd(s.Count())
	return 0
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		PollInterval: cfg.Hotkey.PollInterval.Duration,
		Debounce:     cfg.Hotkey.DebounceWindow.Duration,
		MinHold:      cfg.Hotkey.MinHold.Duration,
		QueueSize:    cfg.Hotkey.QueueSize,
		Logger:       log.Logger(),
	}
}

// session glues one analyzer to the trigger pipeline and records what
// each run produced.
type session struct {
	analyzer vision.Analyzer
	display  trigger.Display
	hist     *history.DB
	prompt   string
	copy     bool

	mu    sync.Mutex
	last  *vision.Result
	count int
	done  chan struct{}
}

func newSession(cfg *config.Config, an vision.Analyzer, disp trigger.Display, hist *history.DB) *session {
	return &session{
		analyzer: an,
		display:  disp,
		hist:     hist,
		prompt:   cfg.Vision.Prompt,
		copy:     cfg.Output.CopyToClipboard,
		done:     make(chan struct{}, 1),
	}
}

func (s *session) Handler(capture trigger.CaptureFunc) *trigger.Handler {
	return &trigger.Handler{
		Capture:    capture,
		Analyze:    s.analyze,
		Display:    s.display,
		Prompt:     s.prompt,
		OnComplete: s.complete,
		Logger:     log.Logger(),
	}
}

func (s *session) HandleFunc(capture trigger.CaptureFunc) monitor.HandleFunc {
	h := s.Handler(capture)
	return func(ctx context.Context, sig monitor.Signal) error {
		log.TriggerAccepted(sig.Seq, sig.HeldFor)
		beep.Play(beep.Trigger)
		return h.Handle(ctx)
	}
}

func (s *session) analyze(ctx context.Context, image []byte, prompt string) (string, error) {
	res, err := s.analyzer.Analyze(ctx, image, prompt)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res.Text, nil
}

func (s *session) complete(out trigger.Outcome) {
	s.mu.Lock()
	res := s.last
	s.last = nil
	s.count++
	s.mu.Unlock()

	if out.Err != nil {
		beep.Play(beep.Failure)
	} else {
		log.AnalysisText(out.Text)
		if res != nil {
			s.logMetrics(out, res)
		}
		if s.copy {
			if err := clipboard.CopyCode(out.Text); err != nil {
				log.Warnf("clipboard copy failed: %v", err)
			}
		}
		beep.Play(beep.Done)
	}
	s.record(out)

	select {
	case s.done <- struct{}{}:
	default:
	}
}

func (s *session) logMetrics(out trigger.Outcome, res *vision.Result) {
	m := log.Metrics{
		ImageKB:   float64(out.ImageBytes) / 1024,
		CaptureMs: float64(out.Capture.Microseconds()) / 1000,
		PromptTok: res.PromptTokens,
		OutputTok: res.OutputTokens,
	}
	var reused bool
	var proto string
	if nm := res.Metrics; nm != nil {
		m.DNSTimeMs = float64(nm.DNS.Microseconds()) / 1000
		m.TLSTimeMs = float64(nm.TLS.Microseconds()) / 1000
		m.TTFBMs = float64(nm.TTFB.Microseconds()) / 1000
		m.TotalTimeMs = float64(nm.Total.Microseconds()) / 1000
		reused, proto = nm.ConnReused, nm.TLSProtocol
	}
	log.AnalysisMetrics(m, s.analyzer.Name(), s.analyzer.Model(), reused, proto)
	if res.RateLimit != "" && res.RateLimit != "?/?" {
		log.Info("rate_limit: " + res.RateLimit)
	}
}

func (s *session) record(out trigger.Outcome) {
	if s.hist == nil {
		return
	}
	e := &history.Entry{
		At:         out.Started,
		Provider:   s.analyzer.Name(),
		Model:      s.analyzer.Model(),
		Question:   s.prompt,
		ImageBytes: out.ImageBytes,
		Capture:    out.Capture,
		Analyze:    out.Analyze,
		Response:   out.Text,
		Success:    out.Err == nil,
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if err := s.hist.Save(e); err != nil {
		log.Warnf("history save failed: %v", err)
	}
}

func (s *session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Completed receives after each finished run, at most one pending.
func (s *session) Completed() <-chan struct{} { return s.done }
