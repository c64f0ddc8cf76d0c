package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"snapsight/beep"
	"snapsight/combo"
	"snapsight/config"
	"snapsight/keystate"
	"snapsight/log"
	"snapsight/monitor"
	"snapsight/screen"
	"snapsight/vision"
)

// FakeAnalysis is the answer every capture gets in test mode.
const FakeAnalysis = "fake analysis of the captured screen"

// runTestMode drives the monitor from stdin instead of the keyboard:
//
//	KEYS a+b   hold exactly these keys
//	KEYS       release everything
//	SLEEP ms   pause the script
//	WAIT       block until the next analysis finishes
//	QUIT       stop and exit
//
// Capture and analysis are fakes so no display or network is needed.
func runTestMode(cfg *config.Config) int {
	beep.Disable()

	spec, err := cfg.Spec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	src := keystate.NewScripted()
	defer src.Close()

	an := vision.NewFake(FakeAnalysis, nil)
	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}
	s := newSession(cfg, an, newPrinter(os.Stdout), hist)
	ctrl := monitor.New(src, spec, monitorConfig(cfg))

	log.SessionStart(an.Name(), an.Model(), spec.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx, s.HandleFunc(screen.NewFake().Capture)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	scanner := bufio.NewScanner(os.Stdin)
script:
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "KEYS":
			src.Set(combo.Snapshot{})
		case strings.HasPrefix(cmd, "KEYS "):
			src.Set(parseKeys(cmd[5:]))
		case cmd == "WAIT":
			select {
			case <-s.Completed():
			case <-time.After(10 * time.Second):
				log.Warn("test_wait_timeout")
			}
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "QUIT":
			break script
		}
	}

	ctrl.Stop()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	ctrl.Wait(waitCtx)

	st := ctrl.Stats()
	log.Infof("monitor stats: accepted=%d debounced=%d dropped=%d handled=%d failed=%d",
		st.Accepted, st.Debounced, st.Dropped, st.Handled, st.Failed)
	log.SessionEnd(s.Count())
	return 0
}

func parseKeys(s string) combo.Snapshot {
	snap := combo.Snapshot{}
	for _, k := range strings.Split(s, "+") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			snap[combo.Key(k)] = struct{}{}
		}
	}
	return snap
}
