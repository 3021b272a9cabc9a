package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"pbterm/clipboard"
	"pbterm/devapi"
	"pbterm/session"
	"pbterm/shutdown"
)

// Options describes what the checks run against.
type Options struct {
	Host       string
	ConfigPath string
	LogDir     string
	Timeout    time.Duration
	// SkipClipboard leaves the system clipboard untouched.
	SkipClipboard bool
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options, out io.Writer) int {
	resetTerminal()
	setupInterruptHandler()

	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	fmt.Fprintln(out, "pbterm doctor - connectivity diagnostics")
	fmt.Fprintln(out, "========================================")

	checks := []func(Options, io.Writer) bool{
		checkConfig,
		checkREST,
		checkStream,
	}
	if !opts.SkipClipboard {
		checks = append(checks, checkClipboard)
	}

	allPass := true
	for i, check := range checks {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "[%d/%d] ", i+1, len(checks))
		if !check(opts, out) {
			allPass = false
		}
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		println("\nInterrupted")
		os.Exit(1)
	}()
}

func checkConfig(opts Options, out io.Writer) bool {
	fmt.Fprintln(out, "Configuration")
	fmt.Fprintf(out, "  config file: %s\n", opts.ConfigPath)
	fmt.Fprintf(out, "  log dir:     %s\n", opts.LogDir)

	if _, err := devapi.BaseURL(opts.Host); err != nil {
		fmt.Fprintf(out, "  FAIL: device host %q: %v\n", opts.Host, err)
		return false
	}
	endpoint, err := session.Endpoint(opts.Host)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: device host %q: %v\n", opts.Host, err)
		return false
	}
	fmt.Fprintf(out, "  PASS: device %s, stream %s\n", opts.Host, endpoint)
	return true
}

func checkREST(opts Options, out io.Writer) bool {
	fmt.Fprintln(out, "Device REST resources")

	c, err := devapi.New(opts.Host, opts.Timeout)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	s, err := c.Settings(ctx)
	if err != nil {
		var serr *devapi.StatusError
		if errors.As(err, &serr) {
			fmt.Fprintf(out, "  FAIL: device answered %s\n", serr.Status)
		} else {
			fmt.Fprintf(out, "  FAIL: %v\n", err)
		}
		return false
	}
	fmt.Fprintf(out, "  UART %s, network %q, device %q\n", s.UART.Summary(), s.ActiveNetwork().SSID, s.PluggedDevice)
	fmt.Fprintln(out, "  PASS: settings fetched")
	return true
}

func checkStream(opts Options, out io.Writer) bool {
	fmt.Fprintln(out, "Terminal stream")

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := session.Dial(ctx, opts.Host)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: connect: %v\n", err)
		return false
	}
	defer conn.Close()
	fmt.Fprintf(out, "  connected in %s, waiting for first frame...\n", time.Since(start).Round(time.Millisecond))

	data, err := conn.Read(ctx)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: no frame within %s: %v\n", opts.Timeout, err)
		return false
	}
	if _, _, err := session.DecodeFrame(data); err != nil {
		fmt.Fprintf(out, "  FAIL: first frame is malformed: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "  PASS: first frame after %s (%d bytes)\n", time.Since(start).Round(time.Millisecond), len(data))
	return true
}

func checkClipboard(_ Options, out io.Writer) bool {
	fmt.Fprintln(out, "Clipboard")

	if !clipboard.Available() {
		fmt.Fprintln(out, "  FAIL: no clipboard utility found (install xclip, xsel or wl-clipboard)")
		return false
	}

	prev, prevErr := clipboard.Read()

	testStr := fmt.Sprintf("pbterm-doctor-%d", time.Now().UnixNano())
	if err := clipboard.Copy(testStr); err != nil {
		fmt.Fprintf(out, "  FAIL: clipboard copy failed: %v\n", err)
		return false
	}
	got, err := clipboard.Read()
	if err != nil {
		fmt.Fprintf(out, "  FAIL: could not read clipboard: %v\n", err)
		return false
	}

	if prevErr == nil {
		if err := clipboard.Copy(prev); err != nil {
			fmt.Fprintf(out, "  Warning: clipboard restore failed: %v\n", err)
		}
	}

	if got != testStr {
		fmt.Fprintf(out, "  FAIL: clipboard read back %q, want %q\n", got, testStr)
		return false
	}
	fmt.Fprintln(out, "  PASS: clipboard copy verified")
	return true
}
