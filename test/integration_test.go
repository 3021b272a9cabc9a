//go:build integration

package test_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pbterm/sim"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("PBTERM_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "PBTERM_TEST_BIN not set; build pbterm and point PBTERM_TEST_BIN at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func lines(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func startSim(t *testing.T, opts sim.Options) *sim.Device {
	t.Helper()
	d := sim.New(opts)
	srv := httptest.NewServer(d.Handler())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		d.Hub().CloseAll()
		srv.Close()
	})
	t.Setenv("PBTERM_HOST", srv.URL)
	return d
}

type result struct {
	stdout, stderr string
	logDir         string
}

func runPBTerm(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	logDir := t.TempDir()
	cmdArgs := append([]string{"--logpath", logDir, "--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("pbterm exited with error: %v\nstdout: %s\nstderr: %s", err, stdout.String(), stderr.String())
	}
	return result{stdout: stdout.String(), stderr: stderr.String(), logDir: logDir}
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

func TestPlainLogin(t *testing.T) {
	startSim(t, sim.Options{Username: "admin", Password: "pico"})

	res := runPBTerm(t, lines("admin", "pico", "version"), "--plain")

	for _, want := range []string{"Username:", "Password:", "Welcome admin", sim.Version} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
	if !strings.Contains(res.stderr, "[input: secret]") {
		t.Errorf("expected secret mode notice on stderr:\n%s", res.stderr)
	}

	diag := readLog(t, res.logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "input_mode", "channel_stats", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %q", want)
		}
	}
	if strings.Contains(diag, "pico ") || strings.Contains(diag, "=pico") {
		t.Error("password leaked into diagnostics log")
	}
}

func TestPlainSave(t *testing.T) {
	startSim(t, sim.Options{})
	dl := t.TempDir()

	res := runPBTerm(t, lines("root", "x", "whoami"), "--plain", "--save", "--download-dir", dl)

	name := time.Now().Format("pb_output_01_02_2006.txt")
	data, err := os.ReadFile(filepath.Join(dl, name))
	if err != nil {
		t.Fatalf("transcript not saved: %v\nstderr: %s", err, res.stderr)
	}
	if !strings.Contains(string(data), "Welcome root") {
		t.Errorf("saved transcript missing login:\n%s", data)
	}
}

func TestSettingsCommands(t *testing.T) {
	d := startSim(t, sim.Options{})

	res := runPBTerm(t, "", "settings", "set", "--baud", "115200", "--device", "router-7")
	if !strings.Contains(res.stdout, "settings saved") {
		t.Fatalf("unexpected output: %s", res.stdout)
	}
	if got := d.Settings().UART.Baudrate; got != 115200 {
		t.Errorf("baudrate = %d, want 115200", got)
	}

	res = runPBTerm(t, "", "settings")
	if !strings.Contains(res.stdout, "115200 baud") || !strings.Contains(res.stdout, "router-7") {
		t.Errorf("settings output missing saved values:\n%s", res.stdout)
	}
}

func TestIdentifyAndCRLF(t *testing.T) {
	d := startSim(t, sim.Options{})

	res := runPBTerm(t, "", "identify", "on")
	if !strings.Contains(res.stdout, "identify: on") || !d.Identifying() {
		t.Errorf("identify not started: %s", res.stdout)
	}
	runPBTerm(t, "", "identify", "off")
	if d.Identifying() {
		t.Error("identify still active")
	}

	runPBTerm(t, "", "crlf", "uart-to-crlf", "on")
	if uartToCRLF, _ := d.Translation(); !uartToCRLF {
		t.Error("uart_to_crlf not enabled")
	}
}

func TestDoctor(t *testing.T) {
	startSim(t, sim.Options{})
	res := runPBTerm(t, "", "doctor", "--no-clipboard")
	if !strings.Contains(res.stdout, "All checks passed!") {
		t.Errorf("doctor failed:\n%s", res.stdout)
	}
}
