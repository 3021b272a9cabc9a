package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbterm/sim"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startSim(t *testing.T, opts sim.Options) *httptest.Server {
	t.Helper()
	if opts.StatsInterval == 0 {
		opts.StatsInterval = time.Hour
	}
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
	return srv
}

func TestRunPlainLogin(t *testing.T) {
	srv := startSim(t, sim.Options{Username: "admin", Password: "pico"})

	var out, errOut syncBuffer
	saveDir := t.TempDir()
	now := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)

	err := runPlain(context.Background(), plainOptions{
		host:    srv.URL,
		in:      strings.NewReader("admin\npico\nwhoami\n"),
		out:     &out,
		errOut:  &errOut,
		saveDir: saveDir,
		linger:  500 * time.Millisecond,
		now:     func() time.Time { return now },
	})
	require.NoError(t, err)

	stdout := out.String()
	assert.Contains(t, stdout, "Username:")
	assert.Contains(t, stdout, "Password:")
	assert.Contains(t, stdout, "Welcome admin")
	assert.NotContains(t, stdout, "\npico\n", "password is never echoed")
	assert.Contains(t, errOut.String(), "[input: secret]")

	data, err := os.ReadFile(filepath.Join(saveDir, "pb_output_05_02_2024.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Welcome admin")
}

func TestRunPlainUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	host := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := runPlain(ctx, plainOptions{
		host:   host,
		in:     strings.NewReader(""),
		out:    &syncBuffer{},
		errOut: &syncBuffer{},
	})
	assert.Error(t, err)
}

func TestRunPlainLongScriptKeepsEveryLine(t *testing.T) {
	srv := startSim(t, sim.Options{Username: "admin", Password: "pico"})

	const n = 150
	var script strings.Builder
	script.WriteString("admin\npico\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&script, "cmd%03d\n", i)
	}

	var out, errOut syncBuffer
	err := runPlain(context.Background(), plainOptions{
		host:   srv.URL,
		in:     strings.NewReader(script.String()),
		out:    &out,
		errOut: &errOut,
		linger: 2 * time.Second,
	})
	require.NoError(t, err)

	stdout := out.String()
	last := -1
	for i := 0; i < n; i++ {
		reply := fmt.Sprintf("cmd%03d: command not found", i)
		idx := strings.Index(stdout, reply)
		require.GreaterOrEqual(t, idx, 0, "missing reply %q", reply)
		assert.Greater(t, idx, last, "reply %q out of order", reply)
		last = idx
	}
}

func TestRunPlainReportsOverlongInput(t *testing.T) {
	srv := startSim(t, sim.Options{})

	long := strings.Repeat("x", maxInputLine+1) + "\n"
	var out, errOut syncBuffer
	err := runPlain(context.Background(), plainOptions{
		host:   srv.URL,
		in:     strings.NewReader(long),
		out:    &out,
		errOut: &errOut,
		linger: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "read input:")
	assert.Contains(t, errOut.String(), "token too long")
}
