package doctor

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pbterm/sim"
)

func TestRunAgainstSimulator(t *testing.T) {
	d := sim.New(sim.Options{StatsInterval: 20 * time.Millisecond})
	srv := httptest.NewServer(d.Handler())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
		d.Hub().CloseAll()
		srv.Close()
	}()

	var out bytes.Buffer
	code := Run(Options{Host: srv.URL, Timeout: 2 * time.Second, SkipClipboard: true}, &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "PASS: settings fetched")
	assert.Contains(t, out.String(), "UART 9600 8N1")
	assert.Contains(t, out.String(), "PASS: first frame")
	assert.Contains(t, out.String(), "[3/3]")
}

func TestRunUnreachableDevice(t *testing.T) {
	srv := httptest.NewServer(nil)
	host := srv.URL
	srv.Close()

	var out bytes.Buffer
	code := Run(Options{Host: host, Timeout: 500 * time.Millisecond, SkipClipboard: true}, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "Some checks failed")
}

func TestRunBadHost(t *testing.T) {
	var out bytes.Buffer
	code := Run(Options{Host: "", Timeout: 100 * time.Millisecond, SkipClipboard: true}, &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "FAIL: device host")
}
