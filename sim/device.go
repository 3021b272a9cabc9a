// Package sim emulates a PicoBridge on the network: the /ws terminal stream,
// the telemetry it broadcasts, and the REST resources for settings, identify
// mode and CR/LF translation.
package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"pbterm/devapi"
	"pbterm/log"
	"pbterm/session"
)

type Options struct {
	// Interval of rx_bps/tx_bps and mem_alloc/mem_free frames. Default 1s.
	StatsInterval time.Duration
	// Interval of rx/tx activity frames. Default 50ms.
	ActivityInterval time.Duration
	// Credentials accepted by the console. Empty Username accepts anything.
	Username string
	Password string
	Settings *devapi.Settings
	Now      func() time.Time
}

// Device is the simulated bridge. Create with New, mount Handler, and keep
// Run going for the periodic telemetry.
type Device struct {
	opts Options
	hub  *Hub

	// out serializes console output so frames leave in the order produced.
	out sync.Mutex

	mu         sync.Mutex
	settings   devapi.Settings
	identify   bool
	uartToCRLF bool
	crlfToUART bool
	console    *Console
	framer     *Framer
	rxBytes    int64
	txBytes    int64
	rxActive   bool
	txActive   bool
	lastStats  time.Time
}

func New(opts Options) *Device {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if opts.ActivityInterval <= 0 {
		opts.ActivityInterval = 50 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	settings := devapi.DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	return &Device{
		opts:       opts,
		hub:        NewHub(),
		settings:   settings,
		crlfToUART: true,
		console:    NewConsole(opts.Username, opts.Password, opts.Now),
		framer:     NewFramer(),
		lastStats:  opts.Now(),
	}
}

func (d *Device) Hub() *Hub { return d.hub }

// Handler routes the terminal socket and the REST resources.
func (d *Device) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", d.handleWS)
	r.HandleFunc(devapi.PathSettings, d.getSettings).Methods("GET")
	r.HandleFunc(devapi.PathSettings, d.postSettings).Methods("POST")
	r.HandleFunc(devapi.PathIdentify, d.getIdentify).Methods("GET")
	r.HandleFunc(devapi.PathIdentifyStart, d.setIdentify(true)).Methods("GET")
	r.HandleFunc(devapi.PathIdentifyStop, d.setIdentify(false)).Methods("GET")
	r.HandleFunc(devapi.PathUARTToCRLF+"/{state:enable|disable}", d.toggle(&d.uartToCRLF, "uart_to_crlf")).Methods("GET")
	r.HandleFunc(devapi.PathCRLFToUART+"/{state:enable|disable}", d.toggle(&d.crlfToUART, "crlf_to_uart")).Methods("GET")
	return r
}

// Run broadcasts activity, throughput and memory frames until ctx ends.
func (d *Device) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, d.opts.ActivityInterval, d.broadcastActivity)
	})
	g.Go(func() error {
		return every(ctx, d.opts.StatsInterval, func(ctx context.Context) {
			d.broadcastThroughput(ctx)
			d.broadcastMemory(ctx)
		})
	})
	return g.Wait()
}

func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn(ctx)
		}
	}
}

func (d *Device) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Warnf("sim: accept: %v", err)
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	d.hub.Register(c)
	defer d.hub.Unregister(c)

	// A new terminal gets the current prompt, like a CR on the line.
	d.wake(ctx, c)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		d.HandleInput(ctx, data)
	}
}

// HandleInput processes one inbound terminal frame. Frames without an
// input field are ignored.
func (d *Device) HandleInput(ctx context.Context, raw []byte) {
	text, ok, err := session.DecodeInput(raw)
	if err != nil {
		log.Warnf("sim: bad input frame: %v", err)
		return
	}
	if !ok {
		return
	}

	d.out.Lock()
	defer d.out.Unlock()

	d.mu.Lock()
	if d.crlfToUART {
		text += "\r"
	}
	d.txBytes += int64(len(text))
	d.txActive = true
	reply := d.console.Input(text)
	frames := d.frameOutput(reply)
	d.mu.Unlock()

	d.hub.Broadcast(ctx, frames...)
}

func (d *Device) wake(ctx context.Context, c *websocket.Conn) {
	d.out.Lock()
	defer d.out.Unlock()

	d.mu.Lock()
	frames := d.frameOutput(d.console.Wake())
	d.mu.Unlock()

	d.hub.SendTo(ctx, c, frames...)
}

// frameOutput accounts for bytes coming off the UART and turns them into
// output frames. Caller holds d.mu.
func (d *Device) frameOutput(out string) [][]byte {
	if out == "" {
		return nil
	}
	d.rxBytes += int64(len(out))
	d.rxActive = true
	if d.uartToCRLF {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	texts := append(d.framer.Feed([]byte(out)), d.framer.Flush()...)
	payloads := make([][]byte, 0, len(texts))
	for _, t := range texts {
		p, err := json.Marshal(map[string]string{"output": t})
		if err != nil {
			continue
		}
		payloads = append(payloads, p)
	}
	return payloads
}

func (d *Device) broadcastActivity(ctx context.Context) {
	d.mu.Lock()
	rx, tx := d.rxActive, d.txActive
	d.rxActive, d.txActive = false, false
	d.mu.Unlock()

	if !rx && !tx {
		return
	}
	d.broadcastJSON(ctx, map[string]bool{"rx": rx, "tx": tx})
}

func (d *Device) broadcastThroughput(ctx context.Context) {
	d.mu.Lock()
	now := d.opts.Now()
	elapsed := now.Sub(d.lastStats).Seconds()
	d.lastStats = now
	var rx, tx int64
	if elapsed > 0 {
		rx = int64(float64(d.rxBytes) / elapsed)
		tx = int64(float64(d.txBytes) / elapsed)
	}
	d.rxBytes, d.txBytes = 0, 0
	d.mu.Unlock()

	d.broadcastJSON(ctx, map[string]int64{"rx_bps": rx, "tx_bps": tx})
}

func (d *Device) broadcastMemory(ctx context.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	d.broadcastJSON(ctx, map[string]uint64{
		"mem_alloc": ms.HeapAlloc,
		"mem_free":  ms.HeapSys - ms.HeapAlloc,
	})
}

func (d *Device) broadcastJSON(ctx context.Context, v any) {
	p, err := json.Marshal(v)
	if err != nil {
		log.Errorf("sim: marshal: %v", err)
		return
	}
	d.hub.Broadcast(ctx, p)
}
