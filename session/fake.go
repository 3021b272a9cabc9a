package session

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"
)

// FakeConn is an in-memory Conn for tests and offline runs.
type FakeConn struct {
	in chan fakeRead

	mu       sync.Mutex
	sent       [][]byte
	writeErr   error
	writeDelay time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

type fakeRead struct {
	data []byte
	err  error
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		in:     make(chan fakeRead, 64),
		closed: make(chan struct{}),
	}
}

// Push queues an inbound frame.
func (f *FakeConn) Push(frame string) {
	f.in <- fakeRead{data: []byte(frame)}
}

// Drop makes the next Read fail with err, as if the link went away.
func (f *FakeConn) Drop(err error) {
	f.in <- fakeRead{err: err}
}

// FailWrites makes every later Write return err.
func (f *FakeConn) FailWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// SetWriteDelay makes every later Write take at least d, like a slow link.
func (f *FakeConn) SetWriteDelay(d time.Duration) {
	f.mu.Lock()
	f.writeDelay = d
	f.mu.Unlock()
}

// Sent returns every frame written so far.
func (f *FakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

func (f *FakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case r := <-f.in:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *FakeConn) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	delay := f.writeDelay
	f.mu.Unlock()
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-f.closed:
			t.Stop()
			return net.ErrClosed
		}
	}

	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *FakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// ManualScheduler is a Scheduler driven by Advance instead of the wall
// clock. It is not safe for concurrent use.
type ManualScheduler struct {
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) Schedule(d time.Duration, fn func()) func() {
	m.seq++
	t := &manualTask{at: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return func() { t.cancelled = true }
}

// Elapsed returns how far the scheduler has been advanced.
func (m *ManualScheduler) Elapsed() time.Duration {
	return m.now
}

// Pending returns the number of scheduled, uncancelled callbacks.
func (m *ManualScheduler) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves time forward by d and runs every callback that falls due,
// in due order.
func (m *ManualScheduler) Advance(d time.Duration) {
	target := m.now + d
	for {
		sort.SliceStable(m.tasks, func(i, j int) bool {
			if m.tasks[i].at != m.tasks[j].at {
				return m.tasks[i].at < m.tasks[j].at
			}
			return m.tasks[i].seq < m.tasks[j].seq
		})
		var next *manualTask
		for _, t := range m.tasks {
			if !t.cancelled && t.at <= target {
				next = t
				break
			}
		}
		if next == nil {
			break
		}
		next.cancelled = true
		m.now = next.at
		next.fn()
	}
	m.now = target

	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.tasks = live
}
