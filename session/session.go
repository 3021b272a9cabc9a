package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pbterm/log"
)

var ErrClosed = errors.New("session closed")

const eventQueueSize = 256

// Session owns one connection and the state it drives. All state changes
// happen on the goroutine running Run; the reader, the writer and pulse
// timers only enqueue work for it.
type Session struct {
	conn  Conn
	sink  Sink
	state *State

	events chan func() error
	outbox *outbox
	done   chan struct{}
	closed atomic.Bool
	ran    atomic.Bool

	connectDur time.Duration
	startedAt  time.Time

	mu  sync.Mutex
	err error
}

type options struct {
	now        func() time.Time
	sched      Scheduler
	connectDur time.Duration
}

type Option func(*options)

// WithClock sets the clock used to stamp output lines.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithScheduler replaces the pulse timer source. Callbacks from a custom
// scheduler must be delivered through the session, e.g. by a test driving
// it from the same goroutine that inspects state.
func WithScheduler(s Scheduler) Option {
	return func(o *options) { o.sched = s }
}

func withConnectDuration(d time.Duration) Option {
	return func(o *options) { o.connectDur = d }
}

func New(conn Conn, sink Sink, opts ...Option) *Session {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if sink == nil {
		sink = NopSink{}
	}

	s := &Session{
		conn:       conn,
		sink:       sink,
		events:     make(chan func() error, eventQueueSize),
		outbox:     newOutbox(),
		done:       make(chan struct{}),
		connectDur: o.connectDur,
	}
	sched := o.sched
	if sched == nil {
		sched = loopScheduler{s: s}
	}
	s.state = NewState(sink, sched, o.now, s.enqueueOutbound)
	return s
}

// Connect dials the device at host and returns a session ready to Run.
func Connect(ctx context.Context, host string, sink Sink, opts ...Option) (*Session, error) {
	endpoint, err := Endpoint(host)
	if err != nil {
		return nil, err
	}
	log.SessionStart(host, endpoint)

	start := time.Now()
	conn, err := Dial(ctx, host)
	if err != nil {
		log.Errorf("connect failed: %v", err)
		return nil, err
	}
	opts = append(opts, withConnectDuration(time.Since(start)))
	return New(conn, sink, opts...), nil
}

// Run processes events until ctx is cancelled or the connection fails.
// A transport fault is returned and also passed to Sink.Closed; a
// cancelled ctx ends the session with a nil error. Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}
	defer close(s.done)
	s.startedAt = time.Now()

	ioCtx, cancelIO := context.WithCancel(ctx)
	defer cancelIO()
	g, gctx := errgroup.WithContext(ioCtx)
	g.Go(func() error { return s.runReceiver(gctx) })
	g.Go(func() error { return s.runSender(gctx) })

	err := s.runLoop(ctx)
	s.closed.Store(true)
	s.outbox.close()
	cancelIO()
	s.conn.Close()
	_ = g.Wait()

	s.mu.Lock()
	s.state.Telemetry.Stop()
	s.err = err
	s.mu.Unlock()

	s.logStats()
	log.SessionEnd(s.state.stats.linesAdded, err)
	s.sink.Closed(err)
	return err
}

func (s *Session) runLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			if err := ev(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) runReceiver(ctx context.Context) error {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = fmt.Errorf("receive: %w", err)
			s.postCtx(ctx, func() error { return err })
			return err
		}
		if s.postCtx(ctx, func() error {
			s.state.HandleFrame(data)
			return nil
		}) != nil {
			return ctx.Err()
		}
	}
}

func (s *Session) runSender(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.outbox.ready:
		}
		for _, data := range s.outbox.drain() {
			if err := s.conn.Write(ctx, data); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				err = fmt.Errorf("send: %w", err)
				s.postCtx(ctx, func() error { return err })
				return err
			}
		}
	}
}

// enqueueOutbound queues a frame for the writer. Frames are only refused
// once the session is closing.
func (s *Session) enqueueOutbound(data []byte) bool {
	return s.outbox.push(data)
}

func (s *Session) post(ev func() error) error {
	return s.postCtx(context.Background(), ev)
}

func (s *Session) postCtx(ctx context.Context, ev func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues one line of input. It never waits for the device; the
// only error is ErrClosed once the session has ended.
func (s *Session) Submit(text string) error {
	return s.post(func() error {
		if err := s.state.HandleSubmit(text); err != nil {
			log.Errorf("submit: %v", err)
		}
		return nil
	})
}

// inspect runs fn against the state: on the loop while the session is
// live, directly once it has ended.
func (s *Session) inspect(ctx context.Context, fn func(st *State)) error {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(s.state)
		return nil
	default:
	}

	ran := make(chan struct{})
	err := s.post(func() error {
		fn(s.state)
		close(ran)
		return nil
	})
	if errors.Is(err, ErrClosed) {
		<-s.done
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(s.state)
		return nil
	}
	if err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case <-ran:
			return nil
		default:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(s.state)
		return nil
	}
}

// Clear empties the transcript.
func (s *Session) Clear(ctx context.Context) error {
	return s.inspect(ctx, func(st *State) { st.HandleClear() })
}

// ExportText returns the transcript as text. It keeps working after the
// session has ended.
func (s *Session) ExportText(ctx context.Context) (string, error) {
	var text string
	err := s.inspect(ctx, func(st *State) { text = st.Transcript.ExportText() })
	return text, err
}

type Snapshot struct {
	Mode       InputMode
	Affordance Affordance
	Display    Display
	Lines      []OutputLine
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.inspect(ctx, func(st *State) {
		snap = Snapshot{
			Mode:       st.Mode.Mode(),
			Affordance: st.Mode.Affordance(),
			Display:    st.Telemetry.Display(),
			Lines:      st.Transcript.Lines(),
		}
	})
	return snap, err
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) logStats() {
	st := s.state.stats
	log.ChannelStats(log.ChannelStatsData{
		ConnectMs:    float64(s.connectDur.Milliseconds()),
		FramesRecv:   st.framesRecv,
		DecodeFaults: st.decodeFaults,
		FieldFaults:  st.fieldFaults,
		LinesAdded:   st.linesAdded,
		InputsSent:   st.inputsSent,
		InputsDrop:   st.inputsDrop,
		SessionMs:    float64(time.Since(s.startedAt).Milliseconds()),
	})
}

// loopScheduler delivers pulse expiries as events on the session loop.
// cancelled is only touched on the loop goroutine.
type loopScheduler struct {
	s *Session
}

func (l loopScheduler) Schedule(d time.Duration, fn func()) func() {
	cancelled := false
	t := time.AfterFunc(d, func() {
		l.s.post(func() error {
			if !cancelled {
				fn()
			}
			return nil
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}
