package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"pbterm/export"
	"pbterm/log"
	"pbterm/session"
)

// maxInputLine bounds a single stdin line in line mode.
const maxInputLine = 1 << 20

type plainOptions struct {
	host    string
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	saveDir string // empty: do not save
	linger  time.Duration
	now     func() time.Time
}

// plainSink writes output lines to out and input mode changes to errOut.
type plainSink struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

func (s *plainSink) Output(l session.OutputLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, l.Rendered())
}

func (s *plainSink) Mode(m session.InputMode, a session.Affordance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Masked {
		fmt.Fprintln(s.errOut, "[input: secret]")
	} else {
		fmt.Fprintf(s.errOut, "[input: %s]\n", m)
	}
}

func (s *plainSink) notice(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.errOut, format+"\n", args...)
}

func (s *plainSink) Telemetry(session.Display) {}
func (s *plainSink) Cleared()                  {}

func (s *plainSink) Closed(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.errOut, "connection lost: %v\n", err)
}

// runPlain drives a session from a line-oriented stream: each input line is
// submitted verbatim. When the input ends the session stays open for linger
// to collect trailing output, then closes.
func runPlain(ctx context.Context, opts plainOptions) error {
	if opts.now == nil {
		opts.now = time.Now
	}
	sink := &plainSink{out: opts.out, errOut: opts.errOut}
	sess, err := session.Connect(ctx, opts.host, sink)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(runCtx) }()

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		scanner := bufio.NewScanner(opts.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxInputLine)
		for scanner.Scan() {
			if err := sess.Submit(scanner.Text()); err != nil {
				if !errors.Is(err, session.ErrClosed) {
					log.Errorf("submit: %v", err)
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Errorf("read input: %v", err)
			sink.notice("read input: %v", err)
		}
	}()

	select {
	case <-inputDone:
		select {
		case <-time.After(opts.linger):
		case <-sess.Done():
		}
		cancel()
	case <-sess.Done():
	}
	err = <-runErr

	if opts.saveDir != "" {
		text, xerr := sess.ExportText(context.Background())
		if xerr == nil {
			path, serr := export.Save(opts.saveDir, text, opts.now())
			switch {
			case serr == nil:
				fmt.Fprintln(opts.errOut, "transcript saved to", path)
			case !errors.Is(serr, export.ErrEmpty):
				fmt.Fprintln(opts.errOut, "save failed:", serr)
			}
		}
	}
	return err
}
