package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
	sessionID string
)

const diagFileName = "diagnostics_log.txt"

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: PBTERM_LOG_PATH environment variable
	envPath := os.Getenv("PBTERM_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// SessionID identifies this process run in every diagnostics line.
func SessionID() string {
	return sessionID
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()
	sessionID = uuid.NewString()

	var err error
	diagPath := filepath.Join(dir, diagFileName)
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().
		Timestamp().
		Int("pid", pid).
		Str("session", sessionID).
		Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// DecodeFault records an inbound frame that was discarded.
func DecodeFault(err error, size int) {
	if !logReady {
		return
	}
	diagLog.Warn().Err(err).Int("bytes", size).Msg("decode_fault")
}

// FieldFault records a single frame field that was skipped.
func FieldFault(err error) {
	if !logReady {
		return
	}
	diagLog.Warn().Err(err).Msg("field_fault")
}

// ModeChange records an input mode transition. The line that caused it is
// not logged.
func ModeChange(mode, cause string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("mode", mode).Str("cause", cause).Msg("input_mode")
}

// Collaborator records the outcome of a REST call to the device.
func Collaborator(method, path string, status int, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("path", path).
		Int("status", status).
		Msg("collaborator")
}

type ChannelStatsData struct {
	ConnectMs    float64
	FramesRecv   int
	DecodeFaults int
	FieldFaults  int
	LinesAdded   int
	InputsSent   int
	InputsDrop   int
	SessionMs    float64
}

func ChannelStats(m ChannelStatsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("connect_ms", m.ConnectMs).
		Int("frames_recv", m.FramesRecv).
		Int("decode_faults", m.DecodeFaults).
		Int("field_faults", m.FieldFaults).
		Int("lines", m.LinesAdded).
		Int("inputs_sent", m.InputsSent).
		Int("inputs_dropped", m.InputsDrop).
		Float64("session_ms", m.SessionMs).
		Msg("channel_stats")
}

func SessionStart(host, endpoint string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("host", host).
		Str("endpoint", endpoint).
		Msg("session_start")
}

func SessionEnd(lines int, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Int("lines", lines).Msg("session_end")
}
