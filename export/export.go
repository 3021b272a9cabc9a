// Package export writes a session transcript to the clipboard or to disk.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pbterm/clipboard"
	"pbterm/log"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("transcript is empty")

const filenameLayout = "pb_output_01_02_2006.txt"

// Filename returns the download name for a transcript saved at t,
// pb_output_MM_DD_YYYY.txt.
func Filename(t time.Time) string {
	return t.Format(filenameLayout)
}

// Copy places text on the system clipboard.
func Copy(text string) error {
	if text == "" {
		return ErrEmpty
	}
	if err := clipboard.Copy(text); err != nil {
		return fmt.Errorf("copy transcript: %w", err)
	}
	log.Infof("transcript copied (%d bytes)", len(text))
	return nil
}

// Save writes text into dir under the dated transcript name and returns the
// full path. An existing file for the same day is overwritten.
func Save(dir, text string, now time.Time) (string, error) {
	if text == "" {
		return "", ErrEmpty
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, Filename(now))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	log.Infof("transcript saved: %s (%d bytes)", path, len(text))
	return path, nil
}

// DefaultDir is the user's Downloads folder, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}
