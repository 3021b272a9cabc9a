package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no system clipboard utility can be found
// (for example xclip/xsel/wl-copy missing on Linux, or a headless session).
var ErrUnavailable = errors.New("clipboard unavailable")

// Available reports whether the system clipboard can be used.
func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}
