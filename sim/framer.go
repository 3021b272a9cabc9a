package sim

import (
	"strings"
	"unicode/utf8"
)

// DefaultFlushTokens are prompts and pager markers that are emitted as their
// own frame as soon as they appear, without waiting for a newline.
var DefaultFlushTokens = []string{"Username:", "Password:", "login:", "--More--"}

// Framer cuts raw console output into display frames: complete lines, flush
// tokens, and (on Flush) whatever partial text is pending.
type Framer struct {
	tokens []string
	tail   []byte // incomplete UTF-8 sequence from the previous chunk
	accum  string
}

func NewFramer(tokens ...string) *Framer {
	if len(tokens) == 0 {
		tokens = DefaultFlushTokens
	}
	return &Framer{tokens: tokens}
}

// Feed consumes a chunk of raw output and returns the frames it completes.
func (f *Framer) Feed(chunk []byte) []string {
	s := f.decode(chunk)
	if s == "" {
		return nil
	}
	f.accum = applyBackspaces(f.accum + normalizeNewlines(s))

	var frames []string
	for {
		nl := strings.IndexByte(f.accum, '\n')
		if nl < 0 {
			break
		}
		frames = append(frames, f.accum[:nl+1])
		f.accum = f.accum[nl+1:]
	}

	for f.accum != "" {
		before, tok, after, ok := f.splitToken(f.accum)
		if !ok {
			break
		}
		if before != "" {
			frames = append(frames, before+"\n")
		}
		frames = append(frames, tok+"\n")
		f.accum = after
	}
	return frames
}

// Flush returns the pending partial line, if any.
func (f *Framer) Flush() []string {
	if f.accum == "" {
		return nil
	}
	frame := f.accum
	f.accum = ""
	return []string{frame}
}

func (f *Framer) decode(chunk []byte) string {
	b := append(f.tail, chunk...)
	f.tail = nil

	// Hold back a trailing incomplete rune until the next chunk.
	cut := len(b)
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				cut = len(b) - i
			}
			break
		}
	}
	f.tail = append([]byte(nil), b[cut:]...)
	return strings.ToValidUTF8(string(b[:cut]), "�")
}

func (f *Framer) splitToken(s string) (before, tok, after string, ok bool) {
	first := -1
	for _, t := range f.tokens {
		i := strings.Index(s, t)
		if i >= 0 && (first < 0 || i < first) {
			first, tok = i, t
		}
	}
	if first < 0 {
		return s, "", "", false
	}
	return s[:first], tok, strings.TrimLeft(s[first+len(tok):], " \t"), true
}

func applyBackspaces(s string) string {
	if !strings.ContainsRune(s, '\b') {
		return s
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\b' {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
