package session

import (
	"regexp"
	"strings"
)

// Verdict is the classifier's opinion about what the next submitted input is.
type Verdict int

const (
	NoOpinion Verdict = iota
	ExpectSecret
	ExpectPlain
)

func (v Verdict) String() string {
	switch v {
	case ExpectSecret:
		return "expect_secret"
	case ExpectPlain:
		return "expect_plain"
	default:
		return "no_opinion"
	}
}

var (
	passwordCue = regexp.MustCompile(`(?i)\bpassword\s*:?\s*$`)
	usernameCue = regexp.MustCompile(`(?i)\b(username|user\s*name|login)\s*:?\s*$`)
)

// Classify inspects one line of remote output. First match wins:
// a password cue, then a username/login cue, then a line ending in a
// command prompt character (> or #).
//
// A device line ending in '#' may be a comment rather than a prompt; it is
// still treated as a prompt return.
func Classify(text string) Verdict {
	if passwordCue.MatchString(text) || strings.Contains(strings.ToLower(text), "password:") {
		return ExpectSecret
	}
	if usernameCue.MatchString(text) {
		return ExpectPlain
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, ">") || strings.HasSuffix(trimmed, "#") {
		return ExpectPlain
	}
	return NoOpinion
}
