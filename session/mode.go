package session

// InputMode is the disclosure mode of the local input field.
type InputMode int

const (
	Plain InputMode = iota
	Secret
)

func (m InputMode) String() string {
	if m == Secret {
		return "secret"
	}
	return "plain"
}

const (
	PlainPlaceholder  = "Enter command..."
	SecretPlaceholder = "Password"
)

// Affordance describes how the input surface should present itself.
type Affordance struct {
	Masked      bool
	Placeholder string
	// Autofill reports whether the surface may offer credential autofill or
	// caching. Always false in secret mode.
	Autofill bool
}

// ModeController owns the input mode. Secret mode is consumed by exactly
// one submission and has no idle timeout.
type ModeController struct {
	mode InputMode
}

func NewModeController() *ModeController {
	return &ModeController{mode: Plain}
}

func (c *ModeController) Mode() InputMode {
	return c.mode
}

// Apply transitions on a classifier verdict and reports whether the mode
// changed. NoOpinion never changes the mode.
func (c *ModeController) Apply(v Verdict) bool {
	switch v {
	case ExpectSecret:
		return c.set(Secret)
	case ExpectPlain:
		return c.set(Plain)
	}
	return false
}

// Submitted is called right after a submission was handed to the channel.
func (c *ModeController) Submitted() bool {
	if c.mode == Secret {
		return c.set(Plain)
	}
	return false
}

func (c *ModeController) Affordance() Affordance {
	if c.mode == Secret {
		return Affordance{Masked: true, Placeholder: SecretPlaceholder}
	}
	return Affordance{Placeholder: PlainPlaceholder}
}

func (c *ModeController) set(m InputMode) bool {
	if c.mode == m {
		return false
	}
	c.mode = m
	return true
}
