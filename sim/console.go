package sim

import (
	"fmt"
	"strings"
	"time"
)

const (
	Prompt  = "picobridge> "
	Version = "PicoBridge simulator 1.0"
)

type consoleState int

const (
	awaitUser consoleState = iota
	awaitPassword
	shell
)

// Console plays the device on the far side of the UART: a login sequence
// followed by a tiny shell. Input is line-buffered; nothing happens until a
// CR or LF arrives.
type Console struct {
	username string
	password string
	now      func() time.Time
	booted   time.Time

	state   consoleState
	pending string
	user    string
}

// NewConsole accepts any credentials when username is empty.
func NewConsole(username, password string, now func() time.Time) *Console {
	if now == nil {
		now = time.Now
	}
	return &Console{username: username, password: password, now: now, booted: now()}
}

// Wake returns what a carriage return on an idle line prints.
func (c *Console) Wake() string {
	return "\r\n" + c.prompt()
}

// Input feeds raw bytes and returns the console's reply, possibly empty.
func (c *Console) Input(data string) string {
	var out strings.Builder
	for _, r := range data {
		switch r {
		case '\r', '\n':
			line := c.pending
			c.pending = ""
			out.WriteString(c.line(line))
		default:
			c.pending += string(r)
		}
	}
	return out.String()
}

func (c *Console) prompt() string {
	switch c.state {
	case awaitUser:
		return "Username: "
	case awaitPassword:
		return "Password: "
	}
	return Prompt
}

func (c *Console) line(line string) string {
	switch c.state {
	case awaitUser:
		if line == "" {
			return "\r\n" + c.prompt()
		}
		c.user = line
		c.state = awaitPassword
		return line + "\r\n" + c.prompt()

	case awaitPassword:
		// Passwords are never echoed.
		if c.username != "" && (c.user != c.username || line != c.password) {
			c.state = awaitUser
			return "\r\nLogin incorrect\r\n\r\n" + c.prompt()
		}
		c.state = shell
		return fmt.Sprintf("\r\nWelcome %s\r\n%s", c.user, c.prompt())
	}

	cmd := strings.TrimSpace(line)
	echo := line + "\r\n"
	switch cmd {
	case "":
		return echo + c.prompt()
	case "help":
		return echo + "commands: help, version, uptime, whoami, logout\r\n" + c.prompt()
	case "version":
		return echo + Version + "\r\n" + c.prompt()
	case "uptime":
		up := c.now().Sub(c.booted).Truncate(time.Second)
		return echo + "up " + up.String() + "\r\n" + c.prompt()
	case "whoami":
		return echo + c.user + "\r\n" + c.prompt()
	case "logout", "exit":
		c.state = awaitUser
		c.user = ""
		return echo + "\r\n" + c.prompt()
	}
	return echo + fmt.Sprintf("%s: command not found\r\n", cmd) + c.prompt()
}
