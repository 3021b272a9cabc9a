package devapi

import (
	"errors"
	"fmt"
	"strconv"
)

const DefaultAdHocSSID = "PicoBridge"

type UART struct {
	Baudrate int  `json:"baudrate" yaml:"baudrate"`
	Bits     int  `json:"bits" yaml:"bits"`
	Parity   *int `json:"parity" yaml:"parity"` // nil = none, 0 = even, 1 = odd
	Stop     int  `json:"stop" yaml:"stop"`
}

type Network struct {
	SSID string `json:"ssid" yaml:"ssid"`
	PSK  string `json:"psk" yaml:"psk"`
}

// WLAN holds both network configurations; only the one selected by IsAdHoc
// is active on the device.
type WLAN struct {
	IsAdHoc        bool    `json:"is_ad_hoc" yaml:"is_ad_hoc"`
	AdHoc          Network `json:"ad_hoc" yaml:"ad_hoc"`
	Infrastructure Network `json:"infrastructure" yaml:"infrastructure"`
}

type Screensaver struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	IdleTimerS int  `json:"idle_timer_s" yaml:"idle_timer_s"`
}

// Settings is the full device configuration. Saving replaces all of it.
type Settings struct {
	PluggedDevice string      `json:"plugged_device" yaml:"plugged_device"`
	Location      string      `json:"location" yaml:"location"`
	UART          UART        `json:"uart" yaml:"uart"`
	WLAN          WLAN        `json:"wlan" yaml:"wlan"`
	Screensaver   Screensaver `json:"screensaver" yaml:"screensaver"`
}

// DefaultSettings mirrors a freshly flashed bridge.
func DefaultSettings() Settings {
	return Settings{
		UART: UART{Baudrate: 9600, Bits: 8, Stop: 1},
		WLAN: WLAN{
			IsAdHoc: true,
			AdHoc:   Network{SSID: DefaultAdHocSSID, PSK: "pico1234"},
		},
		Screensaver: Screensaver{Enabled: true, IdleTimerS: 30},
	}
}

// ApplyDefaults fills fields the device expects to be non-empty.
func (s *Settings) ApplyDefaults() {
	if s.WLAN.AdHoc.SSID == "" {
		s.WLAN.AdHoc.SSID = DefaultAdHocSSID
	}
}

// ActiveNetwork returns the network the device will join or host.
func (s Settings) ActiveNetwork() Network {
	if s.WLAN.IsAdHoc {
		return s.WLAN.AdHoc
	}
	return s.WLAN.Infrastructure
}

func (s Settings) Validate() error {
	var errs []error
	if s.UART.Baudrate <= 0 {
		errs = append(errs, fmt.Errorf("baudrate must be positive, got %d", s.UART.Baudrate))
	}
	if s.UART.Bits < 7 || s.UART.Bits > 9 {
		errs = append(errs, fmt.Errorf("bits must be 7, 8 or 9, got %d", s.UART.Bits))
	}
	if s.UART.Parity != nil && *s.UART.Parity != 0 && *s.UART.Parity != 1 {
		errs = append(errs, fmt.Errorf("parity must be none, 0 or 1, got %d", *s.UART.Parity))
	}
	if s.UART.Stop != 1 && s.UART.Stop != 2 {
		errs = append(errs, fmt.Errorf("stop bits must be 1 or 2, got %d", s.UART.Stop))
	}
	if s.Screensaver.IdleTimerS < 0 {
		errs = append(errs, fmt.Errorf("screensaver idle timer must not be negative"))
	}
	if !s.WLAN.IsAdHoc && s.WLAN.Infrastructure.SSID == "" {
		errs = append(errs, errors.New("infrastructure mode needs an SSID"))
	}
	return errors.Join(errs...)
}

// ParityString renders a parity value the way the settings form shows it.
func ParityString(p *int) string {
	if p == nil {
		return "None"
	}
	switch *p {
	case 0:
		return "Even"
	case 1:
		return "Odd"
	}
	return strconv.Itoa(*p)
}

// ParseParity accepts "none", "even", "odd", "0" or "1".
func ParseParity(s string) (*int, error) {
	var v int
	switch s {
	case "", "none", "None", "NONE":
		return nil, nil
	case "even", "Even", "EVEN", "0":
		v = 0
	case "odd", "Odd", "ODD", "1":
		v = 1
	default:
		return nil, fmt.Errorf("unknown parity %q", s)
	}
	return &v, nil
}

// Summary is the one-line UART description shown in headers.
func (u UART) Summary() string {
	return fmt.Sprintf("%d %d%s%d", u.Baudrate, u.Bits, parityLetter(u.Parity), u.Stop)
}

func parityLetter(p *int) string {
	if p == nil {
		return "N"
	}
	if *p == 0 {
		return "E"
	}
	return "O"
}
