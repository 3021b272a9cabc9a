package devapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pbterm/log"
)

const (
	PathSettings      = "/api/v1/pb/settings"
	PathIdentify      = "/api/v1/pb/identify"
	PathIdentifyStart = "/api/v1/pb/identify/start"
	PathIdentifyStop  = "/api/v1/pb/identify/stop"
	PathUARTToCRLF    = "/api/v1/pb/uart_to_crlf"
	PathCRLFToUART    = "/api/v1/pb/crlf_to_uart"

	DefaultTimeout = 5 * time.Second
)

// StatusError is returned when the device answers with a non-success status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
}

// IdentifyState is the body of the identify resource.
type IdentifyState struct {
	Identify bool `json:"identify"`
}

// Client talks to the bridge's REST resources.
type Client struct {
	base *url.URL
	http *http.Client
}

// BaseURL turns a device host ("192.168.4.1:8080", "https://bridge.lan")
// into the HTTP base URL of its REST resources.
func BaseURL(host string) (*url.URL, error) {
	h := strings.TrimSpace(host)
	if h == "" {
		return nil, errors.New("empty device host")
	}
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	u, err := url.Parse(h)
	if err != nil {
		return nil, fmt.Errorf("parse host %q: %w", host, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "http"
	case "https", "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse host %q: missing host", host)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

func New(host string, timeout time.Duration) (*Client, error) {
	base, err := BaseURL(host)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}}, nil
}

// Settings fetches the current device configuration.
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.do(ctx, http.MethodGet, PathSettings, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings replaces the whole device configuration. The device may
// restart its network when WLAN settings change.
func (c *Client) SaveSettings(ctx context.Context, s Settings) error {
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, PathSettings, body, nil)
}

func (c *Client) Identify(ctx context.Context) (bool, error) {
	var st IdentifyState
	if err := c.do(ctx, http.MethodGet, PathIdentify, nil, &st); err != nil {
		return false, err
	}
	return st.Identify, nil
}

// SetIdentify starts or stops identify mode. Both calls are idempotent.
func (c *Client) SetIdentify(ctx context.Context, on bool) error {
	path := PathIdentifyStop
	if on {
		path = PathIdentifyStart
	}
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// ToggleIdentify reads the current identify state and flips it.
func (c *Client) ToggleIdentify(ctx context.Context) (bool, error) {
	on, err := c.Identify(ctx)
	if err != nil {
		return false, err
	}
	if err := c.SetIdentify(ctx, !on); err != nil {
		return on, err
	}
	return !on, nil
}

// SetUARTToCRLF controls CR/LF translation of device output.
func (c *Client) SetUARTToCRLF(ctx context.Context, on bool) error {
	return c.do(ctx, http.MethodGet, PathUARTToCRLF+"/"+enableSuffix(on), nil, nil)
}

// SetCRLFToUART controls whether a CR is appended to submitted input.
func (c *Client) SetCRLFToUART(ctx context.Context, on bool) error {
	return c.do(ctx, http.MethodGet, PathCRLFToUART+"/"+enableSuffix(on), nil, nil)
}

func enableSuffix(on bool) string {
	if on {
		return "enable"
	}
	return "disable"
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	u := c.base.ResolveReference(&url.URL{Path: path})

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Collaborator(method, path, 0, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Status: resp.Status}
		log.Collaborator(method, path, resp.StatusCode, serr)
		return serr
	}
	log.Collaborator(method, path, resp.StatusCode, nil)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
