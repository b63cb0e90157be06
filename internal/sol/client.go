// Package sol talks to the SOL home-automation API and normalizes its devices.
package sol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/solbridge/internal/metrics"
)

// DefaultTimeout bounds each SOL request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const (
	devicesPath    = "/api/homebridge/devices"
	switchPath     = "/api/switch/"
	brightnessPath = "/api/brightness/"
	colorPath      = "/api/color/"
)

// Client issues requests against a SOL endpoint. It holds no mutable state
// besides the rate limiter and is safe for concurrent use.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the SOL service at endpoint (e.g. "http://sol.local:8080").
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ListDevices fetches all devices. It never fails: transport errors, error
// strings and bodies without "devices" yield an empty slice.
func (c *Client) ListDevices(ctx context.Context) []*Device {
	devices := []*Device{}
	target := c.url(devicesPath, nil)

	payload, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		record("list_devices", err)
		log.Error().Err(err).Str("url", target).Msg("Failed to list SOL devices")
		return devices
	}

	obj, err := envelope(payload)
	if err != nil {
		record("list_devices", err)
		log.Error().Err(err).Str("url", target).Msg("Unexpected SOL device list")
		return devices
	}

	list, ok := obj["devices"].([]any)
	if !ok {
		err := fmt.Errorf("%w: response has no devices array", ErrMalformedPayload)
		record("list_devices", err)
		log.Error().Err(err).Str("url", target).Msg("Unexpected SOL device list")
		return devices
	}

	version := versionOf(obj)
	for i, raw := range list {
		d, err := NewDevice(raw, version)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping SOL device")
			continue
		}
		log.Debug().Str("id", d.ID).Str("name", d.Name).Str("type", string(d.Type)).Msg("Found device")
		devices = append(devices, d)
	}

	record("list_devices", nil)
	return devices
}

// SetSwitch toggles a device. Returns the updated device or nil on failure.
func (c *Client) SetSwitch(ctx context.Context, d *Device, enabled bool) *Device {
	if d == nil {
		return nil
	}
	q := url.Values{}
	q.Set("reference", d.Reference)
	q.Set("enable", strconv.FormatBool(enabled))
	return c.mutate(ctx, "set_switch", http.MethodGet, c.url(switchPath, q), nil)
}

// SetBrightness sets brightness (0-100). Returns the updated device or nil on failure.
func (c *Client) SetBrightness(ctx context.Context, d *Device, value int) *Device {
	if d == nil {
		return nil
	}
	body := map[string]any{"reference": d.Reference, "value": value}
	return c.mutate(ctx, "set_brightness", http.MethodPost, c.url(brightnessPath, nil), body)
}

// SetColor sets the RGB color as a hex string. Returns the updated device or nil on failure.
func (c *Client) SetColor(ctx context.Context, d *Device, hex string) *Device {
	if d == nil {
		return nil
	}
	body := map[string]any{"reference": d.Reference, "value": hex}
	return c.mutate(ctx, "set_color", http.MethodPost, c.url(colorPath, nil), body)
}

func (c *Client) mutate(ctx context.Context, op, method, target string, body any) *Device {
	payload, err := c.do(ctx, method, target, body)
	if err == nil {
		var obj map[string]any
		if obj, err = envelope(payload); err == nil {
			var d *Device
			if d, err = NewDevice(obj["smarthome"], versionOf(obj)); err == nil {
				record(op, nil)
				log.Debug().Str("op", op).Str("id", d.ID).Msg("SOL confirmed update")
				return d
			}
			err = fmt.Errorf("smarthome: %w", err)
		}
	}

	record(op, err)
	log.Error().Err(err).Str("op", op).Str("url", target).Msg("SOL update failed")
	return nil
}

func (c *Client) url(path string, q url.Values) string {
	u := c.endpoint + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do performs one request and decodes the JSON body into a generic value.
func (c *Client) do(ctx context.Context, method, target string, body any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrTransport, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	// Numbers stay json.Number so large numeric ids keep every digit.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrTransport, err)
	}
	return payload, nil
}

// envelope unwraps a response object. SOL reports some errors as a bare JSON string.
func envelope(payload any) (map[string]any, error) {
	switch t := payload.(type) {
	case map[string]any:
		return t, nil
	case string:
		return nil, fmt.Errorf("%w: upstream message %q", ErrMalformedPayload, t)
	default:
		return nil, fmt.Errorf("%w: response is %T, want object", ErrMalformedPayload, payload)
	}
}

func versionOf(obj map[string]any) string {
	status, _ := obj["status"].(map[string]any)
	return stringOr(status, "version", "")
}

func record(op string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedPayload):
		outcome = metrics.OutcomeMalformed
	default:
		outcome = metrics.OutcomeTransport
	}
	metrics.SolRequests.WithLabelValues(op, outcome).Inc()
}
