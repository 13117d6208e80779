package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"healthmate/internal/logger"
	"healthmate/internal/metrics"
)

// SendPath is the relay endpoint that accepts email requests
const SendPath = "/send-email"

// maxErrorBody caps how much of a failed response is kept for reporting
const maxErrorBody = 512

// Relay errors
var (
	ErrDeliveryFailed = errors.New("email relay rejected request")
	ErrTransport      = errors.New("email relay transport failure")
	ErrSerialization  = errors.New("failed to serialize email request")
)

// Email is the JSON body accepted by the relay
type Email struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// StatusError is returned when the relay answers with anything but 200
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d", ErrDeliveryFailed, e.Code)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrDeliveryFailed, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrDeliveryFailed }

// Client posts email requests to the relay
type Client struct {
	baseURL    string
	httpClient *http.Client
	marshal    func(any) ([]byte, error)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMarshaler replaces the JSON encoder, mainly for tests
func WithMarshaler(fn func(any) ([]byte, error)) Option {
	return func(c *Client) { c.marshal = fn }
}

// NewClient creates a relay client. A zero timeout keeps the transport default.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		marshal:    json.Marshal,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send makes exactly one POST attempt; there are no retries here.
func (c *Client) Send(ctx context.Context, email Email) error {
	log := logger.WithComponent("email_relay")

	payload, err := c.marshal(email)
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("serialization_error").Inc()
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SendPath, bytes.NewReader(payload))
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	metrics.RelayRequestDuration.Observe(duration.Seconds())

	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("transport_error").Inc()
		log.Warn().Err(err).Dur("duration", duration).Msg("email relay unreachable")
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.RelayRequestsTotal.WithLabelValues("status_error").Inc()
		log.Warn().
			Int("status", resp.StatusCode).
			Dur("duration", duration).
			Msg("email relay returned non-OK status")
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	metrics.RelayRequestsTotal.WithLabelValues("success").Inc()
	log.Debug().
		Int("recipients", len(email.To)).
		Dur("duration", duration).
		Msg("email relayed")
	return nil
}
