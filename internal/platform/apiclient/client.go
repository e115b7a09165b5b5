package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"labourpanel/internal/requestctx"
)

const maxResponseBytes = 16 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the backend REST API. Every call carries the bearer
// token from the injected CredentialSource.
type Client struct {
	base      *url.URL
	creds     CredentialSource
	http      *http.Client
	validator *envelopeValidator
	logger    *slog.Logger
	now       func() time.Time
	closed    int32
}

func NewClient(cfg Config, creds CredentialSource, httpClient *http.Client) (*Client, error) {
	base, err := url.ParseRequestURI(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if creds == nil {
		return nil, ErrCredentialMissing
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	validator, err := newEnvelopeValidator()
	if err != nil {
		return nil, err
	}
	return &Client{
		base:      base,
		creds:     creds,
		http:      httpClient,
		validator: validator,
		logger:    slog.Default().With("component", "apiclient"),
		now:       time.Now,
	}, nil
}

// WithLogger returns c using logger. Passing nil is a no-op.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger.With("component", "apiclient")
	}
	return c
}

// Close releases idle connections. It is idempotent.
func (c *Client) Close() error {
	if c == nil || !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

// do performs one request and decodes the envelope's data into out (when
// out is non-nil). Any failure comes back as *TransportError.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	token, err := c.creds.Token(ctx)
	if err == nil {
		err = CheckToken(token, c.now())
	}
	if err != nil {
		return &TransportError{Op: op, Message: credentialMessage(err), Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Message: "could not encode request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &TransportError{Op: op, Message: "could not build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if reqID := requestctx.GetRequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed", "op", op, "err", err)
		return &TransportError{Op: op, Message: "Network error, please try again", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Message: "could not read response", Err: err}
	}
	c.logger.DebugContext(ctx, "backend request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	return c.decode(ctx, op, resp.StatusCode, raw, out)
}

func (c *Client) decode(ctx context.Context, op string, status int, raw []byte, out any) error {
	ok := status >= 200 && status < 300

	if err := c.validator.check(ctx, raw); err != nil {
		msg := "Unexpected response from server"
		if !ok {
			msg = statusMessage(status)
		}
		return &TransportError{Op: op, Status: status, Message: msg, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Op: op, Status: status, Message: "Unexpected response from server", Err: err}
	}
	if !ok || !env.Success {
		msg := env.failureMessage()
		if msg == "" {
			msg = statusMessage(status)
			if ok {
				msg = "Request was not successful"
			}
		}
		return &TransportError{Op: op, Status: status, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: op, Status: status, Message: "Unexpected response from server", Err: err}
	}
	return nil
}

func credentialMessage(err error) string {
	if errors.Is(err, ErrCredentialExpired) {
		return "Session expired, please sign in again"
	}
	return "Not signed in"
}
