// Package twilio implements a minimal client for the Twilio Messages API.
// The same endpoint carries both SMS and WhatsApp traffic; WhatsApp is
// selected by prefixing addresses with "whatsapp:".
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/config"
)

const (
	defaultBaseURL      = "https://api.twilio.com/2010-04-01"
	defaultMaxBodyBytes = 16 * 1024
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to Twilio.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL sets the base Twilio API URL. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Response is the normalized outcome of a message submission.
type Response struct {
	SID       string
	Status    string
	Code      int
	Body      string
	Timestamp time.Time
}

// Client submits messages to the Twilio Messages endpoint.
type Client struct {
	logger       zerolog.Logger
	accountSID   string
	authToken    string
	baseURL      string
	httpClient   HTTPClient
	now          func() time.Time
	maxBodyBytes int64
}

// New constructs a Twilio client from the supplied credentials.
func New(cfg config.TwilioConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("twilio: account SID is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio: auth token is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &Client{
		logger:       logger,
		accountSID:   strings.TrimSpace(cfg.AccountSID),
		authToken:    strings.TrimSpace(cfg.AuthToken),
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SendMessage posts one message and classifies the response. A non-2xx status
// returns both the parsed response and an error describing the rejection.
func (c *Client) SendMessage(ctx context.Context, from, to, body string) (*Response, error) {
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("twilio: from address is required")
	}
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("twilio: to address is required")
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))

	params := url.Values{}
	params.Set("From", from)
	params.Set("To", to)
	params.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("twilio: new request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio: http do: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := c.readBody(httpResp.Body)
	if err != nil {
		return nil, err
	}

	parsed := parseBody(raw)
	resp := &Response{
		SID:       parsed.SID,
		Status:    parsed.Status,
		Code:      httpResp.StatusCode,
		Body:      raw,
		Timestamp: c.now(),
	}
	if resp.Status == "" {
		resp.Status = http.StatusText(httpResp.StatusCode)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		c.logger.Debug().
			Str("sid", resp.SID).
			Str("status", resp.Status).
			Str("to", to).
			Msg("twilio message accepted")
		return resp, nil
	}

	message := parsed.Message
	if message == "" {
		message = strings.TrimSpace(raw)
	}
	if message == "" {
		message = http.StatusText(httpResp.StatusCode)
	}

	if parsed.ErrorCode > 0 {
		return resp, fmt.Errorf("twilio: error %d: %s", parsed.ErrorCode, message)
	}
	return resp, fmt.Errorf("twilio: http %d: %s", httpResp.StatusCode, message)
}

func (c *Client) readBody(rc io.ReadCloser) (string, error) {
	if rc == nil {
		return "", nil
	}
	limit := c.maxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return "", fmt.Errorf("twilio: read body: %w", err)
	}
	return string(data), nil
}

type apiBody struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode int    `json:"code"`
	Message   string `json:"message"`
}

func parseBody(body string) apiBody {
	if strings.TrimSpace(body) == "" {
		return apiBody{}
	}
	var parsed apiBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return apiBody{}
	}
	return parsed
}

// WhatsAppAddress prefixes a number with the whatsapp: scheme, preserving an
// existing prefix.
func WhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "whatsapp:") {
		return "whatsapp:" + strings.TrimSpace(trimmed[len("whatsapp:"):])
	}
	return "whatsapp:" + trimmed
}
