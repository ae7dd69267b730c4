package datadog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ddpager/pager-bridge/internal/credential"
)

const (
	// DefaultTimeout bounds every upstream request.
	DefaultTimeout = 10 * time.Second

	// maxBodyLog is how much of a response body is kept in errors and logs.
	maxBodyLog = 200

	pathAcknowledge = "/api/v2/on-call/pages/{page_id}/acknowledge"
	pathResolve     = "/api/v2/on-call/pages/{page_id}/resolve"
	pathValidate    = "/api/v1/validate"
	pathWebhooks    = "/api/v1/integration/webhooks/configuration/webhooks"
)

// Action is an operation a device can request on a page.
type Action string

const (
	ActionAcknowledge Action = "acknowledge"
	ActionResolve     Action = "resolve"
)

// Config contains client settings.
type Config struct {
	// BaseURL replaces https://api.{region} for every call when set.
	BaseURL string
	Timeout time.Duration
}

// Client speaks to the incident API on behalf of any device.
// It is safe for concurrent use.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient creates a client. A zero Timeout uses DefaultTimeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	http := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:    http,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Acknowledge acknowledges page alertID.
func (c *Client) Acknowledge(ctx context.Context, creds credential.Credentials, alertID string) error {
	return c.pageAction(ctx, creds, pathAcknowledge, alertID)
}

// Resolve resolves page alertID.
func (c *Client) Resolve(ctx context.Context, creds credential.Credentials, alertID string) error {
	return c.pageAction(ctx, creds, pathResolve, alertID)
}

// Do performs action on alertID.
func (c *Client) Do(ctx context.Context, action Action, creds credential.Credentials, alertID string) error {
	switch action {
	case ActionAcknowledge:
		return c.Acknowledge(ctx, creds, alertID)
	case ActionResolve:
		return c.Resolve(ctx, creds, alertID)
	default:
		return fmt.Errorf("datadog: unknown action %q", action)
	}
}

func (c *Client) pageAction(ctx context.Context, creds credential.Credentials, path, alertID string) error {
	resp, err := c.request(ctx, creds).
		SetPathParam("page_id", alertID).
		SetBody(map[string]any{}).
		Post(c.url(creds.Region, path))
	return checkResponse(resp, err)
}

// ValidateCredentials checks the API key with an authenticated GET.
func (c *Client) ValidateCredentials(ctx context.Context, creds credential.Credentials) error {
	resp, err := c.request(ctx, creds).Get(c.url(creds.Region, pathValidate))
	return checkResponse(resp, err)
}

// Webhook is a webhook integration definition.
type Webhook struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	EncodeAs string `json:"encode_as"`
}

// CreateWebhook registers a webhook named name delivering to url.
func (c *Client) CreateWebhook(ctx context.Context, creds credential.Credentials, name, url string) error {
	resp, err := c.request(ctx, creds).
		SetBody(Webhook{Name: name, URL: url, EncodeAs: "json"}).
		Post(c.url(creds.Region, pathWebhooks))
	return checkResponse(resp, err)
}

func (c *Client) request(ctx context.Context, creds credential.Credentials) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("DD-API-KEY", creds.APIKey).
		SetHeader("DD-APPLICATION-KEY", creds.AppKey)
}

// url builds the absolute URL for path in region.
func (c *Client) url(region, path string) string {
	if c.baseURL != "" {
		return c.baseURL + path
	}
	if region == "" {
		region = credential.DefaultRegion
	}
	return "https://api." + region + path
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return &StatusError{StatusCode: code, Body: truncate(resp.String(), maxBodyLog)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
