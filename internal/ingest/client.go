// Package ingest is the HTTP client for shipping capture traffic to a remote
// errtrack collector. It speaks the tagged-action envelope accepted by
// POST /api/errors.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/claimstack/errtrack/internal/models"
)

const defaultTimeout = 5 * time.Second

// Client posts capture actions to a collector instance. The zero value is not
// usable; construct with NewClient.
type Client struct {
	baseURL    string
	errorsPath string
	httpClient *http.Client
}

// NewClient constructs a client targeting the collector at baseURL. A zero
// timeout falls back to five seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		errorsPath: "/api/errors",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type captureResponse struct {
	Success bool   `json:"success"`
	ErrorID string `json:"errorId"`
}

// Forward ships a fully assembled record to the collector. It satisfies the
// tracker's Forwarder contract.
func (c *Client) Forward(ctx context.Context, record *models.ErrorDetails) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("collector base URL not configured")
	}

	payload := map[string]any{
		"action": "capture_error",
		"error":  record,
	}

	var response captureResponse
	if err := c.postJSON(ctx, c.errorsURL(), payload, &response); err != nil {
		return fmt.Errorf("collector capture request failed: %w", err)
	}
	if !response.Success {
		return fmt.Errorf("collector rejected record %s", record.ID)
	}
	return nil
}

// AddBreadcrumb records a contextual event on the collector side.
func (c *Client) AddBreadcrumb(ctx context.Context, crumb models.Breadcrumb) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("collector base URL not configured")
	}

	payload := map[string]any{
		"action":     "add_breadcrumb",
		"breadcrumb": crumb,
	}
	if err := c.postJSON(ctx, c.errorsURL(), payload, nil); err != nil {
		return fmt.Errorf("collector breadcrumb request failed: %w", err)
	}
	return nil
}

// Resolve marks an error resolved on the collector.
func (c *Client) Resolve(ctx context.Context, errorID, resolvedBy string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("collector base URL not configured")
	}

	payload := map[string]any{
		"action":     "resolve_error",
		"errorId":    errorID,
		"resolvedBy": resolvedBy,
	}

	var response captureResponse
	if err := c.postJSON(ctx, c.errorsURL(), payload, &response); err != nil {
		return fmt.Errorf("collector resolve request failed: %w", err)
	}
	if !response.Success {
		return fmt.Errorf("collector could not resolve %s", errorID)
	}
	return nil
}

func (c *Client) errorsURL() string { return c.resolvePath(c.errorsPath) }

func (c *Client) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
