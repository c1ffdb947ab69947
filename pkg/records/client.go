// Package records provides the HTTP client the automation core uses to
// read and update rows through the product's internal record API.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridbase/gridbase/pkg/errs"
)

const (
	defaultTimeout = 10 * time.Second
	authHeader     = "Authorization"
)

// Client implements protocol.RecordStore over the internal record API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// NewClient builds a record API client. token is the service token the
// engine authenticates with; it may be empty for unauthenticated
// development setups.
func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("module", "records"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Record returns the field values of one row, keyed by field id.
func (c *Client) Record(ctx context.Context, tableID, recordID string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, c.recordPath(tableID, recordID), nil)
	if err != nil {
		return nil, err
	}

	var record struct {
		Fields map[string]any `json:"fields"`
	}

	if err := json.Unmarshal(body, &record); err != nil {
		return nil, errs.Transient(fmt.Errorf("decoding record %s/%s: %w", tableID, recordID, err))
	}

	return record.Fields, nil
}

// UpdateRecord writes field values on one row.
func (c *Client) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return errs.Config(fmt.Errorf("encoding record update: %w", err))
	}

	_, err = c.do(ctx, http.MethodPatch, c.recordPath(tableID, recordID), payload)

	return err
}

func (c *Client) recordPath(tableID, recordID string) string {
	return fmt.Sprintf("%s/api/tables/%s/records/%s",
		c.baseURL, url.PathEscape(tableID), url.PathEscape(recordID))
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errs.Config(fmt.Errorf("building record request: %w", err))
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set(authHeader, "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Transient(fmt.Errorf("record API request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transient(fmt.Errorf("reading record API response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.Misconfigured(fmt.Errorf("record API rejected credentials: status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.Configf("record not found: %s %s", method, target)
	default:
		return nil, errs.Transient(fmt.Errorf("record API returned status %d", resp.StatusCode))
	}
}
