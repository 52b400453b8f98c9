package snow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/stone-age-io/snow-inventory/internal/config"
	"github.com/stone-age-io/snow-inventory/internal/inventory"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response body is kept
const maxErrorBody = 4096

// UpstreamError is returned when the table API answers with anything but 200
type UpstreamError struct {
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("servicenow returned %s for %s: %s", e.Status, e.URL, e.Body)
}

// tableResponse is the table API list envelope
type tableResponse struct {
	Result []map[string]any `json:"result"`
}

// Client fetches CMDB records from the ServiceNow table API
type Client struct {
	cfg        config.ServiceNowConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client. The configured timeout bounds each request.
func NewClient(cfg config.ServiceNowConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// QueryURL returns the fully-qualified URL that will be requested.
// An explicit query_url is used verbatim; otherwise the URL is built from
// base_url, table_path and the sysparm options.
func (c *Client) QueryURL() (string, error) {
	if c.cfg.QueryURL != "" {
		return c.cfg.QueryURL, nil
	}

	base := strings.TrimRight(strings.TrimSpace(c.cfg.BaseURL), "/")
	path := "/" + strings.TrimLeft(c.cfg.TablePath, "/")
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid query url: %w", err)
	}

	q := u.Query()
	if c.cfg.SysparmQuery != "" {
		q.Set("sysparm_query", c.cfg.SysparmQuery)
	}
	if c.cfg.SysparmFields != "" {
		q.Set("sysparm_fields", c.cfg.SysparmFields)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// FetchRecords performs the single GET against the table API and maps every
// result entry into a Record. Non-200 responses yield *UpstreamError. No
// retries are attempted.
func (c *Client) FetchRecords(ctx context.Context) ([]inventory.Record, error) {
	queryURL, err := c.QueryURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Querying ServiceNow", zap.String("url", queryURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			URL:        queryURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Header:     resp.Header.Clone(),
			Body:       string(body),
		}
	}

	var envelope tableResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if envelope.Result == nil {
		return nil, fmt.Errorf("response contained no result field")
	}

	records := make([]inventory.Record, 0, len(envelope.Result))
	for _, raw := range envelope.Result {
		records = append(records, c.toRecord(raw))
	}

	c.logger.Debug("Fetched records from ServiceNow", zap.Int("count", len(records)))
	return records, nil
}

// toRecord maps a raw result entry onto the required fields; missing fields
// are left empty and rejected later by the classifier.
func (c *Client) toRecord(raw map[string]any) inventory.Record {
	if raw == nil {
		raw = map[string]any{}
	}
	r := inventory.Record{Attributes: raw}
	r.GroupKey = strings.TrimSpace(r.Attr(c.cfg.GroupField))
	r.Name = strings.TrimSpace(r.Attr(c.cfg.NameField))
	return r
}
