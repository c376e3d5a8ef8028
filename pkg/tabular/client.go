// Package tabular implements the remote tabular storage protocol: filtered
// queries with continuation-token pagination delivered page by page,
// point lookups, and resilient insert/merge writes. The remote dialect is the
// SAS-URL table REST interface the original content pipeline published to;
// Memory provides an in-process twin for tests and local playback.
package tabular

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/ports"
)

// maxTicks is the largest representable JS date in milliseconds; generated
// row keys count down from it so newest rows sort first.
const maxTicks = 8640000000000000

// RetryPolicy decides whether a failed write should be retried. attempts is
// the number of failures so far (>= 1).
type RetryPolicy func(attempts int, err error) bool

// Client talks to a single table through its SAS URL (a URL whose query
// string already carries the access signature).
type Client struct {
	sasURL string
	httpc  *http.Client
	logger *slog.Logger
	retry  RetryPolicy
}

var _ ports.TableStore = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryPolicy sets the write retry decision callback. The default never
// retries.
func WithRetryPolicy(retry RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = retry
	}
}

// NewClient creates a table client for the given SAS URL.
func NewClient(sasURL string, opts ...ClientOption) (*Client, error) {
	if sasURL == "" || !strings.Contains(sasURL, "?") {
		return nil, fmt.Errorf("tabular: a SAS URL with a signature query is required")
	}
	c := &Client{
		sasURL: sasURL,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		logger: logging.NewNop(),
		retry:  func(int, error) bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Query streams all rows matching filter, page by page, following
// continuation headers until the result set is exhausted, the context is
// canceled, or the page callback returns an error.
func (c *Client) Query(ctx context.Context, filter string, selectColumns []string, page ports.PageFunc) (ports.QueryResult, error) {
	base := strings.Replace(c.sasURL, "?", "()?", 1)
	if filter != "" {
		base += "&$filter=" + url.QueryEscape(filter)
	}
	if len(selectColumns) > 0 {
		base += "&$select=" + strings.Join(selectColumns, ",")
	}

	var res ports.QueryResult
	next := ""
	for {
		u := base
		if next != "" {
			u += "&" + next
		}

		body, hdr, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			res.Truncated = true
			return res, err
		}

		var envelope struct {
			Value []map[string]any `json:"value"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			res.Truncated = true
			return res, fmt.Errorf("decoding query page: %w", err)
		}

		rows := make([]ports.Record, 0, len(envelope.Value))
		for _, raw := range envelope.Value {
			rows = append(rows, flatten(raw))
		}
		res.Rows += len(rows)
		if err := page(rows); err != nil {
			res.Truncated = true
			return res, err
		}

		pk := hdr.Get("x-ms-continuation-NextPartitionKey")
		rk := hdr.Get("x-ms-continuation-NextRowKey")
		if pk == "" {
			return res, nil
		}
		next = "NextPartitionKey=" + url.QueryEscape(pk)
		if rk != "" {
			next += "&NextRowKey=" + url.QueryEscape(rk)
		}
	}
}

// Get point-looks-up one row. A 404 returns (nil, nil).
func (c *Client) Get(ctx context.Context, partitionKey, rowKey string) (ports.Record, error) {
	u := c.entityURL(partitionKey, rowKey)
	body, _, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		var se *statusError
		if asStatus(err, &se) && se.code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding entity: %w", err)
	}
	return flatten(raw), nil
}

// Insert appends a row, generating a reverse-chronological row key when the
// record has none, and retrying per the configured policy.
func (c *Client) Insert(ctx context.Context, rec ports.Record) error {
	rec = withKeys(rec)
	return c.write(ctx, http.MethodPost, c.sasURL, rec)
}

// Merge upserts a row, merging columns into any existing entity.
func (c *Client) Merge(ctx context.Context, rec ports.Record) error {
	rec = withKeys(rec)
	u := c.entityURL(rec["PartitionKey"], rec["RowKey"])
	return c.write(ctx, "MERGE", u, rec)
}

func (c *Client) write(ctx context.Context, method, u string, rec ports.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	attempts := 0
	for {
		_, _, err := c.do(ctx, method, u, payload)
		if err == nil {
			return nil
		}
		attempts++
		if !c.retry(attempts, err) {
			return fmt.Errorf("writing row after %d attempt(s): %w", attempts, err)
		}
		c.logger.Warn("retrying table write", "attempts", attempts, "err", err)
	}
}

func (c *Client) entityURL(partitionKey, rowKey string) string {
	entity := fmt.Sprintf("(PartitionKey='%s',RowKey='%s')?",
		url.QueryEscape(partitionKey), url.QueryEscape(rowKey))
	return strings.Replace(c.sasURL, "?", entity, 1)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, http.Header, error) {
	var rdr *bytes.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json;odata=nometadata")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ms-version", "2013-08-15")
	req.Header.Set("MaxDataServiceVersion", "3.0;NetFx")
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return-no-content")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, &statusError{code: resp.StatusCode, url: u}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), resp.Header, nil
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("table request failed with status %d", e.code)
}

func asStatus(err error, target **statusError) bool {
	se, ok := err.(*statusError)
	if ok {
		*target = se
	}
	return ok
}

// withKeys fills defaults the remote side requires: a partition and a
// reverse-chronological row key so appended rows read newest-first.
func withKeys(rec ports.Record) ports.Record {
	out := make(ports.Record, len(rec)+2)
	for k, v := range rec {
		out[k] = v
	}
	if out["PartitionKey"] == "" {
		out["PartitionKey"] = "."
	}
	if out["RowKey"] == "" {
		out["RowKey"] = GenerateRowKey(time.Now())
	}
	return out
}

// GenerateRowKey builds a row key that sorts newest-first, with a random
// suffix because two writes can land on the same millisecond.
func GenerateRowKey(now time.Time) string {
	return strconv.FormatInt(maxTicks-now.UnixMilli(), 10) + "-" + uuid.NewString()
}

// flatten stringifies a decoded JSON row into the flat Record the rest of
// the system consumes.
func flatten(raw map[string]any) ports.Record {
	rec := make(ports.Record, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			rec[k] = t
		case float64:
			rec[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			rec[k] = strconv.FormatBool(t)
		case nil:
			rec[k] = ""
		default:
			b, _ := json.Marshal(t)
			rec[k] = string(b)
		}
	}
	return rec
}
