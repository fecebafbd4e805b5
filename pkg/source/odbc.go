// Package source queries the data-quality engine through its HTTP-wrapped
// ODBC endpoint.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// LastRunPlaceholder in a query is replaced by the last successful run
// timestamp, formatted as 2006-01-02 15:04:05.
const LastRunPlaceholder = ":lastRun"

// TimestampLayout is the layout used for timestamps embedded in SQL.
const TimestampLayout = "2006-01-02 15:04:05"

// Querier runs SQL against the engine.
type Querier interface {
	Query(ctx context.Context, sql string) ([]record.Record, error)
}

// Client posts queries to {baseURL}/query.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logr.Logger
}

// NewClient creates a Client. A base URL without a scheme is given http://.
// A nil httpClient means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, logger logr.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type queryRequest struct {
	SQL string `json:"sql"`
}

// Query runs sql and returns the rows as records. Keys are returned as the
// engine reports them; callers normalize.
func (c *Client) Query(ctx context.Context, sql string) ([]record.Record, error) {
	url := c.baseURL + "/query"
	remoteErr := func(status int, body string, err error) error {
		return &catalog.RemoteError{
			Op: catalog.OpQuery, Method: http.MethodPost, URL: url,
			Status: status, Body: body, Args: queryRequest{SQL: sql}, Err: err,
		}
	}

	data, err := json.Marshal(queryRequest{SQL: sql})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.V(1).Info("querying source", "sql", sql)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, remoteErr(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, remoteErr(resp.StatusCode, string(body), nil)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, remoteErr(resp.StatusCode, "", fmt.Errorf("decode rows: %w", err))
	}

	recs := make([]record.Record, len(rows))
	for i, row := range rows {
		recs[i] = record.FromJSON(row)
	}
	c.logger.Info("source query returned rows", "rows", len(recs))
	return recs, nil
}

// WithLastRun substitutes every LastRunPlaceholder in sql.
func WithLastRun(sql string, lastRun time.Time) string {
	return strings.ReplaceAll(sql, LastRunPlaceholder, lastRun.UTC().Format(TimestampLayout))
}

// ValidatedRulesQuery selects the current version of every rule validated
// after the LastRunPlaceholder.
const ValidatedRulesQuery = `SELECT * FROM "RULES" WHERE "VERSIONS OFFSET" = 0 AND "LAST VALIDATED" > '` + LastRunPlaceholder + `'`

// ValidatedRulesSince returns ValidatedRulesQuery bound to lastRun.
func ValidatedRulesSince(lastRun time.Time) string {
	return WithLastRun(ValidatedRulesQuery, lastRun)
}
