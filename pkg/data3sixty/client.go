// Package data3sixty pushes data quality rule results to the Data3Sixty
// governance catalog, matched to its technology assets by location.
package data3sixty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/catalog"
)

// TechnologyAsset is one item of the assets API. NormalizedAssetProperties
// is an object literal with unquoted keys.
type TechnologyAsset struct {
	AssetID                   int    `json:"AssetId"`
	AssetUID                  string `json:"AssetUid"`
	Name                      string `json:"Name"`
	AssetPath                 string `json:"AssetPath"`
	NormalizedAsset           string `json:"NormalizedAsset"`
	NormalizedAssetProperties string `json:"NormalizedAssetProperties"`
}

// AssetPage is the response of the assets API.
type AssetPage struct {
	PageSize int               `json:"pageSize"`
	PageNum  int               `json:"pageNum"`
	Total    int               `json:"total"`
	Items    []TechnologyAsset `json:"items"`
}

// ResultValue is the measured outcome of one rule run.
type ResultValue struct {
	PassCount     int64  `json:"PassCount"`
	FailCount     int64  `json:"FailCount"`
	EffectiveDate string `json:"EffectiveDate"`
	RunDate       string `json:"RunDate"`
}

// AssetMapping ties a result to a technology asset.
type AssetMapping struct {
	AssetPath string `json:"AssetPath"`
	AssetUID  string `json:"AssetUID"`
}

// Result is one entry of a data quality post.
type Result struct {
	Result         ResultValue    `json:"Result"`
	AssetsMappings []AssetMapping `json:"AssetsMappings"`
}

// ResultPayload is the body of a data quality post.
type ResultPayload struct {
	Results []Result `json:"Results"`
}

// Client calls the Data3Sixty v2 API.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
	logger  logr.Logger
}

// NewClient creates a Client authenticating with key and secret. A nil
// httpClient means http.DefaultClient.
func NewClient(baseURL, key, secret string, httpClient *http.Client, logger logr.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    key + ";" + secret,
		http:    httpClient,
		logger:  logger,
	}
}

// Assets returns the technology assets carrying the fusion attribute.
func (c *Client) Assets(ctx context.Context, fusionAttributeUID string) (*AssetPage, error) {
	var page AssetPage
	path := "/api/v2/assets/" + url.PathEscape(fusionAttributeUID)
	if err := c.do(ctx, catalog.OpLookup, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PostResults records rule results against ruleUID.
func (c *Client) PostResults(ctx context.Context, ruleUID string, payload ResultPayload) error {
	path := "/api/v2/dataquality/" + url.PathEscape(ruleUID)
	return c.do(ctx, catalog.OpCreate, http.MethodPost, path, payload, nil)
}

func (c *Client) do(ctx context.Context, op catalog.Op, method, path string, body, out any) error {
	u := c.baseURL + path
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.V(1).Info("data3sixty request", "method", method, "url", u)
	resp, err := c.http.Do(req)
	if err != nil {
		return &catalog.RemoteError{Op: op, Method: method, URL: u, Args: body, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &catalog.RemoteError{Op: op, Method: method, URL: u, Status: resp.StatusCode, Body: string(data), Args: body}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &catalog.RemoteError{
			Op: op, Method: method, URL: u, Status: resp.StatusCode, Args: body,
			Err: fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
