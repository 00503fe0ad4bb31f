package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the connection settings for the muletrace API.
type Config struct {
	APIURL string // e.g. "http://localhost:8080"
}

// Client is a plain HTTP client for the muletrace API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client for the API at cfg.APIURL.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d %s): %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// Hotspots returns the heatmap points of the latest complaints.
func (c *Client) Hotspots(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/hotspots", nil, nil)
}

// History returns one account's withdrawal trail, oldest first.
func (c *Client) History(ctx context.Context, muleID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("mule_id", muleID)
	return c.doRequest(ctx, http.MethodGet, "/api/mule_history", q, nil)
}

// PredictRequest is the body of /api/predict_next. Nil hour/day let the
// server use its current time.
type PredictRequest struct {
	MuleID      string  `json:"mule_id"`
	CurrentLat  float64 `json:"current_lat"`
	CurrentLong float64 `json:"current_long"`
	Hour        *int    `json:"hour,omitempty"`
	Day         *int    `json:"day,omitempty"`
}

// PredictNext asks the model where the account withdraws next.
func (c *Client) PredictNext(ctx context.Context, body PredictRequest) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/predict_next", nil, body)
}

// TransactionRequest is the body of /api/process_transaction.
type TransactionRequest struct {
	MuleID string  `json:"mule_id"`
	Amount int64   `json:"amount"`
	Lat    float64 `json:"lat"`
	Long   float64 `json:"long"`
}

// ProcessTransaction runs a proposed withdrawal through the interception engine.
func (c *Client) ProcessTransaction(ctx context.Context, body TransactionRequest) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/process_transaction", nil, body)
}
