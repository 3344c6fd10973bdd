package ccxt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/config"
)

// DefaultTimeout bounds every request to the sidecar when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// APIError is returned when the CCXT service answers with a 4xx/5xx status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CCXT service error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client represents the CCXT HTTP client
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	timeout    time.Duration
}

// NewClient creates a new CCXT client instance
func NewClient(cfg *config.CCXTConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL: strings.TrimSuffix(cfg.ServiceURL, "/"),
		timeout: timeout,
	}
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// HealthCheck checks if the CCXT service is healthy
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/health", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetExchanges retrieves all supported exchanges
func (c *Client) GetExchanges(ctx context.Context) (*ExchangesResponse, error) {
	var response ExchangesResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/api/exchanges", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetTicker retrieves ticker data for a specific exchange and exchange-native symbol
func (c *Client) GetTicker(ctx context.Context, exchange, symbol string) (*TickerResponse, error) {
	path := fmt.Sprintf("/api/ticker/%s/%s", url.PathEscape(exchange), url.PathEscape(symbol))
	var response TickerResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetMarkets retrieves all trading pairs for a specific exchange
func (c *Client) GetMarkets(ctx context.Context, exchange string) (*MarketsResponse, error) {
	path := fmt.Sprintf("/api/markets/%s", url.PathEscape(exchange))
	var response MarketsResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// makeRequest is a helper method to make HTTP requests to the CCXT service
func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Celebrum-Arbwatch/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// Close closes the HTTP client (if needed for cleanup)
func (c *Client) Close() error {
	c.HTTPClient.CloseIdleConnections()
	return nil
}
