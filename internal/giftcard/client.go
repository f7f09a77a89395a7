// Package giftcard is the narrow contract with the external gift-card
// vendor: catalog listing and code ordering.
package giftcard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Item is one orderable catalog entry.
type Item struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	FaceValue int    `json:"face_value"`
}

// Order is one issued gift-card code.
type Order struct {
	Code string `json:"code"`
}

// Client talks to the vendor's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a vendor client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Catalog lists the vendor's current items.
func (c *Client) Catalog(ctx context.Context) ([]Item, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/catalog", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return out.Items, nil
}

// PlaceOrder buys one code for sku. referenceID is the redemption id; the
// vendor deduplicates on it, which keeps retried orders from double-billing.
func (c *Client) PlaceOrder(ctx context.Context, sku, referenceID string) (Order, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/orders", map[string]string{
		"sku":          sku,
		"reference_id": referenceID,
	})
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	if order.Code == "" {
		return Order{}, fmt.Errorf("vendor returned empty code for sku %s", sku)
	}
	return order, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("GIFT_VENDOR_URL is not configured")
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("call %s: status %d", path, resp.StatusCode)
	}
	return data, nil
}
