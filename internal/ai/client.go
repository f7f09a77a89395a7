// Package ai is the narrow contract with the vision/text verification
// collaborator: it judges whether a screenshot matches a mission and whether
// free-text feedback is substantive. Its verdicts are persisted as read-only
// flags for the review UI; the scoring engine does not consume them.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Verification is the collaborator's verdict for one screenshot or text.
type Verification struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// ScreenshotRequest hands the model a signed URL plus context to judge
// against. ReferenceURL is optional.
type ScreenshotRequest struct {
	ImageURL     string   `json:"image_url"`
	ReferenceURL string   `json:"reference_url,omitempty"`
	Mission      string   `json:"mission,omitempty"`
	Answers      []string `json:"answers,omitempty"`
}

// Client talks to the verification service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a client; timeout covers the full request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// VerifyScreenshot judges one submitted screenshot.
func (c *Client) VerifyScreenshot(ctx context.Context, req ScreenshotRequest) (Verification, error) {
	return c.post(ctx, "/v1/verify/screenshot", req)
}

// VerifyText judges whether free-text feedback is substantive.
func (c *Client) VerifyText(ctx context.Context, text string) (Verification, error) {
	return c.post(ctx, "/v1/verify/text", map[string]string{"text": text})
}

// Summarize condenses a campaign's feedback into one insight paragraph.
func (c *Client) Summarize(ctx context.Context, texts []string) (string, error) {
	body, err := c.do(ctx, "/v1/summarize", map[string]any{"texts": texts})
	if err != nil {
		return "", err
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode summary: %w", err)
	}
	return out.Summary, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (Verification, error) {
	body, err := c.do(ctx, path, payload)
	if err != nil {
		return Verification{}, err
	}
	var v Verification
	if err := json.Unmarshal(body, &v); err != nil {
		return Verification{}, fmt.Errorf("decode verification: %w", err)
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("AI_BASE_URL is not configured")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("call %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}
