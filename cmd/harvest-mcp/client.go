package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/harvest/models"
)

// apiClient talks to a running Harvest API server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Manual logins can keep a scrape open for several minutes.
		http: &http.Client{Timeout: 15 * time.Minute},
	}
}

// post sends a JSON payload and returns the response body.
func (c *apiClient) post(ctx context.Context, path string, payload any, header map[string]string) ([]byte, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// get issues a GET request and returns the response body.
func (c *apiClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// scrape runs one scrape and decodes the response. A non-success response
// is returned as an error carrying the code and message.
func (c *apiClient) scrape(ctx context.Context, req *models.ScrapeRequest, requestID string) (*models.ScrapeResponse, error) {
	var header map[string]string
	if requestID != "" {
		header = map[string]string{"X-Request-ID": requestID}
	}
	body, err := c.post(ctx, "/api/v1/scrape", req, header)
	if err != nil {
		return nil, err
	}
	var resp models.ScrapeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if !resp.Success {
		if resp.Error != nil {
			return nil, fmt.Errorf("[%s] %s", resp.Error.Code, resp.Error.Message)
		}
		return nil, fmt.Errorf("scrape failed")
	}
	return &resp, nil
}

// formatResult renders a scrape response as tool output text.
func formatResult(resp *models.ScrapeResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request: %s\n", resp.RequestID)
	if resp.FinalURL != "" {
		fmt.Fprintf(&sb, "Source: %s\n", resp.FinalURL)
	}
	res := resp.ExtractionResult
	if res == nil || res.IsEmpty() {
		sb.WriteString("\nNo data found.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Content: %s\n\n", res.ContentType)

	switch res.Kind {
	case models.KindRecords:
		out, err := json.MarshalIndent(res.Records, "", "  ")
		if err != nil {
			sb.WriteString(res.Summary(0))
			break
		}
		sb.Write(out)
	default:
		if resp.Markdown != "" {
			sb.WriteString(resp.Markdown)
		} else {
			sb.WriteString(res.Markup)
		}
	}
	return sb.String()
}
