// Package wasend is the HTTP client for the WhatsApp send provider. The
// provider is a black box to the rest of the service: one call, one
// success/failure outcome.
package wasend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   *time.Ticker
}

func NewClient(apiKey string) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("WHATSAPP_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("WHATSAPP_API_BASE_URL is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("WHATSAPP_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("whatsapp api key is empty")
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("WHATSAPP_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.NewTicker(interval),
	}, nil
}

// Close stops the rate limiter ticker.
func (c *Client) Close() {
	c.limiter.Stop()
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Send delivers one message. Any non-2xx status or success=false body is a
// failure for that message only.
func (c *Client) Send(ctx context.Context, phone string, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.limiter.C:
	}

	payload, err := json.Marshal(sendRequest{Phone: phone, Message: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Some providers return an empty 2xx body; treat it as success.
		return nil
	}
	if !parsed.Success && parsed.Error != "" {
		return fmt.Errorf("whatsapp api rejected message: %s", parsed.Error)
	}
	return nil
}
