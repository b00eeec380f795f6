package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// HTTPGateway posts messages to a JSON SMS provider API.
type HTTPGateway struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

func NewHTTPGateway(apiKey, baseURL, sender string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPGateway{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// Send does not log the message body; it carries the code.
func (g *HTTPGateway) Send(ctx context.Context, phoneNumber, message string) error {
	if g.BaseURL == "" {
		return deliveryError("provider URL not configured")
	}

	raw, err := json.Marshal(sendRequest{To: phoneNumber, From: g.Sender, Message: message})
	if err != nil {
		return deliveryError("encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return deliveryError("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", g.APIKey)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return deliveryError("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return deliveryError("provider returned status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
