package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
)

const defaultTimeout = 15 * time.Second

// EmailClient sends campaign email through an HTTP delivery provider
// (Resend-compatible JSON API).
type EmailClient struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

func NewEmailClient(apiKey, baseURL, from string) *EmailClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com/emails"
	}
	return &EmailClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *EmailClient) Send(ctx context.Context, to, subject, body string) (string, error) {
	if c.APIKey == "" {
		return "", domainerrors.NewRetryableTransportError("provider_unconfigured",
			fmt.Errorf("email: API key not configured"))
	}
	payload := map[string]any{
		"from":    c.From,
		"to":      []string{to},
		"subject": subject,
		"html":    body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", domainerrors.NewPermanentTransportError("invalid_payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return "", domainerrors.NewPermanentTransportError("invalid_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", domainerrors.NewRetryableTransportError("provider_unreachable", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("email", resp); err != nil {
		return "", err
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", domainerrors.NewRetryableTransportError("provider_bad_response", err)
	}
	return decoded.ID, nil
}

// classifyStatus maps a non-2xx provider response to a transport error.
// Recipient-level rejections are permanent; throttling and server faults
// stay retryable.
func classifyStatus(channel string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	cause := fmt.Errorf("%s: request failed status=%d body=%s", channel, resp.StatusCode, string(raw))
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return domainerrors.NewPermanentTransportError("rejected_by_provider", cause)
	default:
		return domainerrors.NewRetryableTransportError("provider_error", cause)
	}
}
