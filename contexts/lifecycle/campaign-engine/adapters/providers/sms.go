package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
)

// SMSClient sends campaign SMS through a Twilio-compatible messaging API.
// The subject argument of Send is ignored; SMS carries body text only.
type SMSClient struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

func NewSMSClient(accountSID, authToken, baseURL, from string) *SMSClient {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", accountSID)
	}
	return &SMSClient{
		AccountSID: accountSID,
		AuthToken:  authToken,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *SMSClient) Send(ctx context.Context, to, _ string, body string) (string, error) {
	if c.AccountSID == "" || c.AuthToken == "" {
		return "", domainerrors.NewRetryableTransportError("provider_unconfigured",
			fmt.Errorf("sms: credentials not configured"))
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", domainerrors.NewPermanentTransportError("invalid_request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", domainerrors.NewRetryableTransportError("provider_unreachable", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("sms", resp); err != nil {
		return "", err
	}

	var decoded struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", domainerrors.NewRetryableTransportError("provider_bad_response", err)
	}
	return decoded.SID, nil
}
