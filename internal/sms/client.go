package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client interface {
	Send(ctx context.Context, phone, message string) error
}

// AfricasTalkingClient sends SMS through the Africa's Talking bulk messaging
// API.
type AfricasTalkingClient struct {
	Username string
	APIKey   string
	SenderID string

	baseURL    string // test override
	httpClient *http.Client
}

func NewAfricasTalkingClient(username, apiKey, senderID string) *AfricasTalkingClient {
	return &AfricasTalkingClient{
		Username:   username,
		APIKey:     apiKey,
		SenderID:   senderID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *AfricasTalkingClient) endpoint() string {
	if c.baseURL != "" {
		return c.baseURL + "/version1/messaging"
	}
	if c.Username == "sandbox" {
		return "https://api.sandbox.africastalking.com/version1/messaging"
	}
	return "https://api.africastalking.com/version1/messaging"
}

func (c *AfricasTalkingClient) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("username", c.Username)
	form.Set("to", "+"+strings.TrimPrefix(phone, "+"))
	form.Set("message", message)
	if c.SenderID != "" {
		form.Set("from", c.SenderID)
	}

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), strings.NewReader(form.Encode()))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("apiKey", c.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sms send request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms send failed: http=%d body=%s", resp.StatusCode, string(raw))
	}

	var res struct {
		SMSMessageData struct {
			Recipients []struct {
				Status     string `json:"status"`
				StatusCode int    `json:"statusCode"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("sms send decode: %w body=%s", err, string(raw))
	}

	for _, r := range res.SMSMessageData.Recipients {
		// 100-102 = processed/sent/queued
		if r.StatusCode < 100 || r.StatusCode > 102 {
			return fmt.Errorf("sms rejected: status=%s code=%d", r.Status, r.StatusCode)
		}
	}
	return nil
}
