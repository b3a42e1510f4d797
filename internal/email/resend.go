package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ResendClient talks to the Resend HTTP API.
type ResendClient struct {
	baseURL    string
	apiKey     string
	from       string
	audienceID string
	http       *http.Client
}

// NewResendClient creates a client. audienceID may be empty when newsletter
// subscriptions are not used.
func NewResendClient(baseURL, apiKey, from, audienceID string) *ResendClient {
	return &ResendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		from:       from,
		audienceID: audienceID,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Name       string `json:"name"`
}

// APIError is a non-2xx answer from Resend.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("resend: %d %s: %s", e.Status, e.Name, e.Message)
}

// Send posts the message to /emails.
func (c *ResendClient) Send(ctx context.Context, msg Message) error {
	body := resendEmail{From: c.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML}
	return c.post(ctx, "/emails", body)
}

// AddContact subscribes an address to the configured audience. It reports
// false without error when the contact already exists.
func (c *ResendClient) AddContact(ctx context.Context, address string) (bool, error) {
	if c.audienceID == "" {
		return false, fmt.Errorf("resend: no audience configured")
	}
	body := map[string]any{"email": address, "unsubscribed": false}
	err := c.post(ctx, "/audiences/"+c.audienceID+"/contacts", body)
	if apiErr, ok := err.(*APIError); ok && strings.Contains(apiErr.Message, "already exists") {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *ResendClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("resend: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("resend: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("resend: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var re resendError
	if err := json.Unmarshal(raw, &re); err != nil || re.Message == "" {
		re.Message = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Name: re.Name, Message: re.Message}
}
