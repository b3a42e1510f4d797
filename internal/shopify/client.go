// Package shopify is a small client for the Shopify Admin REST API covering
// customers, price rules with discount codes, and orders.
package shopify

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

	"golang.org/x/time/rate"

	"github.com/kkkkikiki/loyalty/internal/config"
)

// ErrCustomerExists is returned when the email is already registered on the
// platform.
var ErrCustomerExists = errors.New("shopify: customer already exists")

// APIError is a non-2xx answer from the Admin API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify: %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// Client calls the Admin API. Outgoing requests share one token bucket so a
// burst of redemptions cannot trip the platform's own throttling.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a client for the configured shop.
func New(cfg config.ShopifyConfig) *Client {
	base := fmt.Sprintf("https://%s/admin/api/%s", cfg.Domain, cfg.APIVersion)
	return NewWithBaseURL(base, cfg.AccessToken, rate.Limit(cfg.RateLimit), cfg.RateBurst, cfg.Timeout)
}

// NewWithBaseURL builds a client against an arbitrary base URL.
func NewWithBaseURL(baseURL, token string, limit rate.Limit, burst int, timeout time.Duration) *Client {
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.doPage(ctx, method, path, in, out)
	return err
}

// doPage is do for cursor-paginated endpoints. It returns the page_info of
// the next page, or "" on the last one.
func (c *Client) doPage(ctx context.Context, method, path string, in, out any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("shopify: rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("shopify: failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("shopify: failed to build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("shopify: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	next := nextPageInfo(resp.Header.Get("Link"))
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return next, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("shopify: failed to decode %s %s: %w", method, path, err)
	}
	return next, nil
}

// nextPageInfo extracts the page_info cursor of the rel="next" entry of a
// Link header:
//
//	<https://shop/admin/api/2024-10/orders.json?limit=250&page_info=abc>; rel="next"
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok || !strings.Contains(params, `rel="next"`) {
			continue
		}
		target = strings.Trim(strings.TrimSpace(target), "<>")
		u, err := url.Parse(target)
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}
