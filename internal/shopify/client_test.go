package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWithBaseURL(srv.URL, "tok", rate.Inf, 1, 5*time.Second)
}

func TestCreateCustomer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/customers.json", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Shopify-Access-Token"))

		var body map[string]customerPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body["customer"].Email)
		assert.Equal(t, "secret1", body["customer"].PasswordConfirmation)

		w.Write([]byte(`{"customer":{"id":42,"email":"ana@example.com","first_name":"Ana"}}`))
	})

	cust, err := c.CreateCustomer(context.Background(), CustomerInput{Email: "ana@example.com", FirstName: "Ana", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "42", cust.ID)
	assert.Equal(t, "Ana", cust.FirstName)
}

func TestCreateCustomerTaken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":{"email":["has already been taken"]}}`))
	})

	_, err := c.CreateCustomer(context.Background(), CustomerInput{Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrCustomerExists)
}

func TestCreateDiscount(t *testing.T) {
	var rule map[string]priceRulePayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/price_rules.json":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rule))
			w.Write([]byte(`{"price_rule":{"id":900}}`))
		case "/price_rules/900/discount_codes.json":
			w.Write([]byte(`{"discount_code":{"id":901,"code":"ALOHA3-ABCDEF"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	d, err := c.CreateDiscount(context.Background(), DiscountInput{
		Title:      "Fidélité 35 pts",
		Code:       "ALOHA3-ABCDEF",
		Value:      decimal.RequireFromString("3.5"),
		CustomerID: "42",
		StartsAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		UsageLimit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, &Discount{PriceRuleID: "900", DiscountCodeID: "901", Code: "ALOHA3-ABCDEF"}, d)

	pr := rule["price_rule"]
	assert.Equal(t, "-3.50", pr.Value)
	assert.Equal(t, ValueFixedAmount, pr.ValueType)
	assert.Equal(t, "prerequisite", pr.CustomerSelection)
	assert.Equal(t, []int64{42}, pr.PrerequisiteCustomerIDs)
	require.NotNil(t, pr.UsageLimit)
	assert.Equal(t, 1, *pr.UsageLimit)
}

func TestCreateDiscountRollsBackPriceRule(t *testing.T) {
	deleted := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/price_rules.json":
			w.Write([]byte(`{"price_rule":{"id":900}}`))
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"errors":{"code":["must be unique"]}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/price_rules/900.json":
			deleted = true
			w.WriteHeader(http.StatusOK)
		}
	})

	_, err := c.CreateDiscount(context.Background(), DiscountInput{Code: "X", Value: decimal.NewFromInt(1), StartsAt: time.Now()})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.True(t, deleted)
}

func TestCustomerOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/search.json":
			assert.Equal(t, "email:ana@example.com", r.URL.Query().Get("query"))
			w.Write([]byte(`{"customers":[{"id":42,"email":"ana@example.com"}]}`))
		case "/customers/42/orders.json":
			assert.Equal(t, "any", r.URL.Query().Get("status"))
			assert.Equal(t, "250", r.URL.Query().Get("limit"))
			w.Write([]byte(`{"orders":[{"id":7,"name":"#1001","order_number":1001,"total_price":"12.30","currency":"EUR","created_at":"2026-01-02T10:00:00Z"}]}`))
		}
	})

	orders, err := c.CustomerOrders(context.Background(), "ana@example.com")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "#1001", orders[0].Name)
	assert.True(t, orders[0].TotalPrice.Equal(decimal.RequireFromString("12.30")))
	assert.Equal(t, "7", orders[0].Reference())
}

func TestCustomerOrdersFollowsPagination(t *testing.T) {
	var pages []string
	var c *Client
	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/search.json":
			w.Write([]byte(`{"customers":[{"id":42,"email":"ana@example.com"}]}`))
		case "/customers/42/orders.json":
			q := r.URL.Query()
			pages = append(pages, q.Get("page_info"))
			switch q.Get("page_info") {
			case "":
				w.Header().Set("Link", fmt.Sprintf(`<%s/customers/42/orders.json?limit=250&page_info=p2>; rel="next"`, c.baseURL))
				w.Write([]byte(`{"orders":[{"id":1,"total_price":"10.00"},{"id":2,"total_price":"20.00"}]}`))
			case "p2":
				assert.Empty(t, q.Get("status"))
				w.Header().Set("Link", fmt.Sprintf(`<%s/customers/42/orders.json?limit=250&page_info=p1>; rel="previous"`, c.baseURL))
				w.Write([]byte(`{"orders":[{"id":3,"total_price":"5.00"}]}`))
			default:
				t.Errorf("unexpected page %q", q.Get("page_info"))
			}
		}
	})

	orders, err := c.CustomerOrders(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "p2"}, pages)
	require.Len(t, orders, 3)
	assert.Equal(t, int64(3), orders[2].ID)
}

func TestNextPageInfo(t *testing.T) {
	link := `<https://shop.example.com/admin/api/2024-10/orders.json?limit=250&page_info=prev>; rel="previous", ` +
		`<https://shop.example.com/admin/api/2024-10/orders.json?limit=250&page_info=nxt>; rel="next"`
	assert.Equal(t, "nxt", nextPageInfo(link))
	assert.Empty(t, nextPageInfo(""))
	assert.Empty(t, nextPageInfo(`<https://shop.example.com/orders.json?page_info=prev>; rel="previous"`))
}

func TestCustomerOrdersUnknownEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"customers":[]}`))
	})

	orders, err := c.CustomerOrders(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	c := NewWithBaseURL(srv.URL, "tok", rate.Every(time.Hour), 1, time.Second)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.DeleteCustomer(ctx, "1"))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"id":7}`)
	sig := Sign("s3cret", body)

	assert.True(t, VerifyWebhook("s3cret", body, sig))
	assert.False(t, VerifyWebhook("other", body, sig))
	assert.False(t, VerifyWebhook("s3cret", []byte(`{"id":8}`), sig))
	assert.False(t, VerifyWebhook("", body, sig))
	assert.False(t, VerifyWebhook("s3cret", body, "not base64!"))
}
