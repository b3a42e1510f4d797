package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one product line of an order.
type LineItem struct {
	Title    string          `json:"title"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Order is a placed order.
type Order struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	OrderNumber       int64           `json:"order_number"`
	Email             string          `json:"email"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Currency          string          `json:"currency"`
	FinancialStatus   string          `json:"financial_status"`
	FulfillmentStatus *string         `json:"fulfillment_status"`
	CreatedAt         time.Time       `json:"created_at"`
	LineItems         []LineItem      `json:"line_items"`
	Customer          *OrderCustomer  `json:"customer"`
}

// OrderCustomer is the customer block embedded in order payloads.
type OrderCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Reference is the stable identifier used to deduplicate order credits.
func (o Order) Reference() string {
	if o.ID != 0 {
		return strconv.FormatInt(o.ID, 10)
	}
	return o.Name
}

// CustomerEmail is the order email, falling back to the customer block.
func (o Order) CustomerEmail() string {
	if o.Email != "" {
		return o.Email
	}
	if o.Customer != nil {
		return o.Customer.Email
	}
	return ""
}

const (
	ordersPageSize = 250
	// maxOrderPages bounds the pagination walk at 10 000 orders per customer.
	maxOrderPages = 40
)

// CustomerOrders returns every order of the customer with that email, newest
// first, following cursor pagination. An unknown email yields no orders.
func (c *Client) CustomerOrders(ctx context.Context, email string) ([]Order, error) {
	customer, err := c.FindCustomer(ctx, email)
	if err != nil || customer == nil {
		return nil, err
	}

	var orders []Order
	path := c.customerPath(customer.ID, fmt.Sprintf("orders.json?status=any&limit=%d", ordersPageSize))
	for page := 0; page < maxOrderPages; page++ {
		var resp struct {
			Orders []Order `json:"orders"`
		}
		next, err := c.doPage(ctx, http.MethodGet, path, nil, &resp)
		if err != nil {
			return nil, err
		}
		orders = append(orders, resp.Orders...)
		if next == "" {
			return orders, nil
		}
		// Follow-up pages accept only limit and page_info.
		path = c.customerPath(customer.ID, fmt.Sprintf("orders.json?limit=%d&page_info=%s", ordersPageSize, url.QueryEscape(next)))
	}
	return orders, nil
}
