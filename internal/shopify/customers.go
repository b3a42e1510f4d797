package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CustomerInput is the data needed to register a customer.
type CustomerInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Customer is a platform customer.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

type customerPayload struct {
	ID                   int64  `json:"id,omitempty"`
	Email                string `json:"email"`
	FirstName            string `json:"first_name,omitempty"`
	LastName             string `json:"last_name,omitempty"`
	VerifiedEmail        bool   `json:"verified_email,omitempty"`
	Password             string `json:"password,omitempty"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
	SendEmailWelcome     bool   `json:"send_email_welcome"`
}

func (p customerPayload) customer() *Customer {
	return &Customer{
		ID:        strconv.FormatInt(p.ID, 10),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

// CreateCustomer registers a customer. It returns ErrCustomerExists when the
// platform already knows the email.
func (c *Client) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	req := map[string]customerPayload{"customer": {
		Email:                in.Email,
		FirstName:            in.FirstName,
		LastName:             in.LastName,
		VerifiedEmail:        true,
		Password:             in.Password,
		PasswordConfirmation: in.Password,
	}}

	var resp struct {
		Customer customerPayload `json:"customer"`
	}
	err := c.do(ctx, http.MethodPost, "/customers.json", req, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity && strings.Contains(apiErr.Body, "taken") {
		return nil, ErrCustomerExists
	}
	if err != nil {
		return nil, err
	}
	return resp.Customer.customer(), nil
}

// DeleteCustomer removes a customer.
func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/customers/"+url.PathEscape(id)+".json", nil, nil)
}

// FindCustomer looks a customer up by email. It returns nil without error
// when nobody matches.
func (c *Client) FindCustomer(ctx context.Context, email string) (*Customer, error) {
	q := url.Values{"query": {"email:" + email}}
	var resp struct {
		Customers []customerPayload `json:"customers"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers/search.json?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	for _, p := range resp.Customers {
		if strings.EqualFold(p.Email, email) {
			return p.customer(), nil
		}
	}
	return nil, nil
}

func (c *Client) customerPath(id string, suffix string) string {
	return fmt.Sprintf("/customers/%s/%s", url.PathEscape(id), suffix)
}
