package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Value types accepted by price rules.
const (
	ValueFixedAmount = "fixed_amount"
	ValuePercentage  = "percentage"
)

// DiscountInput describes a single-code discount restricted to one customer.
type DiscountInput struct {
	Title           string
	Code            string
	ValueType       string
	Value           decimal.Decimal // positive; sent negated
	CustomerID      string
	StartsAt        time.Time
	EndsAt          time.Time
	UsageLimit      int
	OncePerCustomer bool
}

// Discount identifies a created discount on the platform.
type Discount struct {
	PriceRuleID    string
	DiscountCodeID string
	Code           string
}

type priceRulePayload struct {
	ID                      int64   `json:"id,omitempty"`
	Title                   string  `json:"title"`
	TargetType              string  `json:"target_type"`
	TargetSelection         string  `json:"target_selection"`
	AllocationMethod        string  `json:"allocation_method"`
	ValueType               string  `json:"value_type"`
	Value                   string  `json:"value"`
	CustomerSelection       string  `json:"customer_selection"`
	PrerequisiteCustomerIDs []int64 `json:"prerequisite_customer_ids,omitempty"`
	StartsAt                string  `json:"starts_at"`
	EndsAt                  string  `json:"ends_at,omitempty"`
	UsageLimit              *int    `json:"usage_limit,omitempty"`
	OncePerCustomer         bool    `json:"once_per_customer"`
}

type discountCodePayload struct {
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code"`
}

// CreateDiscount creates a price rule and its discount code. When the code
// cannot be created the price rule is deleted again.
func (c *Client) CreateDiscount(ctx context.Context, in DiscountInput) (*Discount, error) {
	if in.ValueType == "" {
		in.ValueType = ValueFixedAmount
	}
	rule := priceRulePayload{
		Title:             in.Title,
		TargetType:        "line_item",
		TargetSelection:   "all",
		AllocationMethod:  "across",
		ValueType:         in.ValueType,
		Value:             in.Value.Neg().StringFixed(2),
		CustomerSelection: "all",
		StartsAt:          in.StartsAt.UTC().Format(time.RFC3339),
		OncePerCustomer:   in.OncePerCustomer,
	}
	if !in.EndsAt.IsZero() {
		rule.EndsAt = in.EndsAt.UTC().Format(time.RFC3339)
	}
	if in.UsageLimit > 0 {
		rule.UsageLimit = &in.UsageLimit
	}
	if in.CustomerID != "" {
		id, err := strconv.ParseInt(in.CustomerID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("shopify: invalid customer id %q: %w", in.CustomerID, err)
		}
		rule.CustomerSelection = "prerequisite"
		rule.PrerequisiteCustomerIDs = []int64{id}
	}

	var ruleResp struct {
		PriceRule priceRulePayload `json:"price_rule"`
	}
	if err := c.do(ctx, http.MethodPost, "/price_rules.json", map[string]priceRulePayload{"price_rule": rule}, &ruleResp); err != nil {
		return nil, err
	}
	ruleID := strconv.FormatInt(ruleResp.PriceRule.ID, 10)

	var codeResp struct {
		DiscountCode discountCodePayload `json:"discount_code"`
	}
	codeReq := map[string]discountCodePayload{"discount_code": {Code: in.Code}}
	if err := c.do(ctx, http.MethodPost, "/price_rules/"+ruleID+"/discount_codes.json", codeReq, &codeResp); err != nil {
		if delErr := c.DeletePriceRule(ctx, ruleID); delErr != nil {
			return nil, fmt.Errorf("%w (price rule %s left behind: %v)", err, ruleID, delErr)
		}
		return nil, err
	}

	return &Discount{
		PriceRuleID:    ruleID,
		DiscountCodeID: strconv.FormatInt(codeResp.DiscountCode.ID, 10),
		Code:           codeResp.DiscountCode.Code,
	}, nil
}

// DeletePriceRule removes a price rule together with its codes.
func (c *Client) DeletePriceRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/price_rules/"+id+".json", nil, nil)
}
