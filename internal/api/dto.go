package api

import (
	"encoding/json"
	"time"

	"github.com/kkkkikiki/loyalty/internal/loyalty"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

type tierResponse struct {
	Name           string      `json:"name"`
	Threshold      int64       `json:"threshold"`
	BonusPoints    int64       `json:"bonus_points"`
	BonusAmount    json.Number `json:"bonus_amount"`
	GiftCardAmount json.Number `json:"gift_card_amount"`
}

func toTier(t loyalty.Tier) tierResponse {
	return tierResponse{
		Name:           t.Name,
		Threshold:      t.Threshold,
		BonusPoints:    t.BonusPoints,
		BonusAmount:    money(t.BonusAmount),
		GiftCardAmount: money(t.GiftCardAmount),
	}
}

type codeResponse struct {
	Code           string      `json:"code"`
	Source         string      `json:"source"`
	ValueType      string      `json:"value_type"`
	DiscountAmount json.Number `json:"discount_amount"`
	TierName       string      `json:"tier_name,omitempty"`
	Status         string      `json:"status"`
	PointsUsed     int64       `json:"points_used"`
	ExpiresAt      time.Time   `json:"expires_at"`
	CreatedAt      time.Time   `json:"created_at"`
}

func toCode(c model.DiscountCode) codeResponse {
	return codeResponse{
		Code:           c.Code,
		Source:         string(c.Source),
		ValueType:      string(c.ValueType),
		DiscountAmount: money(c.DiscountAmount),
		TierName:       c.TierName,
		Status:         string(c.Status),
		PointsUsed:     c.PointsUsed,
		ExpiresAt:      c.ExpiresAt,
		CreatedAt:      c.CreatedAt,
	}
}

type transactionResponse struct {
	ID           string      `json:"id"`
	Points       int64       `json:"points"`
	Type         string      `json:"transaction_type"`
	Description  string      `json:"description"`
	OrderID      string      `json:"order_id,omitempty"`
	DiscountCode string      `json:"discount_code,omitempty"`
	TierName     string      `json:"tier_name,omitempty"`
	Amount       json.Number `json:"amount"`
	CreatedAt    time.Time   `json:"created_at"`
}

func toTransaction(t model.PointsTransaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID.String(),
		Points:       t.Points,
		Type:         string(t.Type),
		Description:  t.Description,
		OrderID:      t.OrderID,
		DiscountCode: t.DiscountCode,
		TierName:     t.TierName,
		Amount:       money(t.Amount),
		CreatedAt:    t.CreatedAt,
	}
}

type customerResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func toCustomer(c *model.Customer) customerResponse {
	return customerResponse{ID: c.CommerceID, Email: c.Email, FirstName: c.FirstName, LastName: c.LastName}
}

type lineItemResponse struct {
	Title    string      `json:"title"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type orderResponse struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	OrderNumber       int64              `json:"order_number"`
	TotalPrice        json.Number        `json:"total_price"`
	Currency          string             `json:"currency"`
	FulfillmentStatus string             `json:"fulfillment_status"`
	CreatedAt         time.Time          `json:"created_at"`
	LineItems         []lineItemResponse `json:"line_items"`
}

func toOrder(o shopify.Order) orderResponse {
	out := orderResponse{
		ID:                o.ID,
		Name:              o.Name,
		OrderNumber:       o.OrderNumber,
		TotalPrice:        money(o.TotalPrice),
		Currency:          o.Currency,
		FulfillmentStatus: "unfulfilled",
		CreatedAt:         o.CreatedAt,
		LineItems:         make([]lineItemResponse, 0, len(o.LineItems)),
	}
	if o.FulfillmentStatus != nil && *o.FulfillmentStatus != "" {
		out.FulfillmentStatus = *o.FulfillmentStatus
	}
	for _, li := range o.LineItems {
		out.LineItems = append(out.LineItems, lineItemResponse{Title: li.Title, Quantity: li.Quantity, Price: money(li.Price)})
	}
	return out
}
