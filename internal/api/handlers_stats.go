package api

import (
	"net/http"
)

// GetStats handles GET /api/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats.Stats(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":               st.Email,
		"points_balance":      st.PointsBalance,
		"total_points_earned": st.TotalPointsEarned,
		"total_points_spent":  st.TotalPointsSpent,
		"tier":                toTier(st.Tier),
		"orders_count":        st.OrdersCount,
		"orders_available":    st.OrdersAvailable,
		"total_spent":         money(st.TotalSpent),
		"average_order":       money(st.AverageOrder),
		"redemptions_count":   st.RedemptionsCount,
		"gift_cards_count":    st.GiftCardsCount,
		"savings": map[string]any{
			"points":     money(st.Savings.Points),
			"gift_cards": money(st.Savings.GiftCards),
			"tier_bonus": money(st.Savings.TierBonus),
			"total":      money(st.Savings.Total),
		},
	})
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	first, ok := intParam(w, r, "first")
	if !ok {
		return
	}

	orders, err := h.svc.Stats.Orders(r.Context(), r.URL.Query().Get("email"), first)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

type newsletterRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SubscribeNewsletter handles POST /api/newsletter.
func (h *Handler) SubscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if !h.decode(w, r, &req) {
		return
	}

	already, err := h.svc.Newsletter.Subscribe(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "alreadyExists": already})
}
