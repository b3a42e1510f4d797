package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/shopify"
)

// OrderWebhook handles POST /api/webhooks/orders.
func (h *Handler) OrderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if h.opts.WebhookSecret != "" && !shopify.VerifyWebhook(h.opts.WebhookSecret, body, r.Header.Get(shopify.HMACHeader)) {
		h.logger.Warn("webhook signature rejected", zap.String("request_id", r.Header.Get("X-Request-Id")))
		errorJSON(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var order shopify.Order
	if err := json.Unmarshal(body, &order); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Ledger.ProcessOrder(r.Context(), order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ignored"})
		return
	}
	if res.AlreadyProcessed {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"status":      "already_processed",
			"new_balance": res.Account.PointsBalance,
		})
		return
	}

	bonuses := make([]map[string]any, 0, len(res.Bonuses))
	for _, b := range res.Bonuses {
		bonuses = append(bonuses, map[string]any{
			"tier":         b.TierName,
			"bonus_points": b.BonusPoints,
			"bonus_amount": money(b.BonusAmount),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"status":        "processed",
		"points_earned": res.Transaction.Points,
		"new_balance":   res.Account.PointsBalance,
		"total_earned":  res.Account.TotalPointsEarned,
		"tier":          res.Tier.Name,
		"tier_changed":  res.Tier.Rank != res.PreviousTier.Rank,
		"bonuses":       bonuses,
	})
}

// GetPoints handles GET /api/points.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Ledger.Balance(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"email":               view.Account.Email,
		"points_balance":      view.Account.PointsBalance,
		"total_points_earned": view.Account.TotalPointsEarned,
		"total_points_spent":  view.Account.TotalPointsSpent,
		"tier":                toTier(view.Tier),
		"next_tier":           nil,
		"points_to_next_tier": view.PointsToNext,
	}
	if view.NextTier != nil {
		resp["next_tier"] = toTier(*view.NextTier)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTransactions handles GET /api/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}

	txs, err := h.svc.Ledger.History(r.Context(), r.URL.Query().Get("email"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransaction(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out, "count": len(out)})
}

// intParam parses an optional integer query parameter; 0 when absent.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}
