package api

import (
	"net/http"
)

type redeemPointsRequest struct {
	Email       string `json:"email" validate:"required,email"`
	PointsToUse int64  `json:"pointsToUse" validate:"required,gt=0"`
}

// CreateDiscountCode handles POST /api/discount-codes.
func (h *Handler) CreateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var req redeemPointsRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Redemption.RedeemPoints(r.Context(), req.Email, req.PointsToUse)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"discount_code":    toCode(*res.Code),
		"points_used":      req.PointsToUse,
		"remaining_points": res.Account.PointsBalance,
	})
}

// ListDiscountCodes handles GET /api/discount-codes.
func (h *Handler) ListDiscountCodes(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.Redemption.ListCodes(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	codes := make([]codeResponse, 0, len(listing.Codes))
	for _, c := range listing.Codes {
		codes = append(codes, toCode(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"codes":        codes,
		"active_count": listing.ActiveCount,
		"total_count":  listing.TotalCount,
	})
}

type redeemGiftCardRequest struct {
	Email string `json:"email" validate:"required,email"`
	Tier  string `json:"tier" validate:"required"`
}

// RedeemGiftCard handles POST /api/gift-cards.
func (h *Handler) RedeemGiftCard(w http.ResponseWriter, r *http.Request) {
	var req redeemGiftCardRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Redemption.RedeemGiftCard(r.Context(), req.Email, req.Tier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"discount_code": toCode(*res.Code),
	})
}

// ListGiftCards handles GET /api/gift-cards.
func (h *Handler) ListGiftCards(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Redemption.GiftCards(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	redeemed := make([]string, 0, len(status.Redeemed))
	for _, g := range status.Redeemed {
		redeemed = append(redeemed, g.TierName)
	}
	available := make([]tierResponse, 0, len(status.Available))
	for _, t := range status.Available {
		available = append(available, toTier(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redeemed_tiers":  redeemed,
		"available_tiers": available,
	})
}
