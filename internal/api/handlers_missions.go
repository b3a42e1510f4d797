package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListMissions handles GET /api/missions.
func (h *Handler) ListMissions(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Missions.List(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"missions": views})
}

type missionProgressRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Progress int    `json:"progress" validate:"gte=0"`
}

// MissionProgress handles POST /api/missions/{id}/progress.
func (h *Handler) MissionProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := missionID(w, r)
	if !ok {
		return
	}
	var req missionProgressRequest
	if !h.decode(w, r, &req) {
		return
	}

	um, err := h.svc.Missions.Progress(r.Context(), req.Email, id, req.Progress)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user_mission": um})
}

type missionCompleteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CompleteMission handles POST /api/missions/{id}/complete.
func (h *Handler) CompleteMission(w http.ResponseWriter, r *http.Request) {
	id, ok := missionID(w, r)
	if !ok {
		return
	}
	var req missionCompleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Missions.Complete(r.Context(), req.Email, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"success":       true,
		"mission":       res.Mission,
		"user_mission":  res.UserMission,
		"points_earned": res.Mission.Points,
	}
	if res.Earned != nil {
		resp["new_balance"] = res.Earned.Account.PointsBalance
		resp["tier"] = res.Earned.Tier.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func missionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		errorJSON(w, http.StatusBadRequest, "invalid mission id")
		return 0, false
	}
	return id, true
}
