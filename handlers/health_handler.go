package handlers

import (
	"net/http"

	"SocialSchedulerAPI/utils"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DB.Ping(); err != nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
