package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"

	"github.com/google/uuid"
)

func (h *Handler) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	// Token fields are json:"-" on the model, so decode a dedicated
	// request shape.
	var req struct {
		Platform       models.Platform `json:"platform"`
		AccessToken    string          `json:"access_token"`
		AccessSecret   string          `json:"access_secret"`
		TokenType      string          `json:"token_type"`
		PlatformUserID string          `json:"platform_user_id"`
		ExpiresAt      *time.Time      `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Platform == "" || req.AccessToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Platform and access_token are required")
		return
	}
	if !knownPlatforms[req.Platform] {
		utils.RespondWithError(w, http.StatusBadRequest, "Unsupported platform: "+string(req.Platform))
		return
	}

	tokenType := req.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	cred := &models.PlatformCredentials{
		ID:             uuid.New().String(),
		UserID:         userID,
		Platform:       req.Platform,
		AccessToken:    req.AccessToken,
		AccessSecret:   req.AccessSecret,
		TokenType:      tokenType,
		PlatformUserID: req.PlatformUserID,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      time.Now(),
	}

	if err := h.db.SaveCredentials(cred); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error saving credentials")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Credentials saved successfully"})
}

func (h *Handler) GetConnectedPlatforms(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	platforms, err := h.db.GetConnectedPlatforms(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching connected platforms")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"platforms": platforms})
}

func (h *Handler) DisconnectPlatform(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	platform := models.Platform(r.URL.Query().Get("platform"))
	if platform == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "platform query parameter is required")
		return
	}

	if err := h.db.DeactivateCredentials(userID, platform); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error disconnecting platform")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Platform disconnected"})
}
