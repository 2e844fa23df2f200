package handlers

import (
	"net/http"
	"time"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"

	"github.com/gorilla/mux"
)

const mediaURLValidity = 24 * time.Hour

func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	cfg := config.Load()

	if err := r.ParseMultipartForm(cfg.MaxUploadSize); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "File too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Error retrieving file")
		return
	}
	defer file.Close()

	media, err := h.storage.SaveFile(file, header, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.CreateMedia(media); err != nil {
		h.storage.DeleteFile(media)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error saving media")
		return
	}

	// Return a signed URL so it can be referenced in a schedule request and
	// fetched by platform servers without auth headers.
	signed := utils.SignMediaURL(media, cfg.MediaSigningKey, mediaURLValidity)
	utils.RespondWithJSON(w, http.StatusCreated, models.UploadResponse{Media: signed})
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	mediaList, err := h.db.GetUserMedia(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching media")
		return
	}

	signed := utils.SignMediaList(mediaList, config.Load().MediaSigningKey, mediaURLValidity)
	utils.RespondWithJSON(w, http.StatusOK, signed)
}

func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	vars := mux.Vars(r)
	mediaID := vars["id"]

	media, err := h.db.GetMedia(mediaID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Media not found")
		return
	}

	if media.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	if err := h.db.DeleteMedia(mediaID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error deleting media")
		return
	}
	h.storage.DeleteFile(media)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Media deleted"})
}
