package handlers

import (
	"SocialSchedulerAPI/database"
	"SocialSchedulerAPI/services"
)

type Handler struct {
	db          *database.Database
	authService *services.AuthService
	storage     *services.StorageService
}

func NewHandler(db *database.Database, authService *services.AuthService, storage *services.StorageService) *Handler {
	return &Handler{
		db:          db,
		authService: authService,
		storage:     storage,
	}
}
