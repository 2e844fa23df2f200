package main

import (
	"log"
	"net/http"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/database"
	"SocialSchedulerAPI/handlers"
	"SocialSchedulerAPI/middleware"
	"SocialSchedulerAPI/publishers"
	"SocialSchedulerAPI/services"
	"SocialSchedulerAPI/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	storage, err := services.NewStorageService(cfg.UploadDir, cfg.BaseURL, cfg.MaxUploadSize)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	authService := services.NewAuthService(db)

	dispatcher := services.NewDispatcher(db, db, publishers.NewRegistry(),
		services.RetryPolicy{MaxRetries: cfg.MaxRetries, BackoffBase: cfg.BackoffBase},
		services.WithConcurrency(cfg.DispatchConcurrency),
		services.WithPublishTimeout(cfg.PublishTimeout),
		services.WithClaimTimeout(cfg.ClaimTimeout),
		services.WithMaxReclaims(cfg.MaxReclaims),
	)

	scheduler := services.NewScheduler(dispatcher, cfg.PollSpec)
	if err := scheduler.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer scheduler.Stop()

	handler := handlers.NewHandler(db, authService, storage)

	r := setupRoutes(handler, authService, cfg)

	utils.Infof("Server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

func setupRoutes(h *handlers.Handler, authService *services.AuthService, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = []string{cfg.BaseURL}
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.BodyLimit(1 << 20)) // 1 MB default; upload route overrides

	limiter := middleware.NewRateLimiter(10, 30)
	r.Use(limiter.Limit())

	// Public routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/auth/register", h.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", h.Login).Methods("POST")

	// Uploaded media: signed-URL or JWT access, fetched by platform servers
	// during publishing.
	r.PathPrefix("/uploads/").Handler(
		middleware.SignedFileServer("/uploads/", cfg.UploadDir, cfg.MediaSigningKey, authService))

	// Protected routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	// Credentials
	protected.HandleFunc("/credentials", h.SaveCredentials).Methods("POST")
	protected.HandleFunc("/credentials/status", h.GetConnectedPlatforms).Methods("GET")
	protected.HandleFunc("/credentials/disconnect", h.DisconnectPlatform).Methods("DELETE")

	// Media
	protected.HandleFunc("/media", middleware.BodyLimitHandler(cfg.MaxUploadSize, h.UploadMedia)).Methods("POST")
	protected.HandleFunc("/media", h.GetMedia).Methods("GET")
	protected.HandleFunc("/media/{id}", h.DeleteMedia).Methods("DELETE")

	// Posts
	protected.HandleFunc("/posts", h.CreatePost).Methods("POST")
	protected.HandleFunc("/posts", h.GetPosts).Methods("GET")
	protected.HandleFunc("/posts/{id}", h.GetPost).Methods("GET")

	return r
}
