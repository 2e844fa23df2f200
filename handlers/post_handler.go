package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var knownPlatforms = map[models.Platform]bool{
	models.Twitter:   true,
	models.Instagram: true,
}

// CreatePost accepts a schedule request, normalizes it, and inserts a
// pending post for the dispatcher to pick up. Submissions without a
// scheduled time are scheduled for now, so they publish on the next cycle.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var req models.SchedulePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Content == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Content is required")
		return
	}

	// Legacy clients send a single "platform" string; the array form is
	// canonical everywhere past this point.
	platforms := req.Platforms
	if len(platforms) == 0 && req.Platform != "" {
		platforms = []models.Platform{req.Platform}
	}
	if len(platforms) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "At least one platform is required")
		return
	}
	seen := map[models.Platform]bool{}
	for _, p := range platforms {
		if !knownPlatforms[p] {
			utils.RespondWithError(w, http.StatusBadRequest, "Unsupported platform: "+string(p))
			return
		}
		if seen[p] {
			utils.RespondWithError(w, http.StatusBadRequest, "Duplicate platform: "+string(p))
			return
		}
		seen[p] = true
	}

	now := time.Now()
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	} else if scheduledAt.Before(now.Add(-time.Minute)) {
		utils.RespondWithError(w, http.StatusBadRequest, "scheduled_at must not be in the past")
		return
	}

	post := &models.ScheduledPost{
		ID:          uuid.New().String(),
		UserID:      userID,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		Platforms:   platforms,
		Status:      models.StatusPending,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.db.CreateScheduledPost(post); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error creating post")
		return
	}

	post.Results, _ = h.db.GetPlatformResults(post.ID)
	utils.RespondWithJSON(w, http.StatusCreated, post)
}

// GetPosts lists the user's posts with optional status and time-range
// filters (?status=, ?from=, ?to= in RFC 3339).
func (h *Handler) GetPosts(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var status models.PostStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = models.PostStatus(s)
		switch status {
		case models.StatusPending, models.StatusInProgress, models.StatusCompleted,
			models.StatusPartiallyCompleted, models.StatusFailed:
		default:
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown status filter: "+s)
			return
		}
	}

	from, ok := parseTimeParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r, "to")
	if !ok {
		return
	}

	posts, err := h.db.GetUserPosts(userID, status, from, to)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	vars := mux.Vars(r)
	postID := vars["id"]

	post, err := h.db.GetPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}

	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, post)
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, name+" must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}
