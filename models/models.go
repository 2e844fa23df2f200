package models

import "time"

type Platform string

const (
	Twitter   Platform = "twitter"
	Instagram Platform = "instagram"
)

type PostStatus string

const (
	StatusPending            PostStatus = "pending"
	StatusInProgress         PostStatus = "in_progress"
	StatusCompleted          PostStatus = "completed"
	StatusPartiallyCompleted PostStatus = "partially_completed"
	StatusFailed             PostStatus = "failed"
)

// Terminal reports whether a post status can no longer change.
func (s PostStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartiallyCompleted
}

// PlatformState is the per-platform publish outcome inside a post.
type PlatformState string

const (
	PlatformPending   PlatformState = "pending"
	PlatformCompleted PlatformState = "completed"
	PlatformFailed    PlatformState = "failed"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Media struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

type ScheduledPost struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Content     string            `json:"content"`
	MediaURL    string            `json:"media_url,omitempty"`
	Platforms   []Platform        `json:"platforms"`
	Status      PostStatus        `json:"status"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	ClaimedAt   *time.Time        `json:"claimed_at,omitempty"`
	ClaimedBy   string            `json:"claimed_by,omitempty"`
	Reclaims    int               `json:"reclaims"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Results     []*PlatformResult `json:"results,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Result returns the per-platform result for the given platform, or nil.
func (p *ScheduledPost) Result(platform Platform) *PlatformResult {
	for _, r := range p.Results {
		if r.Platform == platform {
			return r
		}
	}
	return nil
}

type PlatformResult struct {
	PostID        string        `json:"post_id"`
	Platform      Platform      `json:"platform"`
	State         PlatformState `json:"state"`
	RemotePostID  string        `json:"remote_post_id,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Attempts      int           `json:"attempts"`
	LastAttemptAt *time.Time    `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time    `json:"next_attempt_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type PlatformCredentials struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Platform       Platform   `json:"platform"`
	AccessToken    string     `json:"-"`
	AccessSecret   string     `json:"-"`
	TokenType      string     `json:"token_type"`
	PlatformUserID string     `json:"platform_user_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type SchedulePostRequest struct {
	Content     string     `json:"content"`
	MediaURL    string     `json:"media_url,omitempty"`
	Platforms   []Platform `json:"platforms,omitempty"`
	Platform    Platform   `json:"platform,omitempty"` // legacy single-platform clients
	ScheduledAt time.Time  `json:"scheduled_at"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UploadResponse struct {
	Media *Media `json:"media"`
}
