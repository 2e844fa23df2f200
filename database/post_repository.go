package database

import (
	"strconv"
	"time"

	"SocialSchedulerAPI/models"

	"github.com/lib/pq"
)

const postColumns = `id, user_id, content, media_url, platforms, status, scheduled_at,
			  claimed_at, claimed_by, reclaims, published_at, created_at, updated_at`

// CreateScheduledPost inserts the post together with a pending result row per
// target platform, in one transaction.
func (d *Database) CreateScheduledPost(post *models.ScheduledPost) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	platforms := make([]string, len(post.Platforms))
	for i, p := range post.Platforms {
		platforms[i] = string(p)
	}

	query := `INSERT INTO posts (id, user_id, content, media_url, platforms, status, scheduled_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.Exec(query, post.ID, post.UserID, post.Content, nullString(post.MediaURL),
		pq.Array(platforms), post.Status, post.ScheduledAt, post.CreatedAt, post.UpdatedAt); err != nil {
		return err
	}

	for _, p := range post.Platforms {
		if _, err := tx.Exec(
			`INSERT INTO post_results (post_id, platform, state, attempts, updated_at) VALUES ($1, $2, $3, 0, $4)`,
			post.ID, p, models.PlatformPending, post.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *Database) GetPost(id string) (*models.ScheduledPost, error) {
	row := d.DB.QueryRow(`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)

	post, err := scanPost(row)
	if err != nil {
		return nil, err
	}

	post.Results, err = d.GetPlatformResults(post.ID)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// GetUserPosts lists a user's posts newest first. Status and time-range
// filters are optional; zero values disable them.
func (d *Database) GetUserPosts(userID string, status models.PostStatus, from, to time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1`
	args := []interface{}{userID}

	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	if !from.IsZero() {
		args = append(args, from)
		query += ` AND scheduled_at >= $` + itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += ` AND scheduled_at <= $` + itoa(len(args))
	}
	query += ` ORDER BY scheduled_at DESC`

	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*models.ScheduledPost{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			continue
		}
		post.Results, _ = d.GetPlatformResults(post.ID)
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// FindDuePending returns posts eligible for dispatch: due posts that are
// pending, in progress with a released claim (awaiting retry), or in
// progress with a claim older than the stale cutoff (worker crashed).
func (d *Database) FindDuePending(now, staleCutoff time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts
			  WHERE scheduled_at <= $1
			    AND (status = $2
			         OR (status = $3 AND (claimed_at IS NULL OR claimed_at <= $4)))
			  ORDER BY scheduled_at`

	rows, err := d.DB.Query(query, now, models.StatusPending, models.StatusInProgress, staleCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*models.ScheduledPost{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			continue
		}
		post.Results, _ = d.GetPlatformResults(post.ID)
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// TryClaim atomically assigns the post to a worker. The conditional WHERE is
// the sole concurrency-safety mechanism: two workers racing on the same id
// see exactly one row updated. Reclaiming a stale held claim bumps the
// reclaim counter.
func (d *Database) TryClaim(id, workerID string, now, staleCutoff time.Time) (bool, error) {
	query := `UPDATE posts
			  SET status = $1, claimed_at = $2, claimed_by = $3, updated_at = $2,
			      reclaims = reclaims + CASE WHEN status = $1 AND claimed_at IS NOT NULL THEN 1 ELSE 0 END
			  WHERE id = $4
			    AND (status = $5
			         OR (status = $1 AND (claimed_at IS NULL OR claimed_at <= $6)))`

	res, err := d.DB.Exec(query, models.StatusInProgress, now, workerID, id, models.StatusPending, staleCutoff)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseClaim drops the worker's claim but keeps the post in progress, so
// retry-eligible platforms are picked up by a later cycle without waiting
// for the stale-claim timeout.
func (d *Database) ReleaseClaim(id string) error {
	query := `UPDATE posts SET claimed_at = NULL, claimed_by = NULL, updated_at = $1
			  WHERE id = $2 AND status = $3`
	_, err := d.DB.Exec(query, time.Now(), id, models.StatusInProgress)
	return err
}

func (d *Database) UpdatePlatformResult(r *models.PlatformResult) error {
	query := `UPDATE post_results
			  SET state = $1, remote_post_id = $2, error_kind = $3, error_message = $4,
			      attempts = $5, last_attempt_at = $6, next_attempt_at = $7, updated_at = $8
			  WHERE post_id = $9 AND platform = $10`

	_, err := d.DB.Exec(query, r.State, nullString(r.RemotePostID), nullString(r.ErrorKind),
		nullString(r.ErrorMessage), r.Attempts, r.LastAttemptAt, r.NextAttemptAt, r.UpdatedAt,
		r.PostID, r.Platform)
	return err
}

// FinalizeStatus records a post's terminal status and clears the claim.
func (d *Database) FinalizeStatus(id string, status models.PostStatus, publishedAt *time.Time) error {
	query := `UPDATE posts
			  SET status = $1, published_at = $2, claimed_at = NULL, claimed_by = NULL, updated_at = $3
			  WHERE id = $4`
	_, err := d.DB.Exec(query, status, publishedAt, time.Now(), id)
	return err
}

func (d *Database) GetPlatformResults(postID string) ([]*models.PlatformResult, error) {
	query := `SELECT post_id, platform, state, remote_post_id, error_kind, error_message,
			  attempts, last_attempt_at, next_attempt_at, updated_at
			  FROM post_results WHERE post_id = $1 ORDER BY platform`

	rows, err := d.DB.Query(query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*models.PlatformResult{}
	for rows.Next() {
		r := &models.PlatformResult{}
		var remoteID, errKind, errMessage *string

		if err := rows.Scan(&r.PostID, &r.Platform, &r.State, &remoteID, &errKind,
			&errMessage, &r.Attempts, &r.LastAttemptAt, &r.NextAttemptAt, &r.UpdatedAt); err != nil {
			return nil, err
		}

		r.RemotePostID = deref(remoteID)
		r.ErrorKind = deref(errKind)
		r.ErrorMessage = deref(errMessage)
		results = append(results, r)
	}

	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	post := &models.ScheduledPost{}
	var platforms []string
	var mediaURL, claimedBy *string

	err := row.Scan(&post.ID, &post.UserID, &post.Content, &mediaURL, pq.Array(&platforms),
		&post.Status, &post.ScheduledAt, &post.ClaimedAt, &claimedBy, &post.Reclaims,
		&post.PublishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.MediaURL = deref(mediaURL)
	post.ClaimedBy = deref(claimedBy)
	post.Platforms = make([]models.Platform, len(platforms))
	for i, p := range platforms {
		post.Platforms[i] = models.Platform(p)
	}

	return post, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
