package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/publishers"
	"SocialSchedulerAPI/utils"

	"github.com/google/uuid"
)

// PostStore is the dispatcher's view of the post repository. The repository
// is the sole synchronization point: the dispatcher keeps no authoritative
// state between cycles.
type PostStore interface {
	FindDuePending(now, staleCutoff time.Time) ([]*models.ScheduledPost, error)
	TryClaim(id, workerID string, now, staleCutoff time.Time) (bool, error)
	ReleaseClaim(id string) error
	UpdatePlatformResult(r *models.PlatformResult) error
	FinalizeStatus(id string, status models.PostStatus, publishedAt *time.Time) error
}

// CredentialStore resolves per-user platform credentials. A nil credential
// with nil error means the platform is not connected.
type CredentialStore interface {
	GetActiveCredential(userID string, platform models.Platform) (*models.PlatformCredentials, error)
}

// Dispatcher turns due, pending posts into publish attempts and durably
// records the outcome. Each cycle: scan for due work, claim each post with a
// conditional write, publish to every target platform, finalize the post
// once all platforms reached a terminal state.
type Dispatcher struct {
	posts    PostStore
	creds    CredentialStore
	registry publishers.Registry
	policy   RetryPolicy

	workerID       string
	concurrency    int
	publishTimeout time.Duration
	claimTimeout   time.Duration
	maxReclaims    int
	now            func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithWorkerID(id string) DispatcherOption {
	return func(d *Dispatcher) { d.workerID = id }
}

// WithConcurrency bounds how many posts publish in parallel per cycle.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithPublishTimeout bounds a single platform publish call.
func WithPublishTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.publishTimeout = t }
}

// WithClaimTimeout sets how old a held claim must be before another worker
// may reclaim it.
func WithClaimTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.claimTimeout = t }
}

// WithMaxReclaims bounds how often a crashed-worker claim is re-handed out.
func WithMaxReclaims(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxReclaims = n }
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(posts PostStore, creds CredentialStore, registry publishers.Registry, policy RetryPolicy, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		posts:          posts,
		creds:          creds,
		registry:       registry,
		policy:         policy,
		workerID:       "worker-" + uuid.New().String()[:8],
		concurrency:    5,
		publishTimeout: 15 * time.Second,
		claimTimeout:   5 * time.Minute,
		maxReclaims:    3,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce performs a single poll cycle and returns how many posts this
// worker claimed. A repository error aborts the whole cycle; the next cycle
// retries it. Publish failures never abort the cycle.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.now()
	staleCutoff := now.Add(-d.claimTimeout)

	due, err := d.posts.FindDuePending(now, staleCutoff)
	if err != nil {
		return 0, fmt.Errorf("scanning due posts: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	claimed := 0

	for _, post := range due {
		if ctx.Err() != nil {
			break
		}

		ok, err := d.posts.TryClaim(post.ID, d.workerID, now, staleCutoff)
		if err != nil {
			utils.Errorf("claim failed for post %s: %v", post.ID, err)
			continue
		}
		if !ok {
			// Another worker got there first; not an error.
			continue
		}

		stale := post.Status == models.StatusInProgress && post.ClaimedAt != nil
		reclaims := post.Reclaims
		if stale {
			reclaims++
		}

		claimed++
		wg.Add(1)
		sem <- struct{}{}
		go func(p *models.ScheduledPost, reclaims int) {
			defer wg.Done()
			defer func() { <-sem }()
			d.dispatch(ctx, p, reclaims)
		}(post, reclaims)
	}

	wg.Wait()
	return claimed, nil
}

// dispatch publishes a claimed post to each of its target platforms and
// finalizes or releases it. No error escapes: one post's failure must not
// block the rest of the batch.
func (d *Dispatcher) dispatch(ctx context.Context, post *models.ScheduledPost, reclaims int) {
	results := make([]*models.PlatformResult, 0, len(post.Platforms))
	for _, platform := range post.Platforms {
		r := post.Result(platform)
		if r == nil {
			r = &models.PlatformResult{PostID: post.ID, Platform: platform, State: models.PlatformPending}
		}
		results = append(results, r)
	}

	if reclaims > d.maxReclaims {
		d.failRemaining(results, "claim reclaimed too many times, giving up")
		d.finalize(post, results)
		return
	}

	now := d.now()
	var wg sync.WaitGroup
	for _, r := range results {
		if r.State != models.PlatformPending {
			continue
		}
		if r.NextAttemptAt != nil && r.NextAttemptAt.After(now) {
			// Still inside the backoff floor; leave for a later cycle.
			continue
		}

		wg.Add(1)
		go func(r *models.PlatformResult) {
			defer wg.Done()
			d.publishOne(ctx, post, r)
		}(r)
	}
	wg.Wait()

	d.finalize(post, results)
}

func (d *Dispatcher) publishOne(ctx context.Context, post *models.ScheduledPost, r *models.PlatformResult) {
	cred, err := d.creds.GetActiveCredential(post.UserID, r.Platform)
	if err != nil {
		utils.Errorf("post %s: credential lookup for %s failed: %v", post.ID, r.Platform, err)
		d.recordFailure(r, &publishers.Error{
			Kind:     publishers.KindTransientNetwork,
			Platform: r.Platform,
			Message:  "credential store unavailable",
			Err:      err,
		}, false)
		return
	}
	if cred == nil {
		// Not connected or deactivated: non-retryable, no adapter call.
		d.recordFailure(r, &publishers.Error{
			Kind:     publishers.KindAuth,
			Platform: r.Platform,
			Message:  "platform not connected",
		}, false)
		return
	}

	publisher, ok := d.registry[r.Platform]
	if !ok {
		d.recordFailure(r, &publishers.Error{
			Kind:     publishers.KindContentRejected,
			Platform: r.Platform,
			Message:  "no publisher registered for platform",
		}, false)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	remoteID, err := publisher.Publish(publishCtx, post, cred)
	cancel()

	if err != nil {
		d.recordFailure(r, publishers.Classify(r.Platform, err), true)
		return
	}

	now := d.now()
	r.State = models.PlatformCompleted
	r.RemotePostID = remoteID
	r.ErrorKind = ""
	r.ErrorMessage = ""
	r.Attempts++
	r.LastAttemptAt = &now
	r.NextAttemptAt = nil
	r.UpdatedAt = now

	if err := d.posts.UpdatePlatformResult(r); err != nil {
		utils.Errorf("post %s: recording %s success failed: %v", post.ID, r.Platform, err)
	}
	utils.Infof("post %s published on %s as %s", post.ID, r.Platform, remoteID)
}

// recordFailure applies the retry policy to a failed attempt.
// countAttempt is false when no publish call was actually made.
func (d *Dispatcher) recordFailure(r *models.PlatformResult, perr *publishers.Error, countAttempt bool) {
	now := d.now()
	if countAttempt {
		r.Attempts++
		r.LastAttemptAt = &now
	}
	r.ErrorKind = string(perr.Kind)
	r.ErrorMessage = perr.Message
	r.UpdatedAt = now

	switch {
	case !perr.Retryable():
		r.State = models.PlatformFailed
		r.NextAttemptAt = nil
	case countAttempt && d.policy.Exhausted(r.Attempts):
		r.State = models.PlatformFailed
		r.NextAttemptAt = nil
	default:
		r.State = models.PlatformPending
		next := d.policy.NextAttempt(now, r.Attempts, perr.RetryAfter)
		r.NextAttemptAt = &next
	}

	if r.State == models.PlatformFailed {
		utils.Warnf("post %s failed on %s (%s): %s", r.PostID, r.Platform, perr.Kind, perr.Message)
	} else {
		utils.Infof("post %s will retry on %s after %s (attempt %d, %s)",
			r.PostID, r.Platform, r.NextAttemptAt.Format(time.RFC3339), r.Attempts, perr.Kind)
	}

	if err := d.posts.UpdatePlatformResult(r); err != nil {
		utils.Errorf("post %s: recording %s failure failed: %v", r.PostID, r.Platform, err)
	}
}

func (d *Dispatcher) failRemaining(results []*models.PlatformResult, message string) {
	now := d.now()
	for _, r := range results {
		if r.State != models.PlatformPending {
			continue
		}
		r.State = models.PlatformFailed
		r.ErrorKind = string(publishers.KindTransientNetwork)
		r.ErrorMessage = message
		r.UpdatedAt = now
		if err := d.posts.UpdatePlatformResult(r); err != nil {
			utils.Errorf("post %s: recording %s failure failed: %v", r.PostID, r.Platform, err)
		}
	}
}

// finalize sets the post's overall status once every platform is terminal.
// While retryable platforms remain, the claim is released and the post stays
// in progress for a later cycle.
func (d *Dispatcher) finalize(post *models.ScheduledPost, results []*models.PlatformResult) {
	completed, failed := 0, 0
	for _, r := range results {
		switch r.State {
		case models.PlatformCompleted:
			completed++
		case models.PlatformFailed:
			failed++
		default:
			if err := d.posts.ReleaseClaim(post.ID); err != nil {
				utils.Errorf("post %s: releasing claim failed: %v", post.ID, err)
			}
			return
		}
	}

	status := models.StatusPartiallyCompleted
	switch {
	case failed == 0:
		status = models.StatusCompleted
	case completed == 0:
		status = models.StatusFailed
	}

	var publishedAt *time.Time
	if completed > 0 {
		now := d.now()
		publishedAt = &now
	}

	if err := d.posts.FinalizeStatus(post.ID, status, publishedAt); err != nil {
		utils.Errorf("post %s: finalizing as %s failed: %v", post.ID, status, err)
		return
	}
	utils.Infof("post %s finalized: %s (%d/%d platforms succeeded)",
		post.ID, status, completed, len(results))
}
