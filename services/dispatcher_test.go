package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/publishers"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeStore struct {
	mu    sync.Mutex
	posts map[string]*models.ScheduledPost
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: map[string]*models.ScheduledPost{}}
}

func (s *fakeStore) add(post *models.ScheduledPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.Results == nil {
		for _, p := range post.Platforms {
			post.Results = append(post.Results, &models.PlatformResult{
				PostID: post.ID, Platform: p, State: models.PlatformPending,
			})
		}
	}
	s.posts[post.ID] = post
}

func (s *fakeStore) get(id string) *models.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[id]
}

func (s *fakeStore) eligible(post *models.ScheduledPost, now, staleCutoff time.Time) bool {
	if post.ScheduledAt.After(now) {
		return false
	}
	switch post.Status {
	case models.StatusPending:
		return true
	case models.StatusInProgress:
		return post.ClaimedAt == nil || !post.ClaimedAt.After(staleCutoff)
	default:
		return false
	}
}

func (s *fakeStore) FindDuePending(now, staleCutoff time.Time) ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := []*models.ScheduledPost{}
	for _, post := range s.posts {
		if s.eligible(post, now, staleCutoff) {
			copied := *post
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (s *fakeStore) TryClaim(id, workerID string, now, staleCutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok || !s.eligible(post, now, staleCutoff) {
		return false, nil
	}
	if post.Status == models.StatusInProgress && post.ClaimedAt != nil {
		post.Reclaims++
	}
	post.Status = models.StatusInProgress
	claimed := now
	post.ClaimedAt = &claimed
	post.ClaimedBy = workerID
	return true, nil
}

func (s *fakeStore) ReleaseClaim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post, ok := s.posts[id]; ok && post.Status == models.StatusInProgress {
		post.ClaimedAt = nil
		post.ClaimedBy = ""
	}
	return nil
}

func (s *fakeStore) UpdatePlatformResult(r *models.PlatformResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[r.PostID]
	if !ok {
		return errors.New("post not found")
	}
	for i, existing := range post.Results {
		if existing.Platform == r.Platform {
			copied := *r
			post.Results[i] = &copied
			return nil
		}
	}
	copied := *r
	post.Results = append(post.Results, &copied)
	return nil
}

func (s *fakeStore) FinalizeStatus(id string, status models.PostStatus, publishedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return errors.New("post not found")
	}
	post.Status = status
	post.PublishedAt = publishedAt
	post.ClaimedAt = nil
	post.ClaimedBy = ""
	return nil
}

type fakeCreds struct {
	mu    sync.Mutex
	creds map[string]*models.PlatformCredentials
}

func newFakeCreds() *fakeCreds {
	return &fakeCreds{creds: map[string]*models.PlatformCredentials{}}
}

func (c *fakeCreds) set(userID string, platform models.Platform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds[userID+"/"+string(platform)] = &models.PlatformCredentials{
		UserID: userID, Platform: platform, AccessToken: "token", IsActive: true,
	}
}

func (c *fakeCreds) GetActiveCredential(userID string, platform models.Platform) (*models.PlatformCredentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds[userID+"/"+string(platform)], nil
}

type stubPublisher struct {
	calls int32
	fn    func() (string, error)
}

func (p *stubPublisher) Publish(ctx context.Context, post *models.ScheduledPost, cred *models.PlatformCredentials) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.fn()
}

func (p *stubPublisher) callCount() int {
	return int(atomic.LoadInt32(&p.calls))
}

func alwaysSucceed(id string) *stubPublisher {
	return &stubPublisher{fn: func() (string, error) { return id, nil }}
}

func alwaysFail(kind publishers.ErrorKind) *stubPublisher {
	return &stubPublisher{fn: func() (string, error) {
		return "", &publishers.Error{Kind: kind, Platform: models.Twitter, Message: "stub failure"}
	}}
}

func testPost(clock *fakeClock, platforms ...models.Platform) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:          "post-1",
		UserID:      "user-1",
		Content:     "hello",
		Platforms:   platforms,
		Status:      models.StatusPending,
		ScheduledAt: clock.Now().Add(-time.Second),
	}
}

func newTestDispatcher(store *fakeStore, creds *fakeCreds, registry publishers.Registry, clock *fakeClock) *Dispatcher {
	return NewDispatcher(store, creds, registry, DefaultRetryPolicy(),
		WithWorkerID("test-worker"),
		WithClock(clock.Now),
	)
}

func TestDispatchPublishesDuePost(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := alwaysSucceed("remote-42")

	store.add(testPost(clock, models.Twitter))
	d := newTestDispatcher(store, creds, publishers.Registry{models.Twitter: stub}, clock)

	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 claimed post, got %d", n)
	}

	post := store.get("post-1")
	if post.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", post.Status)
	}
	r := post.Result(models.Twitter)
	if r.RemotePostID != "remote-42" {
		t.Errorf("expected remote post id recorded, got %q", r.RemotePostID)
	}
	if r.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", r.Attempts)
	}
	if post.PublishedAt == nil {
		t.Error("expected published_at to be set")
	}
}

func TestDispatchMissingCredentialFailsWithoutAdapterCall(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	stub := alwaysSucceed("remote-42")

	store.add(testPost(clock, models.Twitter))
	d := newTestDispatcher(store, newFakeCreds(), publishers.Registry{models.Twitter: stub}, clock)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	post := store.get("post-1")
	if post.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", post.Status)
	}
	r := post.Result(models.Twitter)
	if r.ErrorKind != string(publishers.KindAuth) {
		t.Errorf("expected auth error kind, got %q", r.ErrorKind)
	}
	if stub.callCount() != 0 {
		t.Errorf("expected zero adapter calls, got %d", stub.callCount())
	}
}

func TestDispatchPartialCompletion(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	creds.set("user-1", models.Instagram)

	registry := publishers.Registry{
		models.Twitter:   alwaysSucceed("tw-1"),
		models.Instagram: alwaysFail(publishers.KindContentRejected),
	}

	store.add(testPost(clock, models.Twitter, models.Instagram))
	d := newTestDispatcher(store, creds, registry, clock)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	post := store.get("post-1")
	if post.Status != models.StatusPartiallyCompleted {
		t.Fatalf("expected partially_completed, got %s", post.Status)
	}
	if got := post.Result(models.Twitter).RemotePostID; got != "tw-1" {
		t.Errorf("expected twitter remote id recorded, got %q", got)
	}
	ig := post.Result(models.Instagram)
	if ig.State != models.PlatformFailed {
		t.Errorf("expected instagram failed, got %s", ig.State)
	}
	if ig.ErrorKind != string(publishers.KindContentRejected) {
		t.Errorf("expected content rejected kind, got %q", ig.ErrorKind)
	}
}

func TestTransientFailuresExhaustRetries(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := alwaysFail(publishers.KindTransientNetwork)

	store.add(testPost(clock, models.Twitter))
	d := newTestDispatcher(store, creds, publishers.Registry{models.Twitter: stub}, clock)

	// Each cycle makes one attempt; advance past the backoff floor between
	// cycles. MaxRetries=3 means exactly 3 attempts then failure.
	for i := 0; i < 5; i++ {
		if _, err := d.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
		clock.Advance(time.Hour)
	}

	post := store.get("post-1")
	if post.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", post.Status)
	}
	if stub.callCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", stub.callCount())
	}
}

func TestBackoffFloorPreventsImmediateRetry(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := alwaysFail(publishers.KindTransientNetwork)

	store.add(testPost(clock, models.Twitter))
	d := newTestDispatcher(store, creds, publishers.Registry{models.Twitter: stub}, clock)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stub.callCount() != 1 {
		t.Fatalf("expected 1 attempt, got %d", stub.callCount())
	}

	// Same instant: still inside the floor, no new attempt.
	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stub.callCount() != 1 {
		t.Errorf("expected retry to wait for backoff floor, got %d attempts", stub.callCount())
	}

	post := store.get("post-1")
	if post.Status != models.StatusInProgress {
		t.Errorf("expected in_progress while retries remain, got %s", post.Status)
	}

	clock.Advance(time.Hour)
	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stub.callCount() != 2 {
		t.Errorf("expected second attempt after floor elapsed, got %d", stub.callCount())
	}
}

func TestRateLimitHintExtendsBackoff(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := &stubPublisher{fn: func() (string, error) {
		return "", &publishers.Error{
			Kind:       publishers.KindRateLimit,
			Platform:   models.Twitter,
			Message:    "slow down",
			RetryAfter: 30 * time.Minute,
		}
	}}

	store.add(testPost(clock, models.Twitter))
	d := newTestDispatcher(store, creds, publishers.Registry{models.Twitter: stub}, clock)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	r := store.get("post-1").Result(models.Twitter)
	if r.NextAttemptAt == nil {
		t.Fatal("expected next attempt time to be set")
	}
	want := clock.Now().Add(30 * time.Minute)
	if r.NextAttemptAt.Before(want) {
		t.Errorf("expected next attempt no earlier than %v, got %v", want, r.NextAttemptAt)
	}
}

func TestCompletedPostNotReselected(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	stub := alwaysSucceed("remote-42")

	post := testPost(clock, models.Twitter)
	post.Status = models.StatusCompleted
	store.add(post)

	d := newTestDispatcher(store, newFakeCreds(), publishers.Registry{models.Twitter: stub}, clock)
	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no posts claimed, got %d", n)
	}
	if stub.callCount() != 0 {
		t.Errorf("expected no publish calls, got %d", stub.callCount())
	}
}

func TestClaimIsExclusive(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	store.add(testPost(clock, models.Twitter))

	now := clock.Now()
	cutoff := now.Add(-5 * time.Minute)

	first, err := store.TryClaim("post-1", "worker-a", now, cutoff)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	second, err := store.TryClaim("post-1", "worker-b", now, cutoff)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	if !first || second {
		t.Errorf("expected exactly one claim to win, got first=%v second=%v", first, second)
	}
}

func TestConcurrentDispatchersPublishOnce(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := alwaysSucceed("remote-42")
	registry := publishers.Registry{models.Twitter: stub}

	store.add(testPost(clock, models.Twitter))

	a := newTestDispatcher(store, creds, registry, clock)
	b := NewDispatcher(store, creds, registry, DefaultRetryPolicy(),
		WithWorkerID("other-worker"), WithClock(clock.Now))

	var wg sync.WaitGroup
	for _, d := range []*Dispatcher{a, b} {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			d.RunOnce(context.Background())
		}(d)
	}
	wg.Wait()

	if stub.callCount() != 1 {
		t.Errorf("expected exactly one publish across workers, got %d", stub.callCount())
	}
	if store.get("post-1").Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", store.get("post-1").Status)
	}
}

func TestStaleClaimReclaimedOnlyAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := alwaysSucceed("remote-42")

	post := testPost(clock, models.Twitter)
	post.Status = models.StatusInProgress
	claimed := clock.Now().Add(-4 * time.Minute)
	post.ClaimedAt = &claimed
	post.ClaimedBy = "dead-worker"
	store.add(post)

	d := newTestDispatcher(store, creds, publishers.Registry{models.Twitter: stub}, clock)

	// 4 minutes old: inside the 5 minute claim timeout, untouchable.
	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 || stub.callCount() != 0 {
		t.Fatalf("expected held claim to be respected, claimed=%d calls=%d", n, stub.callCount())
	}

	clock.Advance(2 * time.Minute)
	n, err = d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 || stub.callCount() != 1 {
		t.Fatalf("expected stale claim reclaimed, claimed=%d calls=%d", n, stub.callCount())
	}

	got := store.get("post-1")
	if got.Status != models.StatusCompleted {
		t.Errorf("expected completed after reclaim, got %s", got.Status)
	}
	if got.Reclaims != 1 {
		t.Errorf("expected reclaim counter at 1, got %d", got.Reclaims)
	}
}

func TestReclaimBoundGivesUp(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	stub := alwaysSucceed("remote-42")

	post := testPost(clock, models.Twitter)
	post.Status = models.StatusInProgress
	claimed := clock.Now().Add(-time.Hour)
	post.ClaimedAt = &claimed
	post.Reclaims = 3
	store.add(post)

	d := newTestDispatcher(store, creds, publishers.Registry{models.Twitter: stub}, clock)
	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := store.get("post-1")
	if got.Status != models.StatusFailed {
		t.Fatalf("expected failed after reclaim bound, got %s", got.Status)
	}
	if stub.callCount() != 0 {
		t.Errorf("expected no publish after reclaim bound, got %d", stub.callCount())
	}
}

func TestAllPlatformsFailedFinalizesAsFailed(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	creds := newFakeCreds()
	creds.set("user-1", models.Twitter)
	creds.set("user-1", models.Instagram)

	registry := publishers.Registry{
		models.Twitter:   alwaysFail(publishers.KindContentRejected),
		models.Instagram: alwaysFail(publishers.KindAuth),
	}

	store.add(testPost(clock, models.Twitter, models.Instagram))
	d := newTestDispatcher(store, creds, registry, clock)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	post := store.get("post-1")
	if post.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", post.Status)
	}
	if post.PublishedAt != nil {
		t.Error("expected no published_at on a fully failed post")
	}
}
