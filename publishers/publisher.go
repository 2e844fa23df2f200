package publishers

import (
	"context"

	"SocialSchedulerAPI/models"
)

// PlatformPublisher hides a platform's publishing protocol behind one call.
// On success it returns the remote post id; on failure it returns an *Error
// whose Kind the dispatcher maps to its retry policy.
type PlatformPublisher interface {
	Publish(ctx context.Context, post *models.ScheduledPost, cred *models.PlatformCredentials) (string, error)
}

// Registry maps platform identifiers to their publishers. It is built once
// at process start and handed to the dispatcher, so tests can swap in stubs.
type Registry map[models.Platform]PlatformPublisher

func NewRegistry() Registry {
	return Registry{
		models.Twitter:   NewTwitterPublisher(),
		models.Instagram: NewInstagramPublisher(),
	}
}
