package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"SocialSchedulerAPI/models"
)

const instagramCaptionLimit = 2200

// InstagramPublisher publishes through the Graph media-container flow:
// create a container referencing the remote image URL, then call
// media_publish to finalize it. Instagram mandates media, so a post
// without a media URL is rejected before any network call.
type InstagramPublisher struct {
	GraphBaseURL string
	HTTPClient   *http.Client
}

func NewInstagramPublisher() *InstagramPublisher {
	return &InstagramPublisher{
		GraphBaseURL: "https://graph.instagram.com/v21.0",
		HTTPClient:   &http.Client{},
	}
}

func (ig *InstagramPublisher) Publish(ctx context.Context, post *models.ScheduledPost, cred *models.PlatformCredentials) (string, error) {
	if cred == nil || cred.AccessToken == "" {
		return "", newError(KindAuth, models.Instagram, "missing credentials")
	}
	if cred.PlatformUserID == "" {
		return "", newError(KindAuth, models.Instagram, "credential has no platform account id")
	}
	if post.MediaURL == "" {
		return "", newError(KindContentRejected, models.Instagram, "instagram requires a media url")
	}
	if len([]rune(post.Content)) > instagramCaptionLimit {
		return "", newError(KindContentRejected, models.Instagram,
			fmt.Sprintf("caption exceeds %d character limit", instagramCaptionLimit))
	}

	containerID, err := ig.createContainer(ctx, post, cred)
	if err != nil {
		return "", err
	}

	return ig.publishContainer(ctx, containerID, cred)
}

func (ig *InstagramPublisher) createContainer(ctx context.Context, post *models.ScheduledPost, cred *models.PlatformCredentials) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", ig.GraphBaseURL, cred.PlatformUserID)
	payload := map[string]interface{}{
		"image_url":    post.MediaURL,
		"caption":      post.Content,
		"access_token": cred.AccessToken,
	}

	result, err := ig.postJSON(ctx, endpoint, payload, "container create")
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", newError(KindTransientNetwork, models.Instagram, "no container id in response")
	}
	return result.ID, nil
}

func (ig *InstagramPublisher) publishContainer(ctx context.Context, containerID string, cred *models.PlatformCredentials) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", ig.GraphBaseURL, cred.PlatformUserID)
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": cred.AccessToken,
	}

	result, err := ig.postJSON(ctx, endpoint, payload, "media publish")
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", newError(KindTransientNetwork, models.Instagram, "no media id in publish response")
	}
	return result.ID, nil
}

type graphResult struct {
	ID string `json:"id"`
}

func (ig *InstagramPublisher) postJSON(ctx context.Context, endpoint string, payload map[string]interface{}, op string) (*graphResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapError(KindContentRejected, models.Instagram, "invalid payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(KindTransientNetwork, models.Instagram, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ig.HTTPClient.Do(req)
	if err != nil {
		return nil, wrapError(KindTransientNetwork, models.Instagram, op+" request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ig.classifyResponse(resp, op)
	}

	var result graphResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, wrapError(KindTransientNetwork, models.Instagram, "decoding "+op+" response", err)
	}
	return &result, nil
}

func (ig *InstagramPublisher) classifyResponse(resp *http.Response, op string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	message := fmt.Sprintf("%s returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(KindAuth, models.Instagram, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		perr := newError(KindRateLimit, models.Instagram, message)
		perr.RetryAfter = rateLimitHint(resp)
		return perr
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return newError(KindContentRejected, models.Instagram, message)
	default:
		return newError(KindTransientNetwork, models.Instagram, message)
	}
}
