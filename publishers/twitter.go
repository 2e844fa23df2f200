package publishers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"SocialSchedulerAPI/models"
)

const twitterCharLimit = 280

// TwitterPublisher posts to the v2 tweet endpoint. When the post carries a
// media URL the asset is downloaded first and pushed through the v1.1 media
// upload endpoint to obtain a media id referenced by the tweet.
type TwitterPublisher struct {
	APIBaseURL    string
	UploadBaseURL string
	HTTPClient    *http.Client
}

func NewTwitterPublisher() *TwitterPublisher {
	return &TwitterPublisher{
		APIBaseURL:    "https://api.twitter.com",
		UploadBaseURL: "https://upload.twitter.com",
		HTTPClient:    &http.Client{},
	}
}

func (t *TwitterPublisher) Publish(ctx context.Context, post *models.ScheduledPost, cred *models.PlatformCredentials) (string, error) {
	if cred == nil || cred.AccessToken == "" {
		return "", newError(KindAuth, models.Twitter, "missing credentials")
	}
	if len([]rune(post.Content)) > twitterCharLimit {
		return "", newError(KindContentRejected, models.Twitter,
			fmt.Sprintf("content exceeds %d character limit", twitterCharLimit))
	}

	var mediaID string
	if post.MediaURL != "" {
		id, err := t.uploadMedia(ctx, post.MediaURL, cred)
		if err != nil {
			return "", err
		}
		mediaID = id
	}

	payload := map[string]interface{}{"text": post.Content}
	if mediaID != "" {
		payload["media"] = map[string]interface{}{"media_ids": []string{mediaID}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", wrapError(KindContentRejected, models.Twitter, "invalid tweet payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.APIBaseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", wrapError(KindTransientNetwork, models.Twitter, "building tweet request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", wrapError(KindTransientNetwork, models.Twitter, "tweet request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", t.classifyResponse(resp, "tweet create")
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", wrapError(KindTransientNetwork, models.Twitter, "decoding tweet response", err)
	}
	if result.Data.ID == "" {
		return "", newError(KindTransientNetwork, models.Twitter, "no tweet id in response")
	}

	return result.Data.ID, nil
}

func (t *TwitterPublisher) uploadMedia(ctx context.Context, mediaURL string, cred *models.PlatformCredentials) (string, error) {
	asset, err := t.downloadAsset(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(asset))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.UploadBaseURL+"/1.1/media/upload.json", strings.NewReader(form.Encode()))
	if err != nil {
		return "", wrapError(KindTransientNetwork, models.Twitter, "building media upload request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", wrapError(KindTransientNetwork, models.Twitter, "media upload failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", t.classifyResponse(resp, "media upload")
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", wrapError(KindTransientNetwork, models.Twitter, "decoding media upload response", err)
	}
	if result.MediaIDString == "" {
		return "", newError(KindTransientNetwork, models.Twitter, "no media id in upload response")
	}

	return result.MediaIDString, nil
}

func (t *TwitterPublisher) downloadAsset(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, wrapError(KindContentRejected, models.Twitter, "invalid media url", err)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, wrapError(KindTransientNetwork, models.Twitter, "downloading media asset", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, newError(KindTransientNetwork, models.Twitter,
				fmt.Sprintf("media host returned %d", resp.StatusCode))
		}
		return nil, newError(KindContentRejected, models.Twitter,
			fmt.Sprintf("media asset unavailable (%d)", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(KindTransientNetwork, models.Twitter, "reading media asset", err)
	}
	return data, nil
}

func (t *TwitterPublisher) classifyResponse(resp *http.Response, op string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	message := fmt.Sprintf("%s returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return newError(KindAuth, models.Twitter, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		perr := newError(KindRateLimit, models.Twitter, message)
		perr.RetryAfter = rateLimitHint(resp)
		return perr
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return newError(KindContentRejected, models.Twitter, message)
	default:
		return newError(KindTransientNetwork, models.Twitter, message)
	}
}

// rateLimitHint reads the reset hint from either Retry-After (seconds) or
// x-rate-limit-reset (unix epoch).
func rateLimitHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(epoch, 0)); until > 0 {
				return until
			}
		}
	}
	return 0
}
