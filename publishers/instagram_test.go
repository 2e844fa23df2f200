package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SocialSchedulerAPI/models"
)

func instagramTestCred() *models.PlatformCredentials {
	return &models.PlatformCredentials{
		UserID:         "user-1",
		Platform:       models.Instagram,
		AccessToken:    "ig-token",
		PlatformUserID: "17841400000",
		IsActive:       true,
	}
}

func TestInstagramPublishContainerFlow(t *testing.T) {
	published := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)

		switch r.URL.Path {
		case "/17841400000/media":
			if payload["image_url"] != "https://cdn.example.com/pic.jpg" {
				t.Errorf("expected image_url in container, got %v", payload["image_url"])
			}
			if payload["caption"] != "sunset" {
				t.Errorf("expected caption in container, got %v", payload["caption"])
			}
			if payload["access_token"] != "ig-token" {
				t.Errorf("expected access token in payload, got %v", payload["access_token"])
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "container-9"})
		case "/17841400000/media_publish":
			if payload["creation_id"] != "container-9" {
				t.Errorf("expected creation_id container-9, got %v", payload["creation_id"])
			}
			published = true
			json.NewEncoder(w).Encode(map[string]string{"id": "ig-5005"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	pub := &InstagramPublisher{GraphBaseURL: server.URL, HTTPClient: server.Client()}
	post := &models.ScheduledPost{Content: "sunset", MediaURL: "https://cdn.example.com/pic.jpg"}

	id, err := pub.Publish(context.Background(), post, instagramTestCred())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != "ig-5005" {
		t.Errorf("expected ig-5005, got %q", id)
	}
	if !published {
		t.Error("expected media_publish to be called")
	}
}

func TestInstagramRequiresMediaBeforeNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected without media url")
	}))
	defer server.Close()

	pub := &InstagramPublisher{GraphBaseURL: server.URL, HTTPClient: server.Client()}
	post := &models.ScheduledPost{Content: "no media"}

	_, err := pub.Publish(context.Background(), post, instagramTestCred())
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindContentRejected {
		t.Fatalf("expected content rejected error, got %v", err)
	}
}

func TestInstagramRejectsOverlongCaption(t *testing.T) {
	pub := NewInstagramPublisher()
	post := &models.ScheduledPost{
		Content:  strings.Repeat("a", instagramCaptionLimit+1),
		MediaURL: "https://cdn.example.com/pic.jpg",
	}

	_, err := pub.Publish(context.Background(), post, instagramTestCred())
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindContentRejected {
		t.Fatalf("expected content rejected error, got %v", err)
	}
}

func TestInstagramMissingAccountID(t *testing.T) {
	cred := instagramTestCred()
	cred.PlatformUserID = ""

	pub := NewInstagramPublisher()
	post := &models.ScheduledPost{Content: "x", MediaURL: "https://cdn.example.com/pic.jpg"}

	_, err := pub.Publish(context.Background(), post, cred)
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestInstagramErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadRequest, KindContentRejected},
		{http.StatusBadGateway, KindTransientNetwork},
	}

	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))

		pub := &InstagramPublisher{GraphBaseURL: server.URL, HTTPClient: server.Client()}
		post := &models.ScheduledPost{Content: "x", MediaURL: "https://cdn.example.com/pic.jpg"}

		_, err := pub.Publish(context.Background(), post, instagramTestCred())
		server.Close()

		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("status %d: expected *Error, got %v", c.status, err)
		}
		if perr.Kind != c.want {
			t.Errorf("status %d: expected kind %s, got %s", c.status, c.want, perr.Kind)
		}
	}
}
