package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyScreenshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/verify/screenshot" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ScreenshotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ImageURL == "" {
			t.Error("expected image_url in request")
		}
		_ = json.NewEncoder(w).Encode(Verification{Valid: true, Reason: "matches mission screen"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 2*time.Second)
	v, err := client.VerifyScreenshot(context.Background(), ScreenshotRequest{ImageURL: "https://signed.example/img"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Valid || v.Reason == "" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 2*time.Second)
	if _, err := client.VerifyText(context.Background(), "some feedback"); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestUnconfiguredBaseURL(t *testing.T) {
	client := NewClient("", "", time.Second)
	if _, err := client.Summarize(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error when base url missing")
	}
}
